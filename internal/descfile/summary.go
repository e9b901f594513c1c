package descfile

import (
	json "github.com/goccy/go-json"

	"github.com/samcharles93/fmha/internal/fmha"
)

// Summary is a flat, JSON friendly view of a resolved Config.
type Summary struct {
	Kind         string   `json:"kind"`
	Family       string   `json:"family"`
	InputType    string   `json:"input_type"`
	OutputType   string   `json:"output_type"`
	Algorithm    string   `json:"algorithm"`
	Scale        *float64 `json:"scale,omitempty"`
	DropoutRate  *float64 `json:"dropout_rate,omitempty"`
	Seed         *int64   `json:"seed,omitempty"`
	LhsBMM1      string   `json:"lhs_bmm1"`
	RhsBMM1      string   `json:"rhs_bmm1"`
	RhsBMM2      string   `json:"rhs_bmm2"`
	Intermediate string   `json:"intermediate"`
	Output       string   `json:"output"`
	Mask         string   `json:"mask,omitempty"`
	Bias         string   `json:"bias,omitempty"`
}

func Summarize(cfg *fmha.Config) Summary {
	s := Summary{
		Kind:         cfg.Kind.String(),
		Family:       cfg.Kind.Family().String(),
		InputType:    cfg.InputType.String(),
		OutputType:   cfg.OutputType.String(),
		Algorithm:    cfg.Algorithm.String(),
		Scale:        clonePtr(cfg.Scale),
		DropoutRate:  clonePtr(cfg.DropoutRate),
		Seed:         clonePtr(cfg.Seed),
		LhsBMM1:      cfg.LhsBMM1.String(),
		RhsBMM1:      cfg.RhsBMM1.String(),
		RhsBMM2:      cfg.RhsBMM2.String(),
		Intermediate: cfg.IntermediateLhsBMM2.String(),
		Output:       cfg.Output.String(),
	}
	if cfg.Mask != nil {
		s.Mask = cfg.Mask.String()
	}
	if cfg.Bias != nil {
		s.Bias = cfg.Bias.String()
	}
	return s
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func EncodeSummary(s Summary) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

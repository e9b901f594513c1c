package fmha

import (
	"fmt"
	"math"
	"strings"

	"github.com/samcharles93/fmha/internal/dnn"
	"github.com/samcharles93/fmha/internal/shape"
)

// Config is the execution-ready form of a Descriptor. Optional fields are
// set exactly when Kind requires them. A Config is never modified after
// ConfigFor returns it and may be shared between goroutines.
type Config struct {
	InputType  shape.PrimitiveType
	OutputType shape.PrimitiveType
	Kind       Kind

	Scale       *float64
	DropoutRate *float64
	Seed        *int64

	Algorithm dnn.AlgorithmDesc

	// bias is [1, heads, q_seq_len, kv_seq_len]
	// mask is [batch, 1, q_seq_len, kv_seq_len]
	LhsBMM1             dnn.MatmulTensorDescriptor
	RhsBMM1             dnn.MatmulTensorDescriptor
	RhsBMM2             dnn.MatmulTensorDescriptor
	IntermediateLhsBMM2 dnn.MatmulTensorDescriptor
	Output              dnn.TensorDescriptor

	Mask *dnn.TensorDescriptor
	Bias *dnn.TensorDescriptor
}

// ConfigFor derives a Config from desc. Shape or dimension mismatches, a
// missing mask or bias shape, an out of range dropout rate, and unknown kinds
// fail with ErrInvalidConfig.
func ConfigFor(desc Descriptor) (*Config, error) {
	if !desc.Kind.Valid() {
		return nil, invalidConfig(fmt.Sprintf("unknown fmha kind %s", desc.Kind), nil)
	}
	req := desc.Kind.Requirements()
	bc := desc.BackendConfig

	cfg := &Config{
		InputType:  desc.LhsBMM1.Element,
		OutputType: desc.Output.Element,
		Kind:       desc.Kind,
		Algorithm:  dnn.DefaultAlgorithm(),
	}
	if bc.Algorithm != nil {
		cfg.Algorithm = bc.Algorithm.Clone()
	}

	var err error
	if cfg.LhsBMM1, err = dnn.MatmulTensorDescriptorForShape(desc.LhsBMM1, desc.BMM1.LhsBatchDims, desc.BMM1.LhsContractingDims); err != nil {
		return nil, invalidConfig("lhs_bmm1", err)
	}
	if cfg.RhsBMM1, err = dnn.MatmulTensorDescriptorForShape(desc.RhsBMM1, desc.BMM1.RhsBatchDims, desc.BMM1.RhsContractingDims); err != nil {
		return nil, invalidConfig("rhs_bmm1", err)
	}
	if cfg.IntermediateLhsBMM2, err = dnn.MatmulTensorDescriptorForShape(desc.IntermediateLhsBMM2, desc.BMM2.LhsBatchDims, desc.BMM2.LhsContractingDims); err != nil {
		return nil, invalidConfig("intermediate_lhs_bmm2", err)
	}
	if cfg.RhsBMM2, err = dnn.MatmulTensorDescriptorForShape(desc.RhsBMM2, desc.BMM2.RhsBatchDims, desc.BMM2.RhsContractingDims); err != nil {
		return nil, invalidConfig("rhs_bmm2", err)
	}
	if cfg.Output, err = dnn.TensorDescriptorForShape(desc.Output); err != nil {
		return nil, invalidConfig("output", err)
	}

	if err := dnn.CheckBatchedMatmul(cfg.LhsBMM1, cfg.RhsBMM1, cfg.IntermediateLhsBMM2.Tensor.Dims); err != nil {
		return nil, invalidConfig("bmm1", err)
	}
	if err := dnn.CheckBatchedMatmul(cfg.IntermediateLhsBMM2, cfg.RhsBMM2, cfg.Output.Dims); err != nil {
		return nil, invalidConfig("bmm2", err)
	}

	scores := cfg.IntermediateLhsBMM2.Tensor.Dims
	if req.Mask {
		if cfg.Mask, err = optionalDescriptor("mask", desc.Mask, scores); err != nil {
			return nil, err
		}
	}
	if req.Bias {
		if cfg.Bias, err = optionalDescriptor("bias", desc.Bias, scores); err != nil {
			return nil, err
		}
	}
	if req.Scale {
		if math.IsNaN(bc.Scale) || math.IsInf(bc.Scale, 0) {
			return nil, invalidConfig(fmt.Sprintf("fmha scale %v is not finite", bc.Scale), nil)
		}
		scale := bc.Scale
		cfg.Scale = &scale
	}
	if req.Dropout {
		if !(bc.DropoutRate >= 0 && bc.DropoutRate < 1) {
			return nil, invalidConfig(fmt.Sprintf("dropout rate %v outside [0, 1)", bc.DropoutRate), nil)
		}
		rate, seed := bc.DropoutRate, bc.Seed
		cfg.DropoutRate = &rate
		cfg.Seed = &seed
	}
	return cfg, nil
}

func optionalDescriptor(name string, s *shape.Shape, scores []int64) (*dnn.TensorDescriptor, error) {
	if s == nil {
		return nil, invalidConfig(fmt.Sprintf("descriptor should have non-null %s shape but found null %s shape", name, name), nil)
	}
	td, err := dnn.TensorDescriptorForShape(*s)
	if err != nil {
		return nil, invalidConfig(name, err)
	}
	if !td.BroadcastsTo(scores) {
		return nil, invalidConfig(fmt.Sprintf("%s %s does not broadcast to scores [%s]", name, td, joinDims(scores)), nil)
	}
	return &td, nil
}

// String formats the config on one line for logs.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fmha{kind=%s, input=%s, output=%s", c.Kind, c.InputType, c.OutputType)
	if c.Scale != nil {
		fmt.Fprintf(&b, ", scale=%g", *c.Scale)
	}
	if c.DropoutRate != nil {
		fmt.Fprintf(&b, ", dropout=%g", *c.DropoutRate)
	}
	if c.Seed != nil {
		fmt.Fprintf(&b, ", seed=%d", *c.Seed)
	}
	fmt.Fprintf(&b, ", algorithm=%s", c.Algorithm)
	fmt.Fprintf(&b, ", lhs_bmm1=%s, rhs_bmm1=%s, rhs_bmm2=%s, intermediate=%s, output=%s",
		c.LhsBMM1, c.RhsBMM1, c.RhsBMM2, c.IntermediateLhsBMM2, c.Output)
	if c.Mask != nil {
		fmt.Fprintf(&b, ", mask=%s", c.Mask)
	}
	if c.Bias != nil {
		fmt.Fprintf(&b, ", bias=%s", c.Bias)
	}
	b.WriteByte('}')
	return b.String()
}

// opConfig is the device-facing view of c. Kinds without a scale run with 1.
func (c *Config) opConfig() dnn.FusedMHAOpConfig {
	op := dnn.FusedMHAOpConfig{
		BMMOnly:             c.Kind == BmmBmm,
		LhsBMM1:             c.LhsBMM1,
		RhsBMM1:             c.RhsBMM1,
		RhsBMM2:             c.RhsBMM2,
		IntermediateLhsBMM2: c.IntermediateLhsBMM2,
		Output:              c.Output,
		Mask:                c.Mask,
		Bias:                c.Bias,
		Scale:               1,
		DropoutRate:         c.DropoutRate,
		Seed:                c.Seed,
	}
	if c.Scale != nil {
		op.Scale = *c.Scale
	}
	return op
}

func joinDims(v []int64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ",")
}

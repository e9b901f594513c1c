// Package descfile reads fused attention descriptors from YAML or JSON
// documents and renders resolved configs as JSON summaries.
package descfile

import (
	"fmt"

	"github.com/samcharles93/fmha/internal/dnn"
	"github.com/samcharles93/fmha/internal/fmha"
	"github.com/samcharles93/fmha/internal/shape"
)

// Document is the on-disk form of an fmha.Descriptor.
type Document struct {
	Kind          string          `yaml:"kind" json:"kind"`
	BackendConfig BackendDocument `yaml:"backend_config" json:"backend_config"`

	LhsBMM1             ShapeDocument `yaml:"lhs_bmm1" json:"lhs_bmm1"`
	RhsBMM1             ShapeDocument `yaml:"rhs_bmm1" json:"rhs_bmm1"`
	RhsBMM2             ShapeDocument `yaml:"rhs_bmm2" json:"rhs_bmm2"`
	IntermediateLhsBMM2 ShapeDocument `yaml:"intermediate_lhs_bmm2" json:"intermediate_lhs_bmm2"`
	Output              ShapeDocument `yaml:"output" json:"output"`

	BMM1 DotDocument `yaml:"bmm1_dnums" json:"bmm1_dnums"`
	BMM2 DotDocument `yaml:"bmm2_dnums" json:"bmm2_dnums"`

	Mask *ShapeDocument `yaml:"mask,omitempty" json:"mask,omitempty"`
	Bias *ShapeDocument `yaml:"bias,omitempty" json:"bias,omitempty"`
}

type BackendDocument struct {
	Algorithm   *AlgorithmDocument `yaml:"algorithm,omitempty" json:"algorithm,omitempty"`
	Scale       float64            `yaml:"fmha_scale" json:"fmha_scale"`
	DropoutRate float64            `yaml:"dropout_rate" json:"dropout_rate"`
	Seed        int64              `yaml:"seed" json:"seed"`
}

type AlgorithmDocument struct {
	ID            int64           `yaml:"id" json:"id"`
	TensorOps     bool            `yaml:"tensor_ops" json:"tensor_ops"`
	WorkspaceSize *uint64         `yaml:"workspace_size,omitempty" json:"workspace_size,omitempty"`
	TuningKnobs   map[int64]int64 `yaml:"tuning_knobs,omitempty" json:"tuning_knobs,omitempty"`
}

type ShapeDocument struct {
	ElementType string  `yaml:"element_type" json:"element_type"`
	Dims        []int64 `yaml:"dims" json:"dims"`
	// Layout is minor-to-major. Empty means row-major.
	Layout []int64 `yaml:"layout,omitempty" json:"layout,omitempty"`
}

type DotDocument struct {
	LhsBatch       []int64 `yaml:"lhs_batch" json:"lhs_batch"`
	LhsContracting []int64 `yaml:"lhs_contracting" json:"lhs_contracting"`
	RhsBatch       []int64 `yaml:"rhs_batch" json:"rhs_batch"`
	RhsContracting []int64 `yaml:"rhs_contracting" json:"rhs_contracting"`
}

// Descriptor converts the document. Only names are checked here; shape
// consistency is left to fmha.ConfigFor.
func (d Document) Descriptor() (fmha.Descriptor, error) {
	kind, err := fmha.ParseKind(d.Kind)
	if err != nil {
		return fmha.Descriptor{}, err
	}
	desc := fmha.Descriptor{
		Kind: kind,
		BackendConfig: fmha.BackendConfig{
			Scale:       d.BackendConfig.Scale,
			DropoutRate: d.BackendConfig.DropoutRate,
			Seed:        d.BackendConfig.Seed,
		},
		BMM1: d.BMM1.dnums(),
		BMM2: d.BMM2.dnums(),
	}
	if a := d.BackendConfig.Algorithm; a != nil {
		algo := dnn.AlgorithmDesc{ID: a.ID, TensorOps: a.TensorOps, WorkspaceSize: a.WorkspaceSize, TuningKnobs: a.TuningKnobs}
		desc.BackendConfig.Algorithm = &algo
	}

	fields := []struct {
		name string
		src  ShapeDocument
		dst  *shape.Shape
	}{
		{"lhs_bmm1", d.LhsBMM1, &desc.LhsBMM1},
		{"rhs_bmm1", d.RhsBMM1, &desc.RhsBMM1},
		{"rhs_bmm2", d.RhsBMM2, &desc.RhsBMM2},
		{"intermediate_lhs_bmm2", d.IntermediateLhsBMM2, &desc.IntermediateLhsBMM2},
		{"output", d.Output, &desc.Output},
	}
	for _, f := range fields {
		if *f.dst, err = f.src.shape(); err != nil {
			return fmha.Descriptor{}, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	if d.Mask != nil {
		s, err := d.Mask.shape()
		if err != nil {
			return fmha.Descriptor{}, fmt.Errorf("mask: %w", err)
		}
		desc.Mask = &s
	}
	if d.Bias != nil {
		s, err := d.Bias.shape()
		if err != nil {
			return fmha.Descriptor{}, fmt.Errorf("bias: %w", err)
		}
		desc.Bias = &s
	}
	return desc, nil
}

func (s ShapeDocument) shape() (shape.Shape, error) {
	t, err := shape.ParsePrimitiveType(s.ElementType)
	if err != nil {
		return shape.Shape{}, err
	}
	return shape.Shape{Element: t, Dims: s.Dims, MinorToMajor: s.Layout}, nil
}

func (d DotDocument) dnums() shape.DotDimensionNumbers {
	return shape.DotDimensionNumbers{
		LhsBatchDims:       d.LhsBatch,
		LhsContractingDims: d.LhsContracting,
		RhsBatchDims:       d.RhsBatch,
		RhsContractingDims: d.RhsContracting,
	}
}

// FromDescriptor is the inverse of Document.Descriptor.
func FromDescriptor(desc fmha.Descriptor) Document {
	doc := Document{
		Kind: desc.Kind.String(),
		BackendConfig: BackendDocument{
			Scale:       desc.BackendConfig.Scale,
			DropoutRate: desc.BackendConfig.DropoutRate,
			Seed:        desc.BackendConfig.Seed,
		},
		LhsBMM1:             shapeDocument(desc.LhsBMM1),
		RhsBMM1:             shapeDocument(desc.RhsBMM1),
		RhsBMM2:             shapeDocument(desc.RhsBMM2),
		IntermediateLhsBMM2: shapeDocument(desc.IntermediateLhsBMM2),
		Output:              shapeDocument(desc.Output),
		BMM1:                dotDocument(desc.BMM1),
		BMM2:                dotDocument(desc.BMM2),
	}
	if a := desc.BackendConfig.Algorithm; a != nil {
		doc.BackendConfig.Algorithm = &AlgorithmDocument{ID: a.ID, TensorOps: a.TensorOps, WorkspaceSize: a.WorkspaceSize, TuningKnobs: a.TuningKnobs}
	}
	if desc.Mask != nil {
		m := shapeDocument(*desc.Mask)
		doc.Mask = &m
	}
	if desc.Bias != nil {
		b := shapeDocument(*desc.Bias)
		doc.Bias = &b
	}
	return doc
}

func shapeDocument(s shape.Shape) ShapeDocument {
	return ShapeDocument{ElementType: s.Element.String(), Dims: s.Dims, Layout: s.MinorToMajor}
}

func dotDocument(d shape.DotDimensionNumbers) DotDocument {
	return DotDocument{
		LhsBatch:       d.LhsBatchDims,
		LhsContracting: d.LhsContractingDims,
		RhsBatch:       d.RhsBatchDims,
		RhsContracting: d.RhsContractingDims,
	}
}

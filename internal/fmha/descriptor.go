// Package fmha resolves fused multi-headed attention descriptors into
// execution-ready configs, selects the kernel family for each attention
// variant, and drives the selected kernel on a device stream.
package fmha

import (
	"github.com/samcharles93/fmha/internal/dnn"
	"github.com/samcharles93/fmha/internal/shape"
)

// BackendConfig holds the backend settings attached to a fused attention
// instance.
type BackendConfig struct {
	// Algorithm pins the kernel algorithm. Nil selects dnn.DefaultAlgorithm.
	Algorithm   *dnn.AlgorithmDesc
	Scale       float64
	DropoutRate float64
	Seed        int64
}

// Descriptor describes one fused attention instance independently of the IR
// it was recognised in. Optional shapes are nil when absent.
type Descriptor struct {
	Kind          Kind
	BackendConfig BackendConfig

	LhsBMM1             shape.Shape
	RhsBMM1             shape.Shape
	RhsBMM2             shape.Shape
	IntermediateLhsBMM2 shape.Shape
	Output              shape.Shape

	BMM1 shape.DotDimensionNumbers
	BMM2 shape.DotDimensionNumbers

	Mask *shape.Shape
	Bias *shape.Shape
}

// AttentionDims are the sizes of a [batch, heads, seq, head_dim] attention.
type AttentionDims struct {
	Batch    int64
	Heads    int64
	QSeqLen  int64
	KVSeqLen int64
	HeadDim  int64
}

// CanonicalDescriptor builds a row-major [B,H,S,D] descriptor: Q·Kᵀ over the
// head dimension, P·V over the key sequence. Mask and bias shapes are set
// when the kind needs them, as [B,1,Q,KV] and [1,H,Q,KV].
func CanonicalDescriptor(kind Kind, dims AttentionDims, elem shape.PrimitiveType, bc BackendConfig) Descriptor {
	b, h, q, kv, d := dims.Batch, dims.Heads, dims.QSeqLen, dims.KVSeqLen, dims.HeadDim
	desc := Descriptor{
		Kind:                kind,
		BackendConfig:       bc,
		LhsBMM1:             shape.Make(elem, b, h, q, d),
		RhsBMM1:             shape.Make(elem, b, h, kv, d),
		RhsBMM2:             shape.Make(elem, b, h, kv, d),
		IntermediateLhsBMM2: shape.Make(elem, b, h, q, kv),
		Output:              shape.Make(elem, b, h, q, d),
		BMM1: shape.DotDimensionNumbers{
			LhsBatchDims:       []int64{0, 1},
			LhsContractingDims: []int64{3},
			RhsBatchDims:       []int64{0, 1},
			RhsContractingDims: []int64{3},
		},
		BMM2: shape.DotDimensionNumbers{
			LhsBatchDims:       []int64{0, 1},
			LhsContractingDims: []int64{3},
			RhsBatchDims:       []int64{0, 1},
			RhsContractingDims: []int64{2},
		},
	}
	req := kind.Requirements()
	if req.Mask {
		mask := shape.Make(elem, b, 1, q, kv)
		desc.Mask = &mask
	}
	if req.Bias {
		bias := shape.Make(elem, 1, h, q, kv)
		desc.Bias = &bias
	}
	return desc
}

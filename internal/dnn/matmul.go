package dnn

import (
	"fmt"
	"slices"

	"github.com/samcharles93/fmha/internal/shape"
)

// MatmulTensorDescriptor is one operand of a batched matrix multiply: a
// tensor plus the dimensions that are batched over and contracted. Exactly
// one dimension is contracting and exactly one is free.
type MatmulTensorDescriptor struct {
	Tensor          TensorDescriptor
	BatchDims       []int64
	ContractingDims []int64
}

// MatmulTensorDescriptorFor builds an operand descriptor and checks that the
// batch and contracting dimensions are in range, disjoint, and leave a single
// free dimension.
func MatmulTensorDescriptorFor(t shape.PrimitiveType, dims, minorToMajor, batchDims, contractingDims []int64) (MatmulTensorDescriptor, error) {
	td, err := TensorDescriptorFor(t, dims, minorToMajor)
	if err != nil {
		return MatmulTensorDescriptor{}, err
	}
	if len(contractingDims) != 1 {
		return MatmulTensorDescriptor{}, fmt.Errorf("%w: matmul operand %s needs one contracting dimension, got %v", ErrInvalidArgument, td, contractingDims)
	}
	used := make([]bool, len(dims))
	for _, d := range slices.Concat(batchDims, contractingDims) {
		if d < 0 || int(d) >= len(dims) {
			return MatmulTensorDescriptor{}, fmt.Errorf("%w: dimension %d out of range for %s", ErrInvalidArgument, d, td)
		}
		if used[d] {
			return MatmulTensorDescriptor{}, fmt.Errorf("%w: dimension %d used twice in %s", ErrInvalidArgument, d, td)
		}
		used[d] = true
	}
	if free := len(dims) - len(batchDims) - len(contractingDims); free != 1 {
		return MatmulTensorDescriptor{}, fmt.Errorf("%w: matmul operand %s has %d free dimensions, want 1", ErrInvalidArgument, td, free)
	}
	return MatmulTensorDescriptor{
		Tensor:          td,
		BatchDims:       slices.Clone(batchDims),
		ContractingDims: slices.Clone(contractingDims),
	}, nil
}

// MatmulTensorDescriptorForShape is MatmulTensorDescriptorFor over a shape.
func MatmulTensorDescriptorForShape(s shape.Shape, batchDims, contractingDims []int64) (MatmulTensorDescriptor, error) {
	return MatmulTensorDescriptorFor(s.Element, s.Dims, s.MinorToMajor, batchDims, contractingDims)
}

// NonContractingDim returns the index of the free dimension.
func (d MatmulTensorDescriptor) NonContractingDim() int64 {
	for i := range d.Tensor.Dims {
		if !slices.Contains(d.BatchDims, int64(i)) && !slices.Contains(d.ContractingDims, int64(i)) {
			return int64(i)
		}
	}
	return -1
}

// BatchDimSizes returns the sizes of the batch dimensions in order.
func (d MatmulTensorDescriptor) BatchDimSizes() []int64 {
	out := make([]int64, len(d.BatchDims))
	for i, b := range d.BatchDims {
		out[i] = d.Tensor.Dims[b]
	}
	return out
}

// BatchSize is the product of the batch dimension sizes.
func (d MatmulTensorDescriptor) BatchSize() int64 {
	n := int64(1)
	for _, v := range d.BatchDimSizes() {
		n *= v
	}
	return n
}

func (d MatmulTensorDescriptor) ContractingSize() int64 {
	return d.Tensor.Dims[d.ContractingDims[0]]
}

func (d MatmulTensorDescriptor) NonContractingSize() int64 {
	return d.Tensor.Dims[d.NonContractingDim()]
}

// CompatibleDims orders the dimensions as batch..., rows, cols. The lhs
// operand is rows=free, cols=contracting; the rhs is the transpose.
func (d MatmulTensorDescriptor) CompatibleDims(isLhs bool) []int64 {
	return d.reorder(d.Tensor.Dims, isLhs)
}

// CompatibleStrides returns the element strides in CompatibleDims order.
func (d MatmulTensorDescriptor) CompatibleStrides(isLhs bool) []int64 {
	return d.reorder(d.Tensor.Strides(), isLhs)
}

func (d MatmulTensorDescriptor) reorder(v []int64, isLhs bool) []int64 {
	out := make([]int64, 0, len(v))
	for _, b := range d.BatchDims {
		out = append(out, v[b])
	}
	free, contracting := v[d.NonContractingDim()], v[d.ContractingDims[0]]
	if isLhs {
		return append(out, free, contracting)
	}
	return append(out, contracting, free)
}

func (d MatmulTensorDescriptor) String() string {
	return fmt.Sprintf("%s batch={%s} contracting={%s}", d.Tensor, formatDims(d.BatchDims), formatDims(d.ContractingDims))
}

// CheckBatchedMatmul verifies that lhs x rhs is well formed and produces a
// result with logical dimensions batch..., lhs free, rhs free.
func CheckBatchedMatmul(lhs, rhs MatmulTensorDescriptor, result []int64) error {
	lb, rb := lhs.BatchDimSizes(), rhs.BatchDimSizes()
	if !slices.Equal(lb, rb) {
		return fmt.Errorf("%w: batch dimensions %v and %v differ", ErrInvalidArgument, lb, rb)
	}
	if lk, rk := lhs.ContractingSize(), rhs.ContractingSize(); lk != rk {
		return fmt.Errorf("%w: contracting sizes %d and %d differ", ErrInvalidArgument, lk, rk)
	}
	want := append(slices.Clone(lb), lhs.NonContractingSize(), rhs.NonContractingSize())
	if !slices.Equal(want, result) {
		return fmt.Errorf("%w: matmul of %s and %s produces [%s], got [%s]", ErrInvalidArgument, lhs.Tensor, rhs.Tensor, formatDims(want), formatDims(result))
	}
	return nil
}

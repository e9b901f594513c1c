// Package dnn describes the device-side capabilities the fused attention
// layer consumes: tensor descriptors, algorithm descriptions, device memory,
// streams and the lazily materialised fused MHA kernels.
package dnn

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samcharles93/fmha/internal/shape"
)

// TensorDescriptor describes a dense device tensor.
type TensorDescriptor struct {
	Type         shape.PrimitiveType
	Dims         []int64
	MinorToMajor []int64
}

// TensorDescriptorFor validates and copies the tensor properties. An empty
// minorToMajor selects row-major.
func TensorDescriptorFor(t shape.PrimitiveType, dims, minorToMajor []int64) (TensorDescriptor, error) {
	s := shape.Shape{Element: t, Dims: dims, MinorToMajor: minorToMajor}
	if err := s.Validate(); err != nil {
		return TensorDescriptor{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return TensorDescriptor{
		Type:         t,
		Dims:         slices.Clone(dims),
		MinorToMajor: s.Layout(),
	}, nil
}

// TensorDescriptorForShape is TensorDescriptorFor over a shape.
func TensorDescriptorForShape(s shape.Shape) (TensorDescriptor, error) {
	return TensorDescriptorFor(s.Element, s.Dims, s.MinorToMajor)
}

func (d TensorDescriptor) Rank() int {
	return len(d.Dims)
}

func (d TensorDescriptor) NumElements() int64 {
	n := int64(1)
	for _, v := range d.Dims {
		n *= v
	}
	return n
}

// SizeInBytes is the dense storage size of the tensor.
func (d TensorDescriptor) SizeInBytes() uint64 {
	return uint64(d.NumElements()) * uint64(d.Type.ByteSize())
}

// Strides returns the element stride of each logical dimension.
func (d TensorDescriptor) Strides() []int64 {
	strides := make([]int64, len(d.Dims))
	stride := int64(1)
	layout := d.MinorToMajor
	if len(layout) == 0 {
		layout = shape.RowMajor(len(d.Dims))
	}
	for _, dim := range layout {
		strides[dim] = stride
		stride *= d.Dims[dim]
	}
	return strides
}

// BroadcastsTo reports whether every dimension of d equals the matching
// dimension of dims or is 1.
func (d TensorDescriptor) BroadcastsTo(dims []int64) bool {
	if len(d.Dims) != len(dims) {
		return false
	}
	for i, v := range d.Dims {
		if v != dims[i] && v != 1 {
			return false
		}
	}
	return true
}

func (d TensorDescriptor) String() string {
	return shape.Shape{Element: d.Type, Dims: d.Dims, MinorToMajor: d.MinorToMajor}.String()
}

func formatDims(v []int64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ",")
}

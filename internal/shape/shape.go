// Package shape holds the array shape vocabulary shared by descriptors and
// tensor descriptors: element types, dimensions with a minor-to-major layout,
// and dot dimension numbers.
package shape

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// PrimitiveType is the element type of an array.
type PrimitiveType int

const (
	Invalid PrimitiveType = iota
	PRED
	F16
	BF16
	F32
	F64
)

var primitiveNames = map[PrimitiveType]string{
	Invalid: "invalid",
	PRED:    "pred",
	F16:     "f16",
	BF16:    "bf16",
	F32:     "f32",
	F64:     "f64",
}

func (t PrimitiveType) String() string {
	if name, ok := primitiveNames[t]; ok {
		return name
	}
	return fmt.Sprintf("PrimitiveType(%d)", int(t))
}

// ByteSize returns the storage size of one element, or 0 for Invalid.
func (t PrimitiveType) ByteSize() int {
	switch t {
	case PRED:
		return 1
	case F16, BF16:
		return 2
	case F32:
		return 4
	case F64:
		return 8
	default:
		return 0
	}
}

// IsFloat reports whether t is a floating point type.
func (t PrimitiveType) IsFloat() bool {
	switch t {
	case F16, BF16, F32, F64:
		return true
	default:
		return false
	}
}

// ParsePrimitiveType accepts the lower-case names printed by String.
func ParsePrimitiveType(s string) (PrimitiveType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range primitiveNames {
		if t != Invalid && n == name {
			return t, nil
		}
	}
	return Invalid, fmt.Errorf("unknown element type %q", s)
}

// Shape is a dense array shape. An empty MinorToMajor means row-major.
type Shape struct {
	Element      PrimitiveType
	Dims         []int64
	MinorToMajor []int64
}

// Make returns a row-major shape.
func Make(t PrimitiveType, dims ...int64) Shape {
	return Shape{Element: t, Dims: slices.Clone(dims)}
}

// WithLayout returns a copy of s using the given minor-to-major order.
func (s Shape) WithLayout(minorToMajor ...int64) Shape {
	return Shape{
		Element:      s.Element,
		Dims:         slices.Clone(s.Dims),
		MinorToMajor: slices.Clone(minorToMajor),
	}
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s.Dims)
}

// Layout returns the minor-to-major order, defaulting to row-major.
func (s Shape) Layout() []int64 {
	if len(s.MinorToMajor) > 0 {
		return slices.Clone(s.MinorToMajor)
	}
	return RowMajor(len(s.Dims))
}

// NumElements returns the product of all dimensions.
func (s Shape) NumElements() int64 {
	n := int64(1)
	for _, d := range s.Dims {
		n *= d
	}
	return n
}

// Validate checks the element type, dimension sizes and layout permutation.
func (s Shape) Validate() error {
	if s.Element.ByteSize() == 0 {
		return fmt.Errorf("shape %s: invalid element type", s)
	}
	for i, d := range s.Dims {
		if d <= 0 {
			return fmt.Errorf("shape %s: dimension %d has size %d", s, i, d)
		}
	}
	if len(s.MinorToMajor) == 0 {
		return nil
	}
	return ValidatePermutation(s.MinorToMajor, len(s.Dims))
}

// Equal reports whether two shapes have the same type, dims and layout.
func (s Shape) Equal(o Shape) bool {
	return s.Element == o.Element &&
		slices.Equal(s.Dims, o.Dims) &&
		slices.Equal(s.Layout(), o.Layout())
}

// String formats the shape as f16[2,4,128,64]{3,2,1,0}.
func (s Shape) String() string {
	var b strings.Builder
	b.WriteString(s.Element.String())
	b.WriteByte('[')
	b.WriteString(joinInts(s.Dims))
	b.WriteByte(']')
	if len(s.Dims) > 0 {
		b.WriteByte('{')
		b.WriteString(joinInts(s.Layout()))
		b.WriteByte('}')
	}
	return b.String()
}

// RowMajor returns the minor-to-major order {rank-1, ..., 0}.
func RowMajor(rank int) []int64 {
	out := make([]int64, rank)
	for i := range out {
		out[i] = int64(rank - 1 - i)
	}
	return out
}

// ValidatePermutation checks that perm holds every dimension index below rank
// exactly once.
func ValidatePermutation(perm []int64, rank int) error {
	if len(perm) != rank {
		return fmt.Errorf("layout %v has %d entries, want %d", perm, len(perm), rank)
	}
	seen := make([]bool, rank)
	for _, p := range perm {
		if p < 0 || int(p) >= rank || seen[p] {
			return fmt.Errorf("layout %v is not a permutation of [0,%d)", perm, rank)
		}
		seen[p] = true
	}
	return nil
}

func joinInts(v []int64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatInt(x, 10)
	}
	return strings.Join(parts, ",")
}

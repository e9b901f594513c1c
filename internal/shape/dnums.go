package shape

import (
	"fmt"
	"slices"
)

// DotDimensionNumbers names the batch and contracting dimensions of both
// operands of a batched matrix multiply.
type DotDimensionNumbers struct {
	LhsBatchDims       []int64
	LhsContractingDims []int64
	RhsBatchDims       []int64
	RhsContractingDims []int64
}

// Clone returns a deep copy.
func (d DotDimensionNumbers) Clone() DotDimensionNumbers {
	return DotDimensionNumbers{
		LhsBatchDims:       slices.Clone(d.LhsBatchDims),
		LhsContractingDims: slices.Clone(d.LhsContractingDims),
		RhsBatchDims:       slices.Clone(d.RhsBatchDims),
		RhsContractingDims: slices.Clone(d.RhsContractingDims),
	}
}

func (d DotDimensionNumbers) String() string {
	return fmt.Sprintf("lhs_batch=%v lhs_contracting=%v rhs_batch=%v rhs_contracting=%v",
		d.LhsBatchDims, d.LhsContractingDims, d.RhsBatchDims, d.RhsContractingDims)
}

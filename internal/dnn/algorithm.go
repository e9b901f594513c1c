package dnn

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// AlgorithmDesc identifies one kernel implementation and its tuning.
type AlgorithmDesc struct {
	ID            int64
	TensorOps     bool
	WorkspaceSize *uint64
	TuningKnobs   map[int64]int64
}

// DefaultAlgorithm is used when a descriptor does not pin an algorithm.
func DefaultAlgorithm() AlgorithmDesc {
	return AlgorithmDesc{ID: 0, TensorOps: true}
}

// Workspace returns the scratch bytes the algorithm needs.
func (a AlgorithmDesc) Workspace() uint64 {
	if a.WorkspaceSize == nil {
		return 0
	}
	return *a.WorkspaceSize
}

func (a AlgorithmDesc) Clone() AlgorithmDesc {
	out := a
	if a.WorkspaceSize != nil {
		ws := *a.WorkspaceSize
		out.WorkspaceSize = &ws
	}
	out.TuningKnobs = maps.Clone(a.TuningKnobs)
	return out
}

func (a AlgorithmDesc) Equal(o AlgorithmDesc) bool {
	if a.ID != o.ID || a.TensorOps != o.TensorOps {
		return false
	}
	if (a.WorkspaceSize == nil) != (o.WorkspaceSize == nil) {
		return false
	}
	if a.WorkspaceSize != nil && *a.WorkspaceSize != *o.WorkspaceSize {
		return false
	}
	return maps.Equal(a.TuningKnobs, o.TuningKnobs)
}

func (a AlgorithmDesc) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", a.ID)
	if a.TensorOps {
		b.WriteString(",tensor_ops")
	}
	if a.WorkspaceSize != nil {
		fmt.Fprintf(&b, ",workspace=%d", *a.WorkspaceSize)
	}
	if len(a.TuningKnobs) > 0 {
		keys := slices.Sorted(maps.Keys(a.TuningKnobs))
		b.WriteString(",knobs={")
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%d:%d", k, a.TuningKnobs[k])
		}
		b.WriteByte('}')
	}
	return b.String()
}

// ProfileResult receives timing for one kernel execution.
type ProfileResult struct {
	Algorithm   AlgorithmDesc
	Elapsed     time.Duration
	ScratchSize uint64
	Valid       bool
}

// Record fills the result and marks it valid.
func (p *ProfileResult) Record(algo AlgorithmDesc, elapsed time.Duration, scratch uint64) {
	p.Algorithm = algo.Clone()
	p.Elapsed = elapsed
	p.ScratchSize = scratch
	p.Valid = true
}

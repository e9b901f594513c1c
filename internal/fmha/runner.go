package fmha

import (
	"fmt"

	"github.com/samcharles93/fmha/internal/dnn"
)

// Runner holds exactly one lazily built kernel of one family. The zero value
// is unselected and only exists before construction; every accessor panics
// on it. The family never changes once bound.
//
// A Runner is not safe for concurrent first use. Callers that share one
// serialise access or use a Thunk.
type Runner struct {
	// nil, or one of the four *dnn.LazyOpRunner instantiations.
	repr any
}

// NewRunner selects the kernel family for cfg.Kind and binds it to
// cfg.Algorithm. It panics if no family matches.
func NewRunner(cfg *Config) *Runner {
	r := &Runner{repr: createRepr(cfg)}
	if r.repr == nil {
		panic(fmt.Sprintf("fmha: cannot construct Runner for kind %s: no kernel family", cfg.Kind))
	}
	return r
}

// RunnerFrom wraps an existing lazy kernel of any family.
func RunnerFrom[A dnn.Args](lazy *dnn.LazyOpRunner[A]) *Runner {
	if lazy == nil {
		panic("fmha: cannot construct Runner from nil kernel runner")
	}
	return &Runner{repr: lazy}
}

func createRepr(cfg *Config) any {
	switch cfg.Kind.Family() {
	case FamilySoftmax:
		return dnn.NewSoftmaxRunner(cfg.Algorithm)
	case FamilyScaleBias:
		return dnn.NewScaleBiasSoftmaxRunner(cfg.Algorithm)
	case FamilyScaleMask:
		return dnn.NewScaleMaskSoftmaxRunner(cfg.Algorithm)
	case FamilyScaleBiasMask:
		return dnn.NewScaleBiasMaskSoftmaxRunner(cfg.Algorithm)
	default:
		return nil
	}
}

// Family returns the bound family, FamilyUnselected for the zero Runner.
func (r *Runner) Family() Family {
	switch r.repr.(type) {
	case *dnn.LazyOpRunner[dnn.SoftmaxArgs]:
		return FamilySoftmax
	case *dnn.LazyOpRunner[dnn.ScaleMaskSoftmaxArgs]:
		return FamilyScaleMask
	case *dnn.LazyOpRunner[dnn.ScaleBiasSoftmaxArgs]:
		return FamilyScaleBias
	case *dnn.LazyOpRunner[dnn.ScaleBiasMaskSoftmaxArgs]:
		return FamilyScaleBiasMask
	default:
		return FamilyUnselected
	}
}

// ToAlgorithmDesc returns the algorithm the kernel is bound to.
func (r *Runner) ToAlgorithmDesc() dnn.AlgorithmDesc {
	switch lazy := r.repr.(type) {
	case *dnn.LazyOpRunner[dnn.SoftmaxArgs]:
		return lazy.ToAlgorithmDesc()
	case *dnn.LazyOpRunner[dnn.ScaleMaskSoftmaxArgs]:
		return lazy.ToAlgorithmDesc()
	case *dnn.LazyOpRunner[dnn.ScaleBiasSoftmaxArgs]:
		return lazy.ToAlgorithmDesc()
	case *dnn.LazyOpRunner[dnn.ScaleBiasMaskSoftmaxArgs]:
		return lazy.ToAlgorithmDesc()
	default:
		panic("fmha: internal error: uninitialized runner in ToAlgorithmDesc")
	}
}

func (r *Runner) AsSoftmaxRunner() *dnn.LazyOpRunner[dnn.SoftmaxArgs] {
	return as[dnn.SoftmaxArgs](r, FamilySoftmax)
}

func (r *Runner) AsScaleMaskRunner() *dnn.LazyOpRunner[dnn.ScaleMaskSoftmaxArgs] {
	return as[dnn.ScaleMaskSoftmaxArgs](r, FamilyScaleMask)
}

func (r *Runner) AsScaleBiasRunner() *dnn.LazyOpRunner[dnn.ScaleBiasSoftmaxArgs] {
	return as[dnn.ScaleBiasSoftmaxArgs](r, FamilyScaleBias)
}

func (r *Runner) AsScaleBiasMaskRunner() *dnn.LazyOpRunner[dnn.ScaleBiasMaskSoftmaxArgs] {
	return as[dnn.ScaleBiasMaskSoftmaxArgs](r, FamilyScaleBiasMask)
}

func as[A dnn.Args](r *Runner, want Family) *dnn.LazyOpRunner[A] {
	lazy, ok := r.repr.(*dnn.LazyOpRunner[A])
	if !ok {
		panic(fmt.Sprintf("fmha: runner holds %s kernel, not %s", r.Family(), want))
	}
	return lazy
}

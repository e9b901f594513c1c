package dnn

import "fmt"

type kernelFactory[A Args] func(Support, Stream, AlgorithmDesc, FusedMHAOpConfig) (Kernel[A], error)

// LazyOpRunner binds an algorithm now and builds the kernel on first use.
// It is not safe for concurrent first use.
type LazyOpRunner[A Args] struct {
	desc   AlgorithmDesc
	create kernelFactory[A]
	kernel Kernel[A]
}

func NewSoftmaxRunner(desc AlgorithmDesc) *LazyOpRunner[SoftmaxArgs] {
	return &LazyOpRunner[SoftmaxArgs]{desc: desc.Clone(), create: Support.FusedMHASoftmaxRunnerFromDesc}
}

func NewScaleMaskSoftmaxRunner(desc AlgorithmDesc) *LazyOpRunner[ScaleMaskSoftmaxArgs] {
	return &LazyOpRunner[ScaleMaskSoftmaxArgs]{desc: desc.Clone(), create: Support.FusedMHAScaleMaskSoftmaxRunnerFromDesc}
}

func NewScaleBiasSoftmaxRunner(desc AlgorithmDesc) *LazyOpRunner[ScaleBiasSoftmaxArgs] {
	return &LazyOpRunner[ScaleBiasSoftmaxArgs]{desc: desc.Clone(), create: Support.FusedMHAScaleBiasSoftmaxRunnerFromDesc}
}

func NewScaleBiasMaskSoftmaxRunner(desc AlgorithmDesc) *LazyOpRunner[ScaleBiasMaskSoftmaxArgs] {
	return &LazyOpRunner[ScaleBiasMaskSoftmaxArgs]{desc: desc.Clone(), create: Support.FusedMHAScaleBiasMaskSoftmaxRunnerFromDesc}
}

// LazyFromKernel wraps an already built kernel.
func LazyFromKernel[A Args](k Kernel[A]) *LazyOpRunner[A] {
	return &LazyOpRunner[A]{desc: k.ToAlgorithmDesc(), kernel: k}
}

// ToAlgorithmDesc returns the bound algorithm, or the built kernel's.
func (r *LazyOpRunner[A]) ToAlgorithmDesc() AlgorithmDesc {
	if r.kernel != nil {
		return r.kernel.ToAlgorithmDesc()
	}
	return r.desc.Clone()
}

// Materialized reports whether the kernel has been built.
func (r *LazyOpRunner[A]) Materialized() bool {
	return r.kernel != nil
}

// GetOrCreateRunner returns the kernel, building it from the stream's DNN
// support on first call. Later calls return the same kernel regardless of
// cfg.
func (r *LazyOpRunner[A]) GetOrCreateRunner(cfg FusedMHAOpConfig, stream Stream) (Kernel[A], error) {
	if r.kernel != nil {
		return r.kernel, nil
	}
	if stream == nil {
		return nil, fmt.Errorf("%w: nil stream", ErrInvalidArgument)
	}
	support := stream.DNN()
	if support == nil {
		return nil, ErrNoDNNSupport
	}
	k, err := r.create(support, stream, r.desc.Clone(), cfg)
	if err != nil {
		return nil, err
	}
	r.kernel = k
	return k, nil
}

package fmha

import (
	"errors"
	"fmt"

	"github.com/samcharles93/fmha/internal/dnn"
	"github.com/samcharles93/fmha/internal/logger"
	"github.com/samcharles93/fmha/internal/shape"
)

// RunOptions are the optional inputs of RunFusedAttention.
type RunOptions struct {
	// ProfileResult receives timing when the device supports it. Only one
	// algorithm exists per family, so nothing here selects between results.
	ProfileResult *dnn.ProfileResult

	// RunnerCache is used instead of a fresh Runner. Its family must match
	// the config's kind.
	RunnerCache *Runner

	Logger logger.Logger
}

// RunFusedAttention enqueues the fused attention described by cfg on stream.
// Mask and bias buffers the kind does not use are ignored. It does not wait
// for the device.
func RunFusedAttention(cfg *Config, bufs Buffers, scratch dnn.DeviceMemory, stream dnn.Stream, opts RunOptions) error {
	if err := checkElementTypes(cfg); err != nil {
		return err
	}

	runner := opts.RunnerCache
	if runner == nil {
		runner = NewRunner(cfg)
	}

	if cfg.Mask == nil {
		bufs.Mask = dnn.DeviceMemory{}
	}
	if cfg.Bias == nil {
		bufs.Bias = dnn.DeviceMemory{}
	}
	params, err := ParamsFor(cfg, bufs)
	if err != nil {
		return err
	}

	if opts.Logger != nil {
		opts.Logger.Debug("enqueue fused mha",
			"kind", cfg.Kind.String(),
			"family", cfg.Kind.Family().String(),
			"algorithm", runner.ToAlgorithmDesc().String(),
		)
	}

	switch cfg.Kind.Family() {
	case FamilySoftmax:
		err = runFamily(runner.AsSoftmaxRunner(), params, stream, opts.ProfileResult, scratch, dnn.SoftmaxArgs{
			LhsBMM1: params.LhsBMM1,
			RhsBMM1: params.RhsBMM1,
			RhsBMM2: params.RhsBMM2,
			Output:  params.Output,
		})
	case FamilyScaleMask:
		err = runFamily(runner.AsScaleMaskRunner(), params, stream, opts.ProfileResult, scratch, dnn.ScaleMaskSoftmaxArgs{
			LhsBMM1: params.LhsBMM1,
			RhsBMM1: params.RhsBMM1,
			RhsBMM2: params.RhsBMM2,
			Mask:    *params.Mask,
			Output:  params.Output,
		})
	case FamilyScaleBias:
		err = runFamily(runner.AsScaleBiasRunner(), params, stream, opts.ProfileResult, scratch, dnn.ScaleBiasSoftmaxArgs{
			LhsBMM1: params.LhsBMM1,
			RhsBMM1: params.RhsBMM1,
			RhsBMM2: params.RhsBMM2,
			Bias:    *params.Bias,
			Output:  params.Output,
		})
	case FamilyScaleBiasMask:
		err = runFamily(runner.AsScaleBiasMaskRunner(), params, stream, opts.ProfileResult, scratch, dnn.ScaleBiasMaskSoftmaxArgs{
			LhsBMM1: params.LhsBMM1,
			RhsBMM1: params.RhsBMM1,
			RhsBMM2: params.RhsBMM2,
			Mask:    *params.Mask,
			Bias:    *params.Bias,
			Output:  params.Output,
		})
	default:
		return invalidConfig(fmt.Sprintf("unknown fmha kind %s", cfg.Kind), nil)
	}
	if err != nil {
		return err
	}

	if err := stream.Err(); err != nil {
		return newError(ErrExecution, "device reported failure after enqueue", err)
	}
	return nil
}

func runFamily[A dnn.Args](lazy *dnn.LazyOpRunner[A], params *Params, stream dnn.Stream, profile *dnn.ProfileResult, scratch dnn.DeviceMemory, args A) error {
	kernel, err := lazy.GetOrCreateRunner(params.Config.opConfig(), stream)
	if err != nil {
		return kernelError("create "+params.Config.Kind.Family().String()+" kernel", err)
	}
	if err := kernel.Run(stream, profile, scratch, args); err != nil {
		return kernelError("run "+params.Config.Kind.Family().String()+" kernel", err)
	}
	return nil
}

func kernelError(msg string, err error) error {
	if errors.Is(err, dnn.ErrUnsupported) || errors.Is(err, dnn.ErrNoDNNSupport) {
		return newError(ErrUnsupported, msg, err)
	}
	return newError(ErrExecution, msg, err)
}

func checkElementTypes(cfg *Config) error {
	if cfg.InputType != cfg.OutputType {
		return newError(ErrUnsupported, fmt.Sprintf("input type %s with output type %s", cfg.InputType, cfg.OutputType), nil)
	}
	switch cfg.InputType {
	case shape.F16, shape.BF16, shape.F32:
		return nil
	default:
		return newError(ErrUnsupported, fmt.Sprintf("element type %s", cfg.InputType), nil)
	}
}

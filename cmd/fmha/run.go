package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fmha/internal/backend"
	"github.com/samcharles93/fmha/internal/backend/host"
	"github.com/samcharles93/fmha/internal/descfile"
	"github.com/samcharles93/fmha/internal/dnn"
	"github.com/samcharles93/fmha/internal/fmha"
	"github.com/samcharles93/fmha/internal/logger"
	"github.com/samcharles93/fmha/internal/shape"
)

type runOptions struct {
	File       string
	Kind       string
	Dims       fmha.AttentionDims
	DType      string
	Scale      float64
	Dropout    float64
	Seed       int64
	Iterations int64
	Backend    string
	Workers    int
	Profile    bool
}

type runResult struct {
	Backend  string
	Config   *fmha.Config
	Elapsed  time.Duration
	Profiled time.Duration
	Checksum float64
	MeanAbs  float64
}

func runCmd() *cli.Command {
	var (
		kind       string
		dtype      string
		batch      int64
		heads      int64
		qLen       int64
		kvLen      int64
		headDim    int64
		scale      float64
		dropout    float64
		seed       int64
		iterations int64
		profile    bool
	)

	return &cli.Command{
		Name:      "run",
		Usage:     "Run a fused attention on random inputs",
		ArgsUsage: "[descriptor file]",
		Flags: append(backendFlags(),
			&cli.StringFlag{
				Name:        "kind",
				Usage:       "attention kind when no descriptor file is given",
				Value:       fmha.ScaleBiasMaskSoftmax.String(),
				Destination: &kind,
			},
			&cli.StringFlag{
				Name:        "dtype",
				Usage:       "element type (f16, bf16, f32)",
				Value:       "f16",
				Destination: &dtype,
			},
			&cli.Int64Flag{Name: "batch", Value: 2, Destination: &batch},
			&cli.Int64Flag{Name: "heads", Value: 4, Destination: &heads},
			&cli.Int64Flag{Name: "q-len", Value: 64, Destination: &qLen},
			&cli.Int64Flag{Name: "kv-len", Value: 64, Destination: &kvLen},
			&cli.Int64Flag{Name: "head-dim", Value: 32, Destination: &headDim},
			&cli.Float64Flag{
				Name:        "scale",
				Usage:       "score scale (0 = 1/sqrt(head-dim))",
				Destination: &scale,
			},
			&cli.Float64Flag{
				Name:        "dropout",
				Usage:       "dropout rate for dropout kinds",
				Value:       0.1,
				Destination: &dropout,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "seed for inputs and dropout",
				Value:       42,
				Destination: &seed,
			},
			&cli.Int64Flag{
				Name:        "iterations",
				Aliases:     []string{"n"},
				Value:       1,
				Destination: &iterations,
			},
			&cli.BoolFlag{
				Name:        "profile",
				Usage:       "record kernel timing for the last iteration",
				Destination: &profile,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := LoadConfig()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			applyRunConfig(cmd, cfg, &iterations, &seed)

			opts := runOptions{
				File:  cmd.Args().First(),
				Kind:  kind,
				DType: dtype,
				Dims: fmha.AttentionDims{
					Batch:    batch,
					Heads:    heads,
					QSeqLen:  qLen,
					KVSeqLen: kvLen,
					HeadDim:  headDim,
				},
				Scale:      scale,
				Dropout:    dropout,
				Seed:       seed,
				Iterations: iterations,
				Backend:    backendName,
				Workers:    int(workers),
				Profile:    profile,
			}
			res, err := runAttention(ctx, opts)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			printRunResult(os.Stdout, opts, res)
			return nil
		},
	}
}

func (o runOptions) descriptor() (fmha.Descriptor, error) {
	if o.File != "" {
		return descfile.Load(o.File)
	}
	kind, err := fmha.ParseKind(o.Kind)
	if err != nil {
		return fmha.Descriptor{}, err
	}
	elem, err := shape.ParsePrimitiveType(o.DType)
	if err != nil {
		return fmha.Descriptor{}, err
	}
	scale := o.Scale
	if scale == 0 && o.Dims.HeadDim > 0 {
		scale = 1 / math.Sqrt(float64(o.Dims.HeadDim))
	}
	return fmha.CanonicalDescriptor(kind, o.Dims, elem, fmha.BackendConfig{
		Scale:       scale,
		DropoutRate: o.Dropout,
		Seed:        o.Seed,
	}), nil
}

// runAttention resolves the descriptor, fills every input with values drawn
// from o.Seed and executes it o.Iterations times on a fresh device.
func runAttention(ctx context.Context, o runOptions) (runResult, error) {
	log := logger.FromContext(ctx)

	desc, err := o.descriptor()
	if err != nil {
		return runResult{}, err
	}
	cfg, err := fmha.ConfigFor(desc)
	if err != nil {
		return runResult{}, err
	}
	if o.Iterations <= 0 {
		o.Iterations = 1
	}

	dev, name, err := backend.Open(o.Backend, backend.Options{Workers: o.Workers, Logger: log})
	if err != nil {
		return runResult{}, err
	}
	defer func() { _ = dev.Close() }()
	log.Info("running fused attention",
		"kind", cfg.Kind.String(),
		"backend", name,
		"device", dev.ID(),
		"iterations", o.Iterations,
	)

	rng := rand.New(rand.NewPCG(uint64(o.Seed), 0))
	bufs, err := randomBuffers(cfg, rng)
	if err != nil {
		return runResult{}, err
	}
	scratch := host.Alloc(cfg.Algorithm.Workspace())

	thunk := fmha.NewThunk(cfg, log)
	var profile *dnn.ProfileResult
	start := time.Now()
	for i := range o.Iterations {
		if err := ctx.Err(); err != nil {
			return runResult{}, err
		}
		if o.Profile && i == o.Iterations-1 {
			profile = &dnn.ProfileResult{}
		}
		if err := thunk.ExecuteOnStream(dev, bufs, scratch, profile); err != nil {
			return runResult{}, err
		}
	}
	if err := dev.Synchronize(); err != nil {
		return runResult{}, err
	}
	res := runResult{
		Backend: name,
		Config:  cfg,
		Elapsed: time.Since(start),
	}
	if profile != nil && profile.Valid {
		res.Profiled = profile.Elapsed
	}

	out, err := host.Floats(bufs.Output, cfg.OutputType)
	if err != nil {
		return runResult{}, err
	}
	for _, v := range out {
		res.Checksum += float64(v)
		res.MeanAbs += math.Abs(float64(v))
	}
	if len(out) > 0 {
		res.MeanAbs /= float64(len(out))
	}
	return res, nil
}

// randomBuffers allocates every buffer cfg uses. Operands are uniform in
// [-1, 1), the mask keeps nine keys in ten, bias is uniform in [-0.5, 0.5).
func randomBuffers(cfg *fmha.Config, rng *rand.Rand) (fmha.Buffers, error) {
	fill := func(desc dnn.TensorDescriptor, gen func() float32) (dnn.DeviceMemory, error) {
		vals := make([]float32, desc.NumElements())
		for i := range vals {
			vals[i] = gen()
		}
		return host.FromFloats(desc.Type, vals)
	}
	uniform := func() float32 { return rng.Float32()*2 - 1 }

	var bufs fmha.Buffers
	var err error
	if bufs.LhsBMM1, err = fill(cfg.LhsBMM1.Tensor, uniform); err != nil {
		return bufs, err
	}
	if bufs.RhsBMM1, err = fill(cfg.RhsBMM1.Tensor, uniform); err != nil {
		return bufs, err
	}
	if bufs.RhsBMM2, err = fill(cfg.RhsBMM2.Tensor, uniform); err != nil {
		return bufs, err
	}
	if cfg.Mask != nil {
		keep := func() float32 {
			if rng.Float32() < 0.9 {
				return 1
			}
			return 0
		}
		if bufs.Mask, err = fill(*cfg.Mask, keep); err != nil {
			return bufs, err
		}
	}
	if cfg.Bias != nil {
		if bufs.Bias, err = fill(*cfg.Bias, func() float32 { return rng.Float32() - 0.5 }); err != nil {
			return bufs, err
		}
	}
	bufs.Output = host.Alloc(cfg.Output.SizeInBytes())
	return bufs, nil
}

func printRunResult(w io.Writer, o runOptions, res runResult) {
	_, _ = fmt.Fprintf(w, "kind:       %s\n", res.Config.Kind)
	_, _ = fmt.Fprintf(w, "backend:    %s\n", res.Backend)
	_, _ = fmt.Fprintf(w, "output:     %s\n", res.Config.Output)
	_, _ = fmt.Fprintf(w, "iterations: %d\n", max(o.Iterations, 1))
	_, _ = fmt.Fprintf(w, "elapsed:    %s\n", res.Elapsed.Round(time.Microsecond))
	if res.Profiled > 0 {
		_, _ = fmt.Fprintf(w, "kernel:     %s\n", res.Profiled.Round(time.Microsecond))
	}
	_, _ = fmt.Fprintf(w, "checksum:   %.6f\n", res.Checksum)
	_, _ = fmt.Fprintf(w, "mean |out|: %.6f\n", res.MeanAbs)
}

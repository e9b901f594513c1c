package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/samcharles93/fmha/internal/fmha"
)

func smallRun(kind fmha.Kind) runOptions {
	return runOptions{
		Kind:  kind.String(),
		DType: "f32",
		Dims: fmha.AttentionDims{
			Batch:    2,
			Heads:    2,
			QSeqLen:  4,
			KVSeqLen: 6,
			HeadDim:  8,
		},
		Dropout:    0.2,
		Seed:       3,
		Iterations: 2,
		Backend:    "cpu",
	}
}

func TestRunAttentionDeterministic(t *testing.T) {
	t.Parallel()

	for _, kind := range fmha.Kinds() {
		t.Run(kind.String(), func(t *testing.T) {
			t.Parallel()

			one := smallRun(kind)
			one.Workers = 1
			many := smallRun(kind)
			many.Workers = 4

			a, err := runAttention(context.Background(), one)
			if err != nil {
				t.Fatalf("runAttention: %v", err)
			}
			b, err := runAttention(context.Background(), many)
			if err != nil {
				t.Fatalf("runAttention: %v", err)
			}
			if a.Checksum != b.Checksum {
				t.Fatalf("checksum differs across worker counts: %v vs %v", a.Checksum, b.Checksum)
			}
			if a.Backend != "cpu" {
				t.Fatalf("backend = %q", a.Backend)
			}
			if a.Config.Kind != kind {
				t.Fatalf("kind = %s", a.Config.Kind)
			}
		})
	}
}

func TestRunAttentionFromFile(t *testing.T) {
	t.Parallel()

	res, err := runAttention(context.Background(), runOptions{
		File:    "../../internal/descfile/testdata/softmax.json",
		Backend: "auto",
		Seed:    1,
	})
	if err != nil {
		t.Fatalf("runAttention: %v", err)
	}
	if res.Config.Kind != fmha.Softmax {
		t.Fatalf("kind = %s, want softmax", res.Config.Kind)
	}
	if res.MeanAbs == 0 {
		t.Fatalf("expected non-zero output")
	}
}

func TestRunAttentionErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mut  func(*runOptions)
		want string
	}{
		{name: "unknown kind", mut: func(o *runOptions) { o.Kind = "flash" }, want: "flash"},
		{name: "unknown dtype", mut: func(o *runOptions) { o.DType = "f8" }, want: "f8"},
		{name: "unknown backend", mut: func(o *runOptions) { o.Backend = "tpu" }, want: "unknown backend"},
		{name: "cuda", mut: func(o *runOptions) { o.Backend = "cuda" }, want: "cuda"},
		{name: "dropout out of range", mut: func(o *runOptions) {
			o.Kind = fmha.SoftmaxDropout.String()
			o.Dropout = 1.5
		}, want: "dropout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			o := smallRun(fmha.ScaleBiasMaskSoftmax)
			tt.mut(&o)
			_, err := runAttention(context.Background(), o)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestRunAttentionCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runAttention(ctx, smallRun(fmha.Softmax))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestPrintRunResult(t *testing.T) {
	t.Parallel()

	o := smallRun(fmha.ScaleMaskSoftmax)
	res, err := runAttention(context.Background(), o)
	if err != nil {
		t.Fatalf("runAttention: %v", err)
	}
	var buf bytes.Buffer
	printRunResult(&buf, o, res)
	out := buf.String()
	for _, want := range []string{"kind:       scale_mask_softmax", "backend:    cpu", "iterations: 2", "checksum:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

package fmha

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/samcharles93/fmha/internal/dnn"
	"github.com/samcharles93/fmha/internal/shape"
)

func TestConfigOptionalFieldsFollowKind(t *testing.T) {
	t.Parallel()

	for _, kind := range Kinds() {
		cfg, err := ConfigFor(testDescriptor(kind))
		if err != nil {
			t.Fatalf("ConfigFor(%s): %v", kind, err)
		}
		req := kind.Requirements()
		if (cfg.Mask != nil) != req.Mask {
			t.Fatalf("%s: mask present = %v, want %v", kind, cfg.Mask != nil, req.Mask)
		}
		if (cfg.Bias != nil) != req.Bias {
			t.Fatalf("%s: bias present = %v, want %v", kind, cfg.Bias != nil, req.Bias)
		}
		if (cfg.DropoutRate != nil) != req.Dropout || (cfg.Seed != nil) != req.Dropout {
			t.Fatalf("%s: dropout present = %v/%v, want %v", kind, cfg.DropoutRate != nil, cfg.Seed != nil, req.Dropout)
		}
		if (cfg.Scale != nil) != req.Scale {
			t.Fatalf("%s: scale present = %v, want %v", kind, cfg.Scale != nil, req.Scale)
		}
		if cfg.Kind != kind || cfg.InputType != shape.F16 || cfg.OutputType != shape.F16 {
			t.Fatalf("%s: header = %s/%s/%s", kind, cfg.Kind, cfg.InputType, cfg.OutputType)
		}
	}
}

func TestConfigScaleMaskSoftmaxDropout(t *testing.T) {
	t.Parallel()

	cfg, err := ConfigFor(testDescriptor(ScaleMaskSoftmaxDropout))
	if err != nil {
		t.Fatalf("ConfigFor: %v", err)
	}
	if cfg.Mask == nil || cfg.Bias != nil {
		t.Fatalf("mask=%v bias=%v, want mask only", cfg.Mask, cfg.Bias)
	}
	if *cfg.DropoutRate != 0.1 || *cfg.Seed != 7 || *cfg.Scale != 0.125 {
		t.Fatalf("dropout=%v seed=%v scale=%v", *cfg.DropoutRate, *cfg.Seed, *cfg.Scale)
	}
}

func TestConfigDefaultAndPinnedAlgorithm(t *testing.T) {
	t.Parallel()

	cfg, err := ConfigFor(testDescriptor(Softmax))
	if err != nil {
		t.Fatalf("ConfigFor: %v", err)
	}
	if !cfg.Algorithm.Equal(dnn.DefaultAlgorithm()) {
		t.Fatalf("algorithm = %s, want default", cfg.Algorithm)
	}

	ws := uint64(1 << 20)
	pinned := dnn.AlgorithmDesc{ID: 3, WorkspaceSize: &ws}
	desc := testDescriptor(Softmax)
	desc.BackendConfig.Algorithm = &pinned
	cfg, err = ConfigFor(desc)
	if err != nil {
		t.Fatalf("ConfigFor: %v", err)
	}
	if !cfg.Algorithm.Equal(pinned) {
		t.Fatalf("algorithm = %s, want %s", cfg.Algorithm, pinned)
	}
	ws = 0
	if cfg.Algorithm.Workspace() != 1<<20 {
		t.Fatal("config aliases the descriptor's workspace size")
	}
}

func TestConfigForRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Descriptor)
	}{
		{name: "unknown kind", mutate: func(d *Descriptor) { d.Kind = KindInvalid }},
		{name: "kind out of range", mutate: func(d *Descriptor) { d.Kind = Kind(99) }},
		{name: "contracting mismatch", mutate: func(d *Descriptor) { d.RhsBMM1 = shape.Make(shape.F16, 2, 4, 16, 16) }},
		{name: "batch mismatch", mutate: func(d *Descriptor) { d.RhsBMM1 = shape.Make(shape.F16, 3, 4, 16, 32) }},
		{name: "intermediate mismatch", mutate: func(d *Descriptor) { d.IntermediateLhsBMM2 = shape.Make(shape.F16, 2, 4, 8, 8) }},
		{name: "output mismatch", mutate: func(d *Descriptor) { d.Output = shape.Make(shape.F16, 2, 4, 8, 16) }},
		{name: "two contracting dims", mutate: func(d *Descriptor) { d.BMM1.LhsContractingDims = []int64{2, 3} }},
		{name: "bad layout", mutate: func(d *Descriptor) { d.LhsBMM1 = d.LhsBMM1.WithLayout(0, 0, 1, 2) }},
		{name: "missing mask", mutate: func(d *Descriptor) { d.Mask = nil }},
		{name: "missing bias", mutate: func(d *Descriptor) { d.Bias = nil }},
		{name: "mask not broadcastable", mutate: func(d *Descriptor) {
			m := shape.Make(shape.F16, 2, 1, 8, 8)
			d.Mask = &m
		}},
		{name: "dropout rate one", mutate: func(d *Descriptor) { d.BackendConfig.DropoutRate = 1 }},
		{name: "negative dropout", mutate: func(d *Descriptor) { d.BackendConfig.DropoutRate = -0.5 }},
		{name: "nan scale", mutate: func(d *Descriptor) { d.BackendConfig.Scale = math.NaN() }},
	}
	for _, tt := range tests {
		desc := testDescriptor(ScaleBiasMaskSoftmaxDropout)
		tt.mutate(&desc)
		cfg, err := ConfigFor(desc)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: error = %v, want ErrInvalidConfig", tt.name, err)
		}
		if cfg != nil {
			t.Fatalf("%s: partial config returned", tt.name)
		}
	}
}

func TestConfigIgnoresUnusedShapes(t *testing.T) {
	t.Parallel()

	desc := testDescriptor(Softmax)
	mask := shape.Make(shape.F16, 1, 1, 1, 1)
	desc.Mask = &mask
	cfg, err := ConfigFor(desc)
	if err != nil {
		t.Fatalf("ConfigFor: %v", err)
	}
	if cfg.Mask != nil {
		t.Fatal("softmax config should not carry a mask")
	}
}

func TestConfigStringReadable(t *testing.T) {
	t.Parallel()

	cfg, err := ConfigFor(testDescriptor(ScaleBiasMaskSoftmaxDropout))
	if err != nil {
		t.Fatalf("ConfigFor: %v", err)
	}
	got := cfg.String()
	for _, want := range []string{
		"kind=scale_bias_mask_softmax_dropout",
		"input=f16",
		"scale=0.125",
		"dropout=0.1",
		"seed=7",
		"mask=f16[2,1,8,16]",
		"bias=f16[1,4,8,16]",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("String() = %q, missing %q", got, want)
		}
	}

	plain, _ := ConfigFor(testDescriptor(Softmax))
	if s := plain.String(); strings.Contains(s, "mask=") || strings.Contains(s, "dropout=") {
		t.Fatalf("softmax String() = %q, should omit absent fields", s)
	}
}

func TestOpConfig(t *testing.T) {
	t.Parallel()

	bmm, _ := ConfigFor(testDescriptor(BmmBmm))
	if op := bmm.opConfig(); !op.BMMOnly || op.Scale != 1 {
		t.Fatalf("bmm_bmm op config = %+v", op)
	}
	sbm, _ := ConfigFor(testDescriptor(ScaleBiasMaskSoftmax))
	op := sbm.opConfig()
	if op.BMMOnly || op.Scale != 0.125 || op.Mask == nil || op.Bias == nil || op.DropoutRate != nil {
		t.Fatalf("scale_bias_mask_softmax op config = %+v", op)
	}
}

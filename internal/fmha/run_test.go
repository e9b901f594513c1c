package fmha

import (
	"bytes"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/samcharles93/fmha/internal/dnn"
	"github.com/samcharles93/fmha/internal/logger"
	"github.com/samcharles93/fmha/internal/shape"
)

func TestRunSoftmaxIgnoresMaskAndBias(t *testing.T) {
	t.Parallel()

	cfg, err := ConfigFor(testDescriptor(Softmax))
	if err != nil {
		t.Fatalf("ConfigFor: %v", err)
	}
	if cfg.Mask != nil || cfg.Bias != nil || cfg.DropoutRate != nil || cfg.Seed != nil {
		t.Fatal("softmax config should carry no optional fields")
	}
	r := NewRunner(cfg)
	if r.Family() != FamilySoftmax {
		t.Fatalf("family = %s, want softmax", r.Family())
	}

	stream := &recordingStream{}
	tb := newTestBuffers()
	if err := RunFusedAttention(cfg, tb.bufs, dnn.DeviceMemory{}, stream, RunOptions{RunnerCache: r}); err != nil {
		t.Fatalf("RunFusedAttention: %v", err)
	}
	if len(stream.calls) != 1 {
		t.Fatalf("kernel launches = %d, want 1", len(stream.calls))
	}
	got, ok := stream.calls[0].args.(dnn.SoftmaxArgs)
	if !ok {
		t.Fatalf("kernel args = %T, want dnn.SoftmaxArgs", stream.calls[0].args)
	}
	want := dnn.SoftmaxArgs{
		LhsBMM1: tb.bufs.LhsBMM1,
		RhsBMM1: tb.bufs.RhsBMM1,
		RhsBMM2: tb.bufs.RhsBMM2,
		Output:  tb.bufs.Output,
	}
	if got != want {
		t.Fatalf("kernel args = %+v, want %+v", got, want)
	}
}

func TestRunDispatchesEveryKind(t *testing.T) {
	t.Parallel()

	wantArgs := map[Family]reflect.Type{
		FamilySoftmax:       reflect.TypeFor[dnn.SoftmaxArgs](),
		FamilyScaleMask:     reflect.TypeFor[dnn.ScaleMaskSoftmaxArgs](),
		FamilyScaleBias:     reflect.TypeFor[dnn.ScaleBiasSoftmaxArgs](),
		FamilyScaleBiasMask: reflect.TypeFor[dnn.ScaleBiasMaskSoftmaxArgs](),
	}
	tb := newTestBuffers()
	for _, kind := range Kinds() {
		cfg, err := ConfigFor(testDescriptor(kind))
		if err != nil {
			t.Fatalf("ConfigFor(%s): %v", kind, err)
		}
		stream := &recordingStream{}
		if err := RunFusedAttention(cfg, tb.forConfig(cfg), dnn.DeviceMemory{}, stream, RunOptions{}); err != nil {
			t.Fatalf("%s: RunFusedAttention: %v", kind, err)
		}
		if len(stream.calls) != 1 {
			t.Fatalf("%s: launches = %d, want 1", kind, len(stream.calls))
		}
		if got := reflect.TypeOf(stream.calls[0].args); got != wantArgs[kind.Family()] {
			t.Fatalf("%s: args type = %s, want %s", kind, got, wantArgs[kind.Family()])
		}
		op := stream.built[0]
		if (op.DropoutRate != nil) != kind.Requirements().Dropout {
			t.Fatalf("%s: dropout forwarded = %v", kind, op.DropoutRate != nil)
		}
		if op.BMMOnly != (kind == BmmBmm) {
			t.Fatalf("%s: bmm only = %v", kind, op.BMMOnly)
		}
	}
}

func TestRunForwardsMaskAndBias(t *testing.T) {
	t.Parallel()

	cfg, err := ConfigFor(testDescriptor(ScaleBiasMaskSoftmaxDropout))
	if err != nil {
		t.Fatalf("ConfigFor: %v", err)
	}
	stream := &recordingStream{}
	tb := newTestBuffers()
	if err := RunFusedAttention(cfg, tb.bufs, dnn.DeviceMemory{}, stream, RunOptions{}); err != nil {
		t.Fatalf("RunFusedAttention: %v", err)
	}
	got := stream.calls[0].args.(dnn.ScaleBiasMaskSoftmaxArgs)
	if !got.Mask.IsSameAs(tb.bufs.Mask) || !got.Bias.IsSameAs(tb.bufs.Bias) {
		t.Fatalf("mask/bias not forwarded: %+v", got)
	}
	op := stream.built[0]
	if op.Scale != 0.125 || *op.DropoutRate != 0.1 || *op.Seed != 7 {
		t.Fatalf("op config scale=%v dropout=%v seed=%v", op.Scale, *op.DropoutRate, *op.Seed)
	}
}

func TestRunMissingRequiredBuffer(t *testing.T) {
	t.Parallel()

	cfg, _ := ConfigFor(testDescriptor(ScaleMaskSoftmax))
	stream := &recordingStream{}
	bufs := newTestBuffers().bufs
	bufs.Mask = dnn.DeviceMemory{}
	err := RunFusedAttention(cfg, bufs, dnn.DeviceMemory{}, stream, RunOptions{})
	if !errors.Is(err, ErrInconsistentBinding) {
		t.Fatalf("error = %v, want ErrInconsistentBinding", err)
	}
	if len(stream.calls) != 0 {
		t.Fatal("kernel launched despite binding failure")
	}
}

func TestRunTwiceEnqueuesTwice(t *testing.T) {
	t.Parallel()

	cfg, _ := ConfigFor(testDescriptor(ScaleBiasSoftmax))
	before := cfg.String()
	stream := &recordingStream{}
	tb := newTestBuffers()
	bufs := tb.forConfig(cfg)
	r := NewRunner(cfg)
	for range 2 {
		if err := RunFusedAttention(cfg, bufs, dnn.DeviceMemory{}, stream, RunOptions{RunnerCache: r}); err != nil {
			t.Fatalf("RunFusedAttention: %v", err)
		}
	}
	if len(stream.calls) != 2 {
		t.Fatalf("launches = %d, want 2", len(stream.calls))
	}
	if stream.builds != 1 {
		t.Fatalf("kernel built %d times with a cached runner, want 1", stream.builds)
	}
	if stream.calls[0].args != stream.calls[1].args {
		t.Fatal("second launch saw different buffers")
	}
	if cfg.String() != before {
		t.Fatal("config changed across runs")
	}
}

func TestRunWithoutCacheBuildsEachTime(t *testing.T) {
	t.Parallel()

	cfg, _ := ConfigFor(testDescriptor(Softmax))
	stream := &recordingStream{}
	bufs := newTestBuffers().forConfig(cfg)
	for range 2 {
		if err := RunFusedAttention(cfg, bufs, dnn.DeviceMemory{}, stream, RunOptions{}); err != nil {
			t.Fatalf("RunFusedAttention: %v", err)
		}
	}
	if stream.builds != 2 {
		t.Fatalf("builds = %d, want 2", stream.builds)
	}
}

func TestRunMismatchedRunnerCachePanics(t *testing.T) {
	t.Parallel()

	softmax, _ := ConfigFor(testDescriptor(Softmax))
	masked, _ := ConfigFor(testDescriptor(ScaleMaskSoftmax))
	bufs := newTestBuffers().forConfig(masked)
	mustPanic(t, "mismatched cache", func() {
		_ = RunFusedAttention(masked, bufs, dnn.DeviceMemory{}, &recordingStream{}, RunOptions{RunnerCache: NewRunner(softmax)})
	})
}

func TestRunErrorTaxonomy(t *testing.T) {
	t.Parallel()

	cfg, _ := ConfigFor(testDescriptor(Softmax))
	bufs := newTestBuffers().forConfig(cfg)
	launchErr := errors.New("launch failed")
	deviceErr := errors.New("device lost")

	tests := []struct {
		name   string
		stream *recordingStream
		want   []error
	}{
		{name: "no dnn", stream: &recordingStream{noDNN: true}, want: []error{ErrUnsupported, dnn.ErrNoDNNSupport}},
		{name: "unsupported algorithm", stream: &recordingStream{buildErr: dnn.ErrUnsupported}, want: []error{ErrUnsupported, dnn.ErrUnsupported}},
		{name: "launch failure", stream: &recordingStream{runErr: launchErr}, want: []error{ErrExecution, launchErr}},
		{name: "device failure", stream: &recordingStream{err: deviceErr}, want: []error{ErrExecution, deviceErr}},
	}
	for _, tt := range tests {
		err := RunFusedAttention(cfg, bufs, dnn.DeviceMemory{}, tt.stream, RunOptions{})
		for _, want := range tt.want {
			if !errors.Is(err, want) {
				t.Fatalf("%s: error = %v, want %v in chain", tt.name, err, want)
			}
		}
	}
}

func TestRunRejectsElementTypes(t *testing.T) {
	t.Parallel()

	desc := testDescriptor(Softmax)
	desc.Output.Element = shape.F32
	cfg, err := ConfigFor(desc)
	if err != nil {
		t.Fatalf("ConfigFor: %v", err)
	}
	err = RunFusedAttention(cfg, newTestBuffers().forConfig(cfg), dnn.DeviceMemory{}, &recordingStream{}, RunOptions{})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("mixed types error = %v, want ErrUnsupported", err)
	}

	f64 := CanonicalDescriptor(Softmax, testDims, shape.F64, BackendConfig{})
	cfg, err = ConfigFor(f64)
	if err != nil {
		t.Fatalf("ConfigFor(f64): %v", err)
	}
	err = RunFusedAttention(cfg, newTestBuffers().forConfig(cfg), dnn.DeviceMemory{}, &recordingStream{}, RunOptions{})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("f64 error = %v, want ErrUnsupported", err)
	}
}

func TestRunForwardsProfileSlot(t *testing.T) {
	t.Parallel()

	cfg, _ := ConfigFor(testDescriptor(Softmax))
	stream := &recordingStream{}
	var profile dnn.ProfileResult
	if err := RunFusedAttention(cfg, newTestBuffers().forConfig(cfg), dnn.DeviceMemory{}, stream, RunOptions{ProfileResult: &profile}); err != nil {
		t.Fatalf("RunFusedAttention: %v", err)
	}
	if !stream.calls[0].profile {
		t.Fatal("profile slot not forwarded to the kernel")
	}
}

func TestRunLogsEnqueue(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := logger.New(&buf, logger.FormatText, slog.LevelDebug)
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	cfg, _ := ConfigFor(testDescriptor(ScaleMaskSoftmax))
	if err := RunFusedAttention(cfg, newTestBuffers().forConfig(cfg), dnn.DeviceMemory{}, &recordingStream{}, RunOptions{Logger: log}); err != nil {
		t.Fatalf("RunFusedAttention: %v", err)
	}
	if !strings.Contains(buf.String(), "family=scale_mask_softmax") {
		t.Fatalf("log output = %q, want family attribute", buf.String())
	}
}

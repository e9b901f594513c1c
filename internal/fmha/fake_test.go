package fmha

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/samcharles93/fmha/internal/dnn"
	"github.com/samcharles93/fmha/internal/shape"
)

// call is one recorded kernel launch.
type call struct {
	family  string
	args    any
	profile bool
}

type recordingStream struct {
	mu       sync.Mutex
	calls    []call
	builds   int
	built    []dnn.FusedMHAOpConfig
	err      error
	runErr   error
	buildErr error
	noDNN    bool
}

func (s *recordingStream) DNN() dnn.Support {
	if s.noDNN {
		return nil
	}
	return recordingSupport{s}
}

func (s *recordingStream) Err() error { return s.err }

func (s *recordingStream) record(family string, args any, profile *dnn.ProfileResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runErr != nil {
		return s.runErr
	}
	s.calls = append(s.calls, call{family: family, args: args, profile: profile != nil})
	return nil
}

type recordingSupport struct {
	s *recordingStream
}

func (r recordingSupport) build(cfg dnn.FusedMHAOpConfig) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.buildErr != nil {
		return r.s.buildErr
	}
	r.s.builds++
	r.s.built = append(r.s.built, cfg)
	return nil
}

func (r recordingSupport) FusedMHASoftmaxRunnerFromDesc(_ dnn.Stream, desc dnn.AlgorithmDesc, cfg dnn.FusedMHAOpConfig) (dnn.Kernel[dnn.SoftmaxArgs], error) {
	if err := r.build(cfg); err != nil {
		return nil, err
	}
	return &recordingKernel[dnn.SoftmaxArgs]{family: "softmax", desc: desc}, nil
}

func (r recordingSupport) FusedMHAScaleMaskSoftmaxRunnerFromDesc(_ dnn.Stream, desc dnn.AlgorithmDesc, cfg dnn.FusedMHAOpConfig) (dnn.Kernel[dnn.ScaleMaskSoftmaxArgs], error) {
	if err := r.build(cfg); err != nil {
		return nil, err
	}
	return &recordingKernel[dnn.ScaleMaskSoftmaxArgs]{family: "scale_mask_softmax", desc: desc}, nil
}

func (r recordingSupport) FusedMHAScaleBiasSoftmaxRunnerFromDesc(_ dnn.Stream, desc dnn.AlgorithmDesc, cfg dnn.FusedMHAOpConfig) (dnn.Kernel[dnn.ScaleBiasSoftmaxArgs], error) {
	if err := r.build(cfg); err != nil {
		return nil, err
	}
	return &recordingKernel[dnn.ScaleBiasSoftmaxArgs]{family: "scale_bias_softmax", desc: desc}, nil
}

func (r recordingSupport) FusedMHAScaleBiasMaskSoftmaxRunnerFromDesc(_ dnn.Stream, desc dnn.AlgorithmDesc, cfg dnn.FusedMHAOpConfig) (dnn.Kernel[dnn.ScaleBiasMaskSoftmaxArgs], error) {
	if err := r.build(cfg); err != nil {
		return nil, err
	}
	return &recordingKernel[dnn.ScaleBiasMaskSoftmaxArgs]{family: "scale_bias_mask_softmax", desc: desc}, nil
}

type recordingKernel[A dnn.Args] struct {
	family string
	desc   dnn.AlgorithmDesc
}

func (k *recordingKernel[A]) ToAlgorithmDesc() dnn.AlgorithmDesc { return k.desc }

func (k *recordingKernel[A]) Run(stream dnn.Stream, profile *dnn.ProfileResult, _ dnn.DeviceMemory, args A) error {
	return stream.(*recordingStream).record(k.family, args, profile)
}

var testDims = AttentionDims{Batch: 2, Heads: 4, QSeqLen: 8, KVSeqLen: 16, HeadDim: 32}

func testDescriptor(kind Kind) Descriptor {
	return CanonicalDescriptor(kind, testDims, shape.F16, BackendConfig{Scale: 0.125, DropoutRate: 0.1, Seed: 7})
}

// fakeBuffer returns a distinct non-null handle. It is never dereferenced.
func fakeBuffer(backing []byte) dnn.DeviceMemory {
	return dnn.NewDeviceMemory(unsafe.Pointer(&backing[0]), uint64(len(backing)))
}

type testBuffers struct {
	backing [6][]byte
	bufs    Buffers
}

func newTestBuffers() *testBuffers {
	tb := &testBuffers{}
	for i := range tb.backing {
		tb.backing[i] = make([]byte, 8+i)
	}
	tb.bufs = Buffers{
		LhsBMM1: fakeBuffer(tb.backing[0]),
		RhsBMM1: fakeBuffer(tb.backing[1]),
		RhsBMM2: fakeBuffer(tb.backing[2]),
		Output:  fakeBuffer(tb.backing[3]),
		Mask:    fakeBuffer(tb.backing[4]),
		Bias:    fakeBuffer(tb.backing[5]),
	}
	return tb
}

// forConfig drops the mask and bias buffers cfg has no descriptor for.
func (tb *testBuffers) forConfig(cfg *Config) Buffers {
	b := tb.bufs
	if cfg.Mask == nil {
		b.Mask = dnn.DeviceMemory{}
	}
	if cfg.Bias == nil {
		b.Bias = dnn.DeviceMemory{}
	}
	return b
}

func mustPanic(t testing.TB, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic", name)
		}
	}()
	fn()
}

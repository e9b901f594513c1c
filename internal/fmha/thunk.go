package fmha

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/samcharles93/fmha/internal/dnn"
	"github.com/samcharles93/fmha/internal/logger"
)

// Thunk executes one Config repeatedly, keeping a Runner per stream so the
// kernel is built once per device queue. It is safe for concurrent use.
//
// Streams key the runner cache, so their dynamic type must be comparable
// (in practice a pointer). Passing any other stream panics.
type Thunk struct {
	config *Config
	log    logger.Logger

	mu      sync.Mutex
	runners map[dnn.Stream]*thunkRunner
}

type thunkRunner struct {
	mu     sync.Mutex
	runner *Runner
}

// NewThunk returns a Thunk for cfg. log may be nil.
func NewThunk(cfg *Config, log logger.Logger) *Thunk {
	return &Thunk{
		config:  cfg,
		log:     log,
		runners: make(map[dnn.Stream]*thunkRunner),
	}
}

func (t *Thunk) Config() *Config {
	return t.config
}

func (t *Thunk) entry(stream dnn.Stream) *thunkRunner {
	if typ := reflect.TypeOf(stream); typ == nil || !typ.Comparable() {
		panic(fmt.Sprintf("fmha: thunk needs a comparable stream, got %T", stream))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.runners[stream]
	if !ok {
		e = &thunkRunner{runner: NewRunner(t.config)}
		t.runners[stream] = e
	}
	return e
}

// RunnerFor returns the cached Runner for stream, creating it if needed.
func (t *Thunk) RunnerFor(stream dnn.Stream) *Runner {
	return t.entry(stream).runner
}

// ExecuteOnStream enqueues the attention on stream with the stream's cached
// Runner.
func (t *Thunk) ExecuteOnStream(stream dnn.Stream, bufs Buffers, scratch dnn.DeviceMemory, profile *dnn.ProfileResult) error {
	e := t.entry(stream)
	e.mu.Lock()
	defer e.mu.Unlock()
	return RunFusedAttention(t.config, bufs, scratch, stream, RunOptions{
		ProfileResult: profile,
		RunnerCache:   e.runner,
		Logger:        t.log,
	})
}

// Package host is a reference device that runs fused attention kernels on
// the CPU. Its streams execute enqueued work in order on a background
// goroutine, the way a GPU queue would.
package host

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/samcharles93/fmha/internal/dnn"
	"github.com/samcharles93/fmha/internal/logger"
)

// ErrClosed is returned when work is enqueued on a closed stream.
var ErrClosed = errors.New("host: stream closed")

const defaultQueueDepth = 64

type Options struct {
	// Workers bounds the goroutines one kernel uses. Zero means GOMAXPROCS.
	Workers    int
	QueueDepth int
	Logger     logger.Logger
}

type task struct {
	name string
	fn   func() error
}

// Stream is an in-order work queue. Once a task fails, the error sticks and
// later tasks are dropped, until the stream is closed.
type Stream struct {
	id      uuid.UUID
	log     logger.Logger
	workers int
	support *Support

	sendMu sync.RWMutex
	closed bool
	tasks  chan task
	done   chan struct{}

	mu       sync.Mutex
	idle     *sync.Cond
	inflight int
	err      error
}

func NewStream(opts Options) *Stream {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	depth := opts.QueueDepth
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	s := &Stream{
		id:      uuid.New(),
		workers: workers,
		tasks:   make(chan task, depth),
		done:    make(chan struct{}),
	}
	s.log = log.With("stream", s.id.String())
	s.idle = sync.NewCond(&s.mu)
	s.support = &Support{log: s.log}
	go s.loop()
	return s
}

func (s *Stream) ID() string {
	return s.id.String()
}

func (s *Stream) Workers() int {
	return s.workers
}

func (s *Stream) DNN() dnn.Support {
	return s.support
}

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Enqueue schedules fn after all previously enqueued work.
func (s *Stream) Enqueue(name string, fn func() error) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
	s.tasks <- task{name: name, fn: fn}
	return nil
}

// Synchronize blocks until the queue drains and returns the sticky error.
func (s *Stream) Synchronize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.inflight > 0 {
		s.idle.Wait()
	}
	return s.err
}

// Close drains pending work and stops the stream goroutine.
func (s *Stream) Close() error {
	s.sendMu.Lock()
	if s.closed {
		s.sendMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.tasks)
	s.sendMu.Unlock()
	<-s.done
	return s.Err()
}

func (s *Stream) loop() {
	defer close(s.done)
	for t := range s.tasks {
		if s.Err() == nil {
			if err := s.run(t); err != nil {
				s.log.Error("stream task failed", "task", t.name, "error", err)
				s.mu.Lock()
				if s.err == nil {
					s.err = fmt.Errorf("%s: %w", t.name, err)
				}
				s.mu.Unlock()
			}
		} else {
			s.log.Debug("dropping task after stream failure", "task", t.name)
		}
		s.mu.Lock()
		s.inflight--
		if s.inflight == 0 {
			s.idle.Broadcast()
		}
		s.mu.Unlock()
	}
}

func (s *Stream) run(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.fn()
}

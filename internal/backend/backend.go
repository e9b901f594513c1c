// Package backend selects the device that fused attention runs on.
package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samcharles93/fmha/internal/backend/host"
	"github.com/samcharles93/fmha/internal/dnn"
	"github.com/samcharles93/fmha/internal/logger"
)

const (
	CPU  = "cpu"
	CUDA = "cuda"
	Auto = "auto"
)

var errCUDAUnavailable = errors.New("cuda backend is not available in this build")

// Device is a stream that the caller owns and must close.
type Device interface {
	dnn.Stream
	ID() string
	Synchronize() error
	Close() error
}

type Options struct {
	Workers int
	Logger  logger.Logger
}

func Normalize(name string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(name))
	if backend == "" {
		return Auto, nil
	}
	switch backend {
	case CPU, CUDA, Auto:
		return backend, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected auto, cpu, or cuda)", backend)
	}
}

// Open returns a new stream on the named backend and the backend that was
// picked. Auto resolves to the first available backend.
func Open(name string, opts Options) (Device, string, error) {
	resolved, err := Normalize(name)
	if err != nil {
		return nil, "", err
	}
	if resolved == Auto {
		resolved = CPU
		if Has(CUDA) {
			resolved = CUDA
		}
	}
	switch resolved {
	case CPU:
		return host.NewStream(host.Options{Workers: opts.Workers, Logger: opts.Logger}), CPU, nil
	default:
		return nil, "", errCUDAUnavailable
	}
}

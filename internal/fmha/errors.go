package fmha

import "errors"

var (
	ErrInvalidConfig       = errors.New("invalid fused mha configuration")
	ErrInconsistentBinding = errors.New("inconsistent fused mha buffer binding")
	ErrUnsupported         = errors.New("unsupported fused mha")
	ErrExecution           = errors.New("fused mha execution failed")
)

type fmhaError struct {
	kind  error
	msg   string
	cause error
}

func (e *fmhaError) Error() string {
	if e.cause == nil {
		return e.kind.Error() + ": " + e.msg
	}
	return e.kind.Error() + ": " + e.msg + ": " + e.cause.Error()
}

func (e *fmhaError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

func newError(kind error, msg string, cause error) error {
	return &fmhaError{kind: kind, msg: msg, cause: cause}
}

func invalidConfig(msg string, cause error) error {
	return newError(ErrInvalidConfig, msg, cause)
}

func inconsistentBinding(msg string) error {
	return newError(ErrInconsistentBinding, msg, nil)
}

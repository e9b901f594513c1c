package dnn

import "errors"

var (
	ErrInvalidArgument = errors.New("dnn: invalid argument")
	ErrUnsupported     = errors.New("dnn: unsupported")
	ErrNoDNNSupport    = errors.New("dnn: stream has no dnn support")
)

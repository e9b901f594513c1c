package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/fmha/internal/fmha"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")

	errEmptyBody    = fmt.Errorf("%w: request body is empty", ErrInvalidRequest)
	errBodyTooLarge = fmt.Errorf("%w: request body exceeds %d bytes", ErrInvalidRequest, maxBodyBytes)
)

// errorClass is how an error is reported to clients.
type errorClass struct {
	status int
	typ    string
	code   string
}

func classify(err error) (errorClass, bool) {
	switch {
	case errors.Is(err, fmha.ErrInvalidConfig):
		return errorClass{http.StatusBadRequest, "invalid_config_error", "invalid_config"}, true
	case errors.Is(err, ErrInvalidRequest):
		return errorClass{http.StatusBadRequest, "invalid_request_error", ""}, true
	case errors.Is(err, ErrNotFound):
		return errorClass{http.StatusNotFound, "not_found_error", ""}, true
	default:
		return errorClass{}, false
	}
}

// writeAPIError writes err as an error body. Unclassified errors are left to
// echo's error handler.
func writeAPIError(c *echo.Context, err error) error {
	class, ok := classify(err)
	if !ok {
		return err
	}
	return writeError(c, class.status, class.typ, err.Error(), class.code)
}

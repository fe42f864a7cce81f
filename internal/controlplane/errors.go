package controlplane

import (
	"errors"
	"net/http"

	"github.com/fentz26/gapforge/internal/models"
)

// Sentinel errors for control plane operations.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrBadRequest = errors.New("bad request")
)

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest), errors.Is(err, models.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrBudgetExceeded):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"waterlog/internal/intake"
)

// Error codes returned in the "code" field of every error response.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeInvalidAmount    = "invalid_amount"
	ErrCodeInvalidGoal      = "invalid_goal"
	ErrCodeClockUnavailable = "clock_unavailable"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"
)

// ErrorResponse is the envelope returned by all endpoints on failure.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: msg})
}

// failErr maps a service error to its status and code. Unknown errors are
// logged by the request logger and reported without detail.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, intake.ErrInvalidAmount):
		fail(c, http.StatusBadRequest, ErrCodeInvalidAmount, err.Error())
	case errors.Is(err, intake.ErrInvalidGoal):
		fail(c, http.StatusBadRequest, ErrCodeInvalidGoal, err.Error())
	case errors.Is(err, intake.ErrClockUnavailable):
		fail(c, http.StatusServiceUnavailable, ErrCodeClockUnavailable, err.Error())
	default:
		c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}

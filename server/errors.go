package server

import (
	"errors"
	"net/http"
	"time"

	xerrors "github.com/davidvella/catidx/internal/errors"
	"github.com/gin-gonic/gin"
)

// ErrorCode represents standardized error codes for the API
type ErrorCode string

const (
	// Client Error Codes (4xx)
	ErrorCodeInvalidKey ErrorCode = "INVALID_KEY"

	// Server Error Codes (5xx)
	ErrorCodeIndexNotReady ErrorCode = "INDEX_NOT_READY"
	ErrorCodeLookupFailed  ErrorCode = "LOOKUP_FAILED"
	ErrorCodeReadFailed    ErrorCode = "RECORD_READ_FAILED"
)

// APIError is the body of every failed request.
type APIError struct {
	Error     string    `json:"error"`
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SendError sends a standardized error response
func SendError(c *gin.Context, statusCode int, code ErrorCode, message string) {
	c.AbortWithStatusJSON(statusCode, &APIError{
		Error:     "Request failed",
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// sendLookupError maps a lookup failure onto a status code.
func sendLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, xerrors.ErrTypeMismatch):
		SendError(c, http.StatusBadRequest, ErrorCodeInvalidKey, err.Error())
	case errors.Is(err, xerrors.ErrIndexNotReady):
		SendError(c, http.StatusServiceUnavailable, ErrorCodeIndexNotReady, err.Error())
	default:
		SendError(c, http.StatusInternalServerError, ErrorCodeLookupFailed, "Lookup failed: "+err.Error())
	}
}

// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response helpers shared by every endpoint: the error
// envelope, the mapping from service error kinds to HTTP status and code, and
// small success writers.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sfreeley/puzzle-post/internal/http/middleware"
	"github.com/sfreeley/puzzle-post/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"puzzle not found"`
}

// fail aborts the request with a structured error. 5xx responses are logged
// with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for router-level handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// statusFor maps a service error kind to (status, code).
func statusFor(kind services.Kind) (int, string) {
	switch kind {
	case services.KindInvalidState:
		return http.StatusConflict, ErrCodeInvalidState
	case services.KindNotOwner, services.KindNotRecipient, services.KindNotParty:
		return http.StatusForbidden, ErrCodeForbidden
	case services.KindEmptyContent, services.KindInvalid:
		return http.StatusBadRequest, ErrCodeBadRequest
	case services.KindNotFound:
		return http.StatusNotFound, ErrCodeNotFound
	case services.KindConflict:
		return http.StatusConflict, ErrCodeConflict
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// failErr writes the envelope for a service error. Typed errors carry their
// message to the client; anything else is an opaque 500.
func failErr(c *gin.Context, err error) {
	var se *services.Error
	if !errors.As(err, &se) {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}
	status, code := statusFor(se.Kind)
	fail(c, status, code, se.Error())
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/apperr"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrInvalidRequest), errors.Is(err, apperr.ErrInsufficientStock):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {error, details?}. details carries the underlying cause
// when the error wraps one.
func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Err != nil {
		body["error"] = ae.Message
		body["details"] = ae.Err.Error()
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), body)
}

func forbidden(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
}

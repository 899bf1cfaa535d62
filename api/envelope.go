package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docprovrag/internal/errs"
)

// Envelope is the uniform response shape every endpoint returns:
// {success, data?, error?:{category, message, details?}}.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorEnvelope `json:"error,omitempty"`
}

// ErrorEnvelope is the machine-readable failure shape.
type ErrorEnvelope struct {
	Category string         `json:"category"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, Envelope{Success: true, Data: data})
}

// fail writes an error envelope, mapping a *errs.CategorizedError to its
// category and an appropriate HTTP status; any other error is sent as an
// INTERNAL_ERROR envelope with HTTP 500 whose message is err.Error(), so
// it never reaches the client as a bare string.
func fail(c *gin.Context, err error) {
	var ce *errs.CategorizedError
	if errors.As(err, &ce) {
		c.JSON(statusFor(ce), Envelope{
			Success: false,
			Error: &ErrorEnvelope{
				Category: string(ce.Category),
				Message:  ce.Message,
				Details:  ce.Details,
			},
		})
		return
	}
	c.JSON(http.StatusInternalServerError, Envelope{
		Success: false,
		Error:   &ErrorEnvelope{Category: "INTERNAL_ERROR", Message: err.Error()},
	})
}

func statusFor(ce *errs.CategorizedError) int {
	switch {
	case errors.Is(ce.Kind, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(ce.Kind, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(ce.Kind, errs.ErrConflict):
		return http.StatusConflict
	case errors.Is(ce.Kind, errs.ErrIntegrity):
		return http.StatusUnprocessableEntity
	case errors.Is(ce.Kind, errs.ErrWorker):
		return http.StatusBadGateway
	case errors.Is(ce.Kind, errs.ErrResource):
		return http.StatusNotFound
	case errors.Is(ce.Kind, errs.ErrSchema):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// badRequest reports a malformed request body before any store call.
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Envelope{
		Success: false,
		Error:   &ErrorEnvelope{Category: string(errs.CategoryValidation), Message: message},
	})
}

package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gearshare/service-reservation/internal/domain/shared"
)

// envelope is the uniform response body shape.
type envelope struct {
	Data  interface{} `json:"data,omitempty"`
	Error *errBody    `json:"error,omitempty"`
}

type errBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Success writes a 200 response with the given payload.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, envelope{Data: data})
}

// Created writes a 201 response with the given payload.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, envelope{Data: data})
}

// Paginated writes a 200 response with items and paging metadata.
func Paginated(c *gin.Context, items interface{}, total int64, page, limit int) {
	c.JSON(http.StatusOK, gin.H{
		"data":  items,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// BadRequest writes a 400 response with a plain message.
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, envelope{Error: &errBody{Kind: "bad_request", Message: msg}})
}

// Error maps a domain error to its HTTP status. Callers surface the
// kind so clients can render an actionable message per error.
func Error(c *gin.Context, err error) {
	var de *shared.DomainError
	if !errors.As(err, &de) {
		c.JSON(http.StatusInternalServerError, envelope{Error: &errBody{Kind: "internal", Message: "internal server error"}})
		return
	}
	c.JSON(statusFor(de.Kind), envelope{Error: &errBody{Kind: string(de.Kind), Message: de.Message}})
}

func statusFor(kind shared.ErrorKind) int {
	switch kind {
	case shared.KindValidation, shared.KindInvalidPayload:
		return http.StatusBadRequest
	case shared.KindUnauthorized:
		return http.StatusUnauthorized
	case shared.KindForbidden:
		return http.StatusForbidden
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindConflict, shared.KindInvalidTransition, shared.KindMethodMismatch, shared.KindPricingMismatch:
		return http.StatusConflict
	case shared.KindPaymentTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

const (
	CodeBadRequest      = "bad_request"
	CodeUnauthenticated = "not_authenticated"
	CodeUnsupported     = "unsupported_format"
	CodeInternal        = "internal"
)

// RespondError writes the error envelope with the status derived from the error class.
// Internal errors are not echoed to the caller.
func RespondError(c *gin.Context, err error) {
	status, code := classify(err)
	msg := err.Error()
	var traced helper.Error
	if errors.As(err, &traced) {
		msg = traced.Original.Error()
	}
	if status == http.StatusInternalServerError {
		msg = "internal server error"
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrNotAuthenticated):
		return http.StatusUnauthorized, CodeUnauthenticated
	case errors.Is(err, model.ErrUnsupportedFormat):
		return http.StatusBadRequest, CodeUnsupported
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, CodeBadRequest
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

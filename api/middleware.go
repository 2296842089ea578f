package api

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/siherrmann/securerag/model"
)

const (
	ContextPrincipalKey = "principal"
	HeaderUserEmail     = "X-User-Email"
)

// Authenticate maps the caller supplied identifier to a user. The identifier is read from
// "Authorization: Bearer <id>" or, if absent, from the X-User-Email header.
// The token is not verified, any identifier is accepted and upserted.
func Authenticate(service Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := identifierFromRequest(c)
		if identifier == "" {
			RespondError(c, fmt.Errorf("%w: bearer token or %s header required", model.ErrNotAuthenticated, HeaderUserEmail))
			return
		}

		principal, err := service.EnsureUser(c.Request.Context(), identifier, identifier)
		if err != nil {
			RespondError(c, err)
			return
		}

		c.Set(ContextPrincipalKey, principal)
		c.Next()
	}
}

func identifierFromRequest(c *gin.Context) string {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		if token := strings.TrimSpace(authHeader[7:]); token != "" {
			return token
		}
	}
	return strings.TrimSpace(c.GetHeader(HeaderUserEmail))
}

func principalFromContext(c *gin.Context) (model.Principal, bool) {
	v, ok := c.Get(ContextPrincipalKey)
	if !ok {
		return model.Principal{}, false
	}
	principal, ok := v.(model.Principal)
	return principal, ok
}

// RequestLogger logs every request with its status and duration.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if principal, ok := principalFromContext(c); ok {
			attrs = append(attrs, slog.String("user_id", principal.UserID.String()))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("error", c.Errors.String()))
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", attrs...)
		case status >= 400:
			log.Warn("HTTP request", attrs...)
		default:
			log.Info("HTTP request", attrs...)
		}
	}
}

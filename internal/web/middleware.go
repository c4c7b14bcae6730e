package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/camuig/smartapi-proxy/internal/logger"
	"github.com/camuig/smartapi-proxy/internal/service"
	"github.com/camuig/smartapi-proxy/internal/session"
)

// Error turns the first error recorded by a handler into a JSON response.
// Handlers only call c.Error and return.
func Error(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		if errors.Is(c.Request.Context().Err(), context.DeadlineExceeded) {
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, Res{Error: "request timed out"})
			return
		}

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors[0].Err

		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make([]FieldError, 0, len(ve))
			for _, fe := range ve {
				fields = append(fields, FieldError{Field: fe.Field(), Message: fe.Error()})
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, Res{Error: fields})
			return
		}

		var he HTTPError
		if errors.As(err, &he) {
			c.AbortWithStatusJSON(he.StatusCode, Res{Error: he.Error()})
			return
		}

		var authErr *session.AuthError
		switch {
		case errors.As(err, &authErr):
			c.AbortWithStatusJSON(http.StatusUnauthorized, Res{Error: err.Error()})
			return
		case errors.Is(err, session.ErrNotAuthenticated):
			c.AbortWithStatusJSON(http.StatusUnauthorized, Res{Error: ErrNotAuthenticated.Error()})
			return
		case errors.Is(err, service.ErrInvalidRequest):
			c.AbortWithStatusJSON(http.StatusBadRequest, Res{Error: err.Error()})
			return
		case errors.Is(err, context.DeadlineExceeded):
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, Res{Error: "request timed out"})
			return
		}

		log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, Res{Error: err.Error()})
	}
}

// Timeout bounds the request context. Handlers observe the deadline through
// their context; Error reports it as 504 if nothing was written.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

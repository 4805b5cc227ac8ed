package history

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/onconova/onconova/internal/platform/auth"
)

type contextKey struct{}

// WithContext binds a history context to the request context.
func WithContext(ctx context.Context, hc Context) context.Context {
	return context.WithValue(ctx, contextKey{}, hc)
}

// FromContext returns the bound history context, or nil.
func FromContext(ctx context.Context) Context {
	hc, _ := ctx.Value(contextKey{}).(Context)
	return hc
}

// Middleware populates the history context once at request entry, so
// every mutation performed by the request shares it.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			hc := Context{
				"username": auth.UsernameFromContext(req.Context()),
				"url":      req.URL.Path,
				"method":   req.Method,
				"ip":       c.RealIP(),
			}
			c.SetRequest(req.WithContext(WithContext(req.Context(), hc)))
			return next(c)
		}
	}
}

package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/scene-continuity/internal/logging"
)

// RequestLogger assigns each request an id (reusing X-Request-ID when the
// caller sent one), attaches a request-scoped logger to its context and logs
// one line when the handler returns.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	log = log.Named("http")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Set(ctxRequestID, id)
			c.Response().Header().Set(echo.HeaderXRequestID, id)

			scoped := log.With(zap.String("request_id", id))
			c.SetRequest(req.WithContext(logging.WithLogger(req.Context(), scoped)))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("route", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("subject", Subject(c)),
			}
			switch status := c.Response().Status; {
			case status >= 500:
				scoped.Error("request", fields...)
			case status >= 400:
				scoped.Info("request", fields...)
			default:
				scoped.Debug("request", fields...)
			}
			return nil
		}
	}
}

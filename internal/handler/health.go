package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is implemented by every backing service the health check probes.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// Health returns the /healthz handler.  The service is unhealthy only when
// a required dependency fails; optional ones are reported as degraded.
func Health(required map[string]Pinger, optional map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{}
		status, code := "ok", http.StatusOK
		for name, p := range required {
			if err := p.PingContext(ctx); err != nil {
				checks[name] = err.Error()
				status, code = "unavailable", http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		for name, p := range optional {
			if err := p.PingContext(ctx); err != nil {
				checks[name] = err.Error()
				if code == http.StatusOK {
					status = "degraded"
				}
				continue
			}
			checks[name] = "ok"
		}
		return c.JSON(code, echo.Map{"status": status, "checks": checks})
	}
}

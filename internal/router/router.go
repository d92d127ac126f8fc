// Package router registers the HTTP routes of the service.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/scene-continuity/internal/auth"
	"github.com/iliyamo/scene-continuity/internal/config"
	"github.com/iliyamo/scene-continuity/internal/handler"
	"github.com/iliyamo/scene-continuity/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only the health check.
func RegisterRoutes(e *echo.Echo, health echo.HandlerFunc) {
	e.GET("/healthz", health)
}

// APIOptions configures the protected /v1 group.
type APIOptions struct {
	JWTSecret    string
	AuthDisabled bool
	RateLimit    config.RateLimitConfig
	Redis        *redis.Client // nil disables rate limiting
	Logger       *zap.Logger
}

// RegisterAPI registers the continuity API under /v1.  Every route needs a
// valid access token.  Routes that change state also require the OWNER or
// EDITOR role and pass through the rate limiter.
func RegisterAPI(e *echo.Echo, h *handler.Handler, opts APIOptions) {
	authn := middleware.JWTAuth(opts.JWTSecret)
	if opts.AuthDisabled {
		authn = middleware.NoAuth()
	}
	v1 := e.Group("/v1", authn)

	// Reads.
	v1.GET("/scenes/:id/stage-locks", h.GetStageLocks)
	v1.GET("/scenes/:id/continuity-risk", h.ContinuityRisk)
	v1.GET("/scenes/:id/instances/:instance_id/last-state", h.LastState)
	v1.GET("/branches/:id/assets/:asset_id/state", h.ResolveState)
	v1.GET("/instances/:id/transformations", h.ListTransformations)

	// Writes.
	w := []echo.MiddlewareFunc{
		middleware.RequireRole(auth.RoleOwner, auth.RoleEditor),
		middleware.RateLimit(opts.RateLimit, opts.Redis, opts.Logger),
	}
	v1.POST("/scenes/:id/stages/:stage/lock", h.LockStage, w...)
	v1.POST("/scenes/:id/stages/:stage/unlock", h.UnlockStage, w...)
	v1.POST("/scenes/:id/stages/:stage/relock", h.RelockStage, w...)
	v1.POST("/scenes/:id/inherit", h.Inherit, w...)
	v1.PATCH("/instances/:id", h.UpdateInstance, w...)
	v1.POST("/instances/:id/transformations", h.CreateTransformation, w...)
	v1.POST("/transformations/:id/confirm", h.ConfirmTransformation, w...)
	v1.DELETE("/transformations/:id", h.DismissTransformation, w...)
}

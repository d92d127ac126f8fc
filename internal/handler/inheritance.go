package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/scene-continuity/internal/middleware"
	"github.com/iliyamo/scene-continuity/internal/queue"
)

// Inherit handles POST /v1/scenes/:id/inherit.  Repeating the call creates
// nothing new.
func (h *Handler) Inherit(c echo.Context) error {
	sceneID := c.Param("id")
	created, err := h.Engine.Propagator.Propagate(c.Request().Context(), sceneID)
	if err != nil {
		return h.fail(c, err)
	}
	if created > 0 {
		h.Events.Emit(queue.InheritanceCompletedEvent{SceneID: sceneID, Created: created, Subject: middleware.Subject(c)})
	}
	return c.JSON(http.StatusOK, echo.Map{"scene_id": sceneID, "created": created})
}

// ResolveState handles GET /v1/branches/:id/assets/:asset_id/state?before=N.
func (h *Handler) ResolveState(c echo.Context) error {
	before, err := strconv.Atoi(c.QueryParam("before"))
	if err != nil || before < 1 {
		return badRequest(c, "before must be a positive scene number")
	}
	st, err := h.Engine.Resolver.Resolve(c.Request().Context(), c.Param("id"), c.Param("asset_id"), before)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// LastState handles GET /v1/scenes/:id/instances/:instance_id/last-state.
// The state is null when the instance has no confirmed transformation.
func (h *Handler) LastState(c echo.Context) error {
	st, err := h.Engine.Overlay.LastStateForInheritance(c.Request().Context(), c.Param("id"), c.Param("instance_id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"instance_id": c.Param("instance_id"), "state": st})
}

// ContinuityRisk handles GET /v1/scenes/:id/continuity-risk.
func (h *Handler) ContinuityRisk(c echo.Context) error {
	a, err := h.Risk.Assess(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/scene-continuity/internal/continuity"
)

// UpdateInstance handles PATCH /v1/instances/:id.
func (h *Handler) UpdateInstance(c echo.Context) error {
	var patch continuity.InstancePatch
	if err := c.Bind(&patch); err != nil {
		return badRequest(c, "invalid request body")
	}
	inst, err := h.Engine.Editor.UpdateInstance(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, inst)
}

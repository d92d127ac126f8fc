package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/scene-continuity/internal/middleware"
	"github.com/iliyamo/scene-continuity/internal/model"
	"github.com/iliyamo/scene-continuity/internal/queue"
	"github.com/iliyamo/scene-continuity/internal/stagelock"
)

// GetStageLocks handles GET /v1/scenes/:id/stage-locks.
func (h *Handler) GetStageLocks(c echo.Context) error {
	locks, err := h.Locks.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"scene_id": c.Param("id"), "stages": locks.ByNumber()})
}

// LockStage handles POST /v1/scenes/:id/stages/:stage/lock.
func (h *Handler) LockStage(c echo.Context) error {
	stage, err := model.ParseStage(c.Param("stage"))
	if err != nil {
		return badRequest(c, "invalid stage")
	}
	tr, err := h.Locks.Lock(c.Request().Context(), c.Param("id"), stage)
	if err != nil {
		return h.fail(c, err)
	}
	h.emitTransition(c, "lock", tr)
	return c.JSON(http.StatusOK, tr)
}

// RelockStage handles POST /v1/scenes/:id/stages/:stage/relock.
func (h *Handler) RelockStage(c echo.Context) error {
	stage, err := model.ParseStage(c.Param("stage"))
	if err != nil {
		return badRequest(c, "invalid stage")
	}
	tr, err := h.Locks.Relock(c.Request().Context(), c.Param("id"), stage)
	if err != nil {
		return h.fail(c, err)
	}
	h.emitTransition(c, "relock", tr)
	return c.JSON(http.StatusOK, tr)
}

// UnlockStage handles POST /v1/scenes/:id/stages/:stage/unlock.  Without
// {"confirm": true} it only returns the impact of the unlock.
func (h *Handler) UnlockStage(c echo.Context) error {
	stage, err := model.ParseStage(c.Param("stage"))
	if err != nil {
		return badRequest(c, "invalid stage")
	}
	var body struct {
		Confirm bool `json:"confirm"`
	}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	out, err := h.Locks.Unlock(c.Request().Context(), c.Param("id"), stage, body.Confirm)
	if err != nil {
		return h.fail(c, err)
	}
	if out.Transition != nil {
		h.emitTransition(c, "unlock", *out.Transition)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) emitTransition(c echo.Context, action string, tr stagelock.Transition) {
	if !tr.Changed {
		return
	}
	cascaded := make([]int, len(tr.Cascaded))
	for i, s := range tr.Cascaded {
		cascaded[i] = int(s)
	}
	h.Events.Emit(queue.StageTransitionEvent{
		SceneID:  tr.SceneID,
		Stage:    int(tr.Stage),
		Action:   action,
		From:     string(tr.From),
		To:       string(tr.To),
		Cascaded: cascaded,
		Subject:  middleware.Subject(c),
	})
}

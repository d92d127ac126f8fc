package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/scene-continuity/internal/continuity"
	"github.com/iliyamo/scene-continuity/internal/middleware"
	"github.com/iliyamo/scene-continuity/internal/model"
	"github.com/iliyamo/scene-continuity/internal/queue"
)

type createTransformationRequest struct {
	TriggerShotID    string                   `json:"trigger_shot_id"`
	Type             model.TransformationType `json:"transformation_type"`
	PostDescription  string                   `json:"post_description"`
	PostStatusTags   []string                 `json:"post_status_tags"`
	CompletionShotID *string                  `json:"completion_shot_id"`
	Narrative        *string                  `json:"transformation_narrative"`
	PreDescription   *string                  `json:"pre_description"`
	PreStatusTags    []string                 `json:"pre_status_tags"`
	DetectedBy       model.DetectedBy         `json:"detected_by"`
}

// ListTransformations handles GET /v1/instances/:id/transformations.
func (h *Handler) ListTransformations(c echo.Context) error {
	events, err := h.Engine.Overlay.ListForInstance(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	if events == nil {
		events = []model.TransformationEvent{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": events})
}

// CreateTransformation handles POST /v1/instances/:id/transformations.
func (h *Handler) CreateTransformation(c echo.Context) error {
	var body createTransformationRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	res, err := h.Engine.Overlay.Create(c.Request().Context(), continuity.CreateTransformationInput{
		InstanceID:       c.Param("id"),
		TriggerShotID:    body.TriggerShotID,
		Type:             body.Type,
		PostDescription:  body.PostDescription,
		PostStatusTags:   body.PostStatusTags,
		CompletionShotID: body.CompletionShotID,
		Narrative:        body.Narrative,
		PreDescription:   body.PreDescription,
		PreStatusTags:    body.PreStatusTags,
		DetectedBy:       body.DetectedBy,
	})
	if err != nil {
		return h.fail(c, err)
	}
	h.emitTransformation(c, "created", res.Event, "")
	return c.JSON(http.StatusCreated, res)
}

// ConfirmTransformation handles POST /v1/transformations/:id/confirm.
func (h *Handler) ConfirmTransformation(c echo.Context) error {
	res, err := h.Engine.Overlay.Confirm(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	if res.Changed {
		h.emitTransformation(c, "confirmed", res.Event, res.SceneID)
	}
	return c.JSON(http.StatusOK, res.Event)
}

// DismissTransformation handles DELETE /v1/transformations/:id.
func (h *Handler) DismissTransformation(c echo.Context) error {
	res, err := h.Engine.Overlay.Dismiss(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	h.emitTransformation(c, "dismissed", res.Event, res.SceneID)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) emitTransformation(c echo.Context, action string, ev model.TransformationEvent, sceneID string) {
	h.Events.Emit(queue.TransformationChangedEvent{
		TransformationID: ev.ID,
		InstanceID:       ev.SceneAssetInstanceID,
		SceneID:          sceneID,
		Action:           action,
		Kind:             string(ev.TransformationType),
		Confirmed:        ev.Confirmed,
		Subject:          middleware.Subject(c),
	})
}

// Package handler exposes the continuity engine and the stage lock machine
// over HTTP.  Handlers parse input, call one component and map its error to
// a status code; events are published only after the component committed.
package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/scene-continuity/internal/continuity"
	"github.com/iliyamo/scene-continuity/internal/logging"
	"github.com/iliyamo/scene-continuity/internal/model"
	"github.com/iliyamo/scene-continuity/internal/queue"
	"github.com/iliyamo/scene-continuity/internal/risk"
	"github.com/iliyamo/scene-continuity/internal/stagelock"
	"github.com/iliyamo/scene-continuity/internal/store"
)

// Emitter publishes an audit event without blocking the caller.
type Emitter interface {
	Emit(ev queue.Event)
}

type noopEmitter struct{}

func (noopEmitter) Emit(queue.Event) {}

// Handler bundles the components the routes call.
type Handler struct {
	Engine *continuity.Engine
	Locks  *stagelock.Machine
	Risk   *risk.Analyzer
	Events Emitter
	Logger *zap.Logger
}

// New returns a Handler.  A nil events or logger is replaced with a no-op.
func New(engine *continuity.Engine, locks *stagelock.Machine, analyzer *risk.Analyzer, events Emitter, log *zap.Logger) *Handler {
	if events == nil {
		events = noopEmitter{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Engine: engine, Locks: locks, Risk: analyzer, Events: events, Logger: log}
}

// errorBody is the JSON shape of every error response.  The structured
// fields are only set for invariant violations.
type errorBody struct {
	Error         string              `json:"error"`
	Code          model.InvariantCode `json:"code,omitempty"`
	Stage         model.StageNumber   `json:"stage,omitempty"`
	BlockingStage model.StageNumber   `json:"blocking_stage,omitempty"`
	Details       map[string]any      `json:"details,omitempty"`
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorBody{Error: msg})
}

// fail maps err to a response: not found 404, invariant 400, write
// conflict 409, upstream 502 and anything else 500.
func (h *Handler) fail(c echo.Context, err error) error {
	if errors.Is(err, store.ErrConflict) {
		return c.JSON(http.StatusConflict, errorBody{Error: "concurrent write conflict, retry the request"})
	}
	var inv *model.InvariantError
	switch model.KindOf(err) {
	case model.ErrorKindNotFound:
		return c.JSON(http.StatusNotFound, errorBody{Error: err.Error()})
	case model.ErrorKindValidation:
		if errors.As(err, &inv) {
			return c.JSON(http.StatusBadRequest, errorBody{
				Error:         inv.Message,
				Code:          inv.Code,
				Stage:         inv.Stage,
				BlockingStage: inv.BlockingStage,
				Details:       inv.Details,
			})
		}
		return badRequest(c, err.Error())
	case model.ErrorKindUpstream:
		h.log(c).Warn("upstream failure", zap.Error(err))
		return c.JSON(http.StatusBadGateway, errorBody{Error: "upstream dependency failure"})
	default:
		h.log(c).Error("request failed", zap.String("route", c.Path()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func (h *Handler) log(c echo.Context) *zap.Logger {
	return logging.FromContext(c.Request().Context(), h.Logger)
}

// Package continuity implements asset state inheritance across the ordered
// scenes of a branch: resolving the current truth of an asset, propagating
// instances into a new scene, recording in-scene transformations and
// editing instance fields.
package continuity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/scene-continuity/internal/model"
	"github.com/iliyamo/scene-continuity/internal/store"
)

// StateCache memoizes Resolve results per (branch, asset, before).
// Invalidate drops every entry of a (branch, asset) pair.  Implementations
// must treat failures as misses; the cache is never a source of truth.
type StateCache interface {
	Get(ctx context.Context, branchID, assetID string, before int) (model.AssetState, bool)
	Put(ctx context.Context, branchID, assetID string, before int, st model.AssetState)
	Invalidate(ctx context.Context, branchID, assetID string)
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string, string, int) (model.AssetState, bool) {
	return model.AssetState{}, false
}
func (NoopCache) Put(context.Context, string, string, int, model.AssetState) {}
func (NoopCache) Invalidate(context.Context, string, string)                 {}

// Options tunes an Engine.  Zero values select the defaults.
type Options struct {
	Cache  StateCache
	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string
}

// Engine groups the continuity components around one store.
type Engine struct {
	Resolver   *Resolver
	Propagator *Propagator
	Overlay    *Overlay
	Editor     *Editor
}

// deps is shared by the components of one Engine.
type deps struct {
	store store.Store
	cache StateCache
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

// New wires the components to st.
func New(st store.Store, opts Options) *Engine {
	d := &deps{store: st, cache: opts.Cache, log: opts.Logger, now: opts.Now, newID: opts.NewID}
	if d.cache == nil {
		d.cache = NoopCache{}
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	d.log = d.log.Named("continuity")
	if d.now == nil {
		d.now = func() time.Time { return time.Now().UTC() }
	}
	if d.newID == nil {
		d.newID = newID
	}
	return &Engine{
		Resolver:   &Resolver{deps: d},
		Propagator: &Propagator{deps: d},
		Overlay:    &Overlay{deps: d},
		Editor:     &Editor{deps: d},
	}
}

// newID returns a time ordered UUID so rows sort by creation.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// rejected logs invariant violations at debug and passes err through.
func (d *deps) rejected(op string, err error, fields ...zap.Field) error {
	var inv *model.InvariantError
	if errors.As(err, &inv) {
		d.log.Debug(op+" rejected", append(fields, zap.String("code", string(inv.Code)), zap.String("reason", inv.Message))...)
	}
	return err
}

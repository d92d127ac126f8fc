package continuity

import (
	"context"
	"fmt"

	"github.com/iliyamo/scene-continuity/internal/model"
	"github.com/iliyamo/scene-continuity/internal/store"
)

// Resolver answers "what does this asset look like right before scene N".
type Resolver struct {
	*deps
}

// Resolve returns the state of assetID as of the most recent scene of
// branchID numbered below before.  The asset need not appear in the
// immediately preceding scene; the latest earlier appearance wins.  When
// that instance carries a confirmed transformation, the post-state of the
// newest one replaces the instance's literal description and tags.
//
// An error wrapping model.ErrNotFound means the asset has not appeared yet
// and callers fall back to the project asset's base state.
func (r *Resolver) Resolve(ctx context.Context, branchID, assetID string, before int) (model.AssetState, error) {
	if st, ok := r.cache.Get(ctx, branchID, assetID, before); ok {
		return st, nil
	}
	st, err := resolve(ctx, r.store, branchID, assetID, before)
	if err != nil {
		return model.AssetState{}, err
	}
	r.cache.Put(ctx, branchID, assetID, before, st)
	return st, nil
}

// resolve is Resolve without the cache, usable on an open transaction.
func resolve(ctx context.Context, rd store.Reader, branchID, assetID string, before int) (model.AssetState, error) {
	inst, number, err := rd.LatestInstanceBefore(ctx, branchID, assetID, before)
	if err != nil {
		return model.AssetState{}, fmt.Errorf("resolve asset %s before scene %d: %w", assetID, before, err)
	}
	return currentTruth(ctx, rd, inst, number)
}

// currentTruth is the state inst hands to whatever comes after it.
func currentTruth(ctx context.Context, rd store.Reader, inst model.SceneAssetInstance, sceneNumber int) (model.AssetState, error) {
	st := model.AssetState{
		Description:       inst.EffectiveDescription,
		ImageURL:          model.CopyStringPtr(inst.ImageKeyURL),
		StatusTags:        model.CloneTags(inst.StatusTags),
		SourceSceneNumber: sceneNumber,
		SourceInstanceID:  inst.ID,
	}
	last, err := lastConfirmed(ctx, rd, inst.ID)
	if err != nil {
		return model.AssetState{}, err
	}
	if last != nil {
		post := last.PostState()
		st.Description = post.Description
		st.StatusTags = post.StatusTags
		st.Transformed = true
	}
	return st, nil
}

// lastConfirmed returns the most recently created confirmed event of an
// instance, or nil.
func lastConfirmed(ctx context.Context, rd store.Reader, instanceID string) (*model.TransformationEvent, error) {
	events, err := rd.ListTransformations(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list transformations of %s: %w", instanceID, err)
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Confirmed {
			return &events[i], nil
		}
	}
	return nil, nil
}

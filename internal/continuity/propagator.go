package continuity

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/scene-continuity/internal/model"
	"github.com/iliyamo/scene-continuity/internal/store"
)

// Propagator creates the asset instances of a scene.
type Propagator struct {
	*deps
}

// Propagate fills sceneID with one instance per eligible asset and returns
// how many it created.  Scene 1, or a scene whose predecessor number is
// missing, bootstraps from the branch's locked and deferred assets.  Any
// other scene inherits from every instance of scene n-1.
//
// Assets that already have an instance in the scene are left alone, so the
// call can be repeated.  All instances are written in one transaction under
// the scene lock.
func (p *Propagator) Propagate(ctx context.Context, sceneID string) (int, error) {
	var (
		scene   model.Scene
		created []model.SceneAssetInstance
	)
	err := p.store.WithSceneTx(ctx, sceneID, func(tx store.Tx) error {
		var err error
		scene, err = tx.GetScene(ctx, sceneID)
		if err != nil {
			return err
		}
		existing, err := tx.ListInstances(ctx, sceneID)
		if err != nil {
			return fmt.Errorf("list instances of scene %s: %w", sceneID, err)
		}
		have := make(map[string]bool, len(existing))
		for _, in := range existing {
			have[in.ProjectAssetID] = true
		}

		if scene.SceneNumber <= 1 {
			created, err = p.bootstrap(ctx, tx, scene, have)
		} else {
			var prior model.Scene
			prior, err = tx.SceneByNumber(ctx, scene.BranchID, scene.SceneNumber-1)
			switch {
			case errors.Is(err, model.ErrNotFound):
				p.log.Info("predecessor scene missing, bootstrapping",
					zap.String("scene_id", sceneID), zap.Int("scene_number", scene.SceneNumber))
				created, err = p.bootstrap(ctx, tx, scene, have)
			case err != nil:
				return fmt.Errorf("load scene %d of branch %s: %w", scene.SceneNumber-1, scene.BranchID, err)
			default:
				created, err = p.inherit(ctx, tx, scene, prior, have)
			}
		}
		if err != nil {
			return err
		}
		if len(created) == 0 {
			return nil
		}
		return tx.CreateInstances(ctx, created)
	})
	if err != nil {
		return 0, p.rejected("propagate", err, zap.String("scene_id", sceneID))
	}

	for _, in := range created {
		p.cache.Invalidate(ctx, scene.BranchID, in.ProjectAssetID)
	}
	p.log.Info("propagated scene",
		zap.String("scene_id", sceneID),
		zap.Int("scene_number", scene.SceneNumber),
		zap.Int("created", len(created)))
	return len(created), nil
}

func (p *Propagator) bootstrap(ctx context.Context, tx store.Tx, scene model.Scene, have map[string]bool) ([]model.SceneAssetInstance, error) {
	assets, err := tx.ListAssets(ctx, scene.BranchID)
	if err != nil {
		return nil, fmt.Errorf("list assets of branch %s: %w", scene.BranchID, err)
	}
	now := p.now()
	var out []model.SceneAssetInstance
	for _, a := range assets {
		if !a.Bootstraps() || have[a.ID] {
			continue
		}
		var image *string
		if !a.Deferred() {
			image = model.CopyStringPtr(a.ImageKeyURL)
		}
		out = append(out, model.SceneAssetInstance{
			ID:                   p.newID(),
			SceneID:              scene.ID,
			ProjectAssetID:       a.ID,
			EffectiveDescription: a.Description,
			ImageKeyURL:          image,
			StatusTags:           []string{},
			CarryForward:         true,
			CreatedAt:            now,
			UpdatedAt:            now,
		})
	}
	return out, nil
}

func (p *Propagator) inherit(ctx context.Context, tx store.Tx, scene, prior model.Scene, have map[string]bool) ([]model.SceneAssetInstance, error) {
	if prior.SceneNumber >= scene.SceneNumber {
		err := model.Invariant(model.CodeTemporalParadox,
			"scene %d cannot inherit from scene %d", scene.SceneNumber, prior.SceneNumber)
		err.Details = map[string]any{"scene_number": scene.SceneNumber, "prior_scene_number": prior.SceneNumber}
		return nil, err
	}
	priors, err := tx.ListInstances(ctx, prior.ID)
	if err != nil {
		return nil, fmt.Errorf("list instances of scene %s: %w", prior.ID, err)
	}

	now := p.now()
	var out []model.SceneAssetInstance
	for _, src := range priors {
		if have[src.ProjectAssetID] {
			continue
		}
		next := model.SceneAssetInstance{
			ID:                      p.newID(),
			SceneID:                 scene.ID,
			ProjectAssetID:          src.ProjectAssetID,
			CarryForward:            true,
			InheritedFromInstanceID: model.StringPtr(src.ID),
			CreatedAt:               now,
			UpdatedAt:               now,
		}

		if !src.CarryForward {
			asset, err := tx.GetAsset(ctx, src.ProjectAssetID)
			if err != nil {
				return nil, fmt.Errorf("load asset %s: %w", src.ProjectAssetID, err)
			}
			next.EffectiveDescription = asset.Description
			next.ImageKeyURL = model.CopyStringPtr(asset.ImageKeyURL)
			next.StatusTags = []string{}
		} else {
			truth, err := currentTruth(ctx, tx, src, prior.SceneNumber)
			if err != nil {
				return nil, err
			}
			if truth.SourceSceneNumber >= scene.SceneNumber {
				return nil, model.Invariant(model.CodeTemporalParadox,
					"scene %d cannot inherit state from scene %d", scene.SceneNumber, truth.SourceSceneNumber)
			}
			next.ImageKeyURL = truth.ImageURL
			next.StatusTags = truth.StatusTags
			if truth.Transformed {
				next.EffectiveDescription = truth.Description
			} else {
				next.DescriptionOverride = model.CopyStringPtr(src.DescriptionOverride)
				next.EffectiveDescription = truth.Description
				if next.DescriptionOverride != nil {
					next.EffectiveDescription = *next.DescriptionOverride
				}
			}
		}
		have[src.ProjectAssetID] = true
		out = append(out, next)
	}
	return out, nil
}

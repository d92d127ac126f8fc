package continuity

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/scene-continuity/internal/model"
	"github.com/iliyamo/scene-continuity/internal/store"
)

// InstancePatch lists the instance fields a user edit or an accepted
// relevance suggestion may change.  Nil fields are left as they are.
type InstancePatch struct {
	DescriptionOverride *string   `json:"description_override"`
	ClearOverride       bool      `json:"clear_override"`
	StatusTags          *[]string `json:"status_tags"`
	CarryForward        *bool     `json:"carry_forward"`
	ImageKeyURL         *string   `json:"image_key_url"`
}

// Editor applies InstancePatch values.
type Editor struct {
	*deps
}

// UpdateInstance patches an instance.  The effective description is only
// recomputed when the patch sets or clears the override: it becomes the
// override, or without one the state the asset carried into this scene.
func (e *Editor) UpdateInstance(ctx context.Context, instanceID string, patch InstancePatch) (model.SceneAssetInstance, error) {
	if patch.StatusTags != nil {
		for _, tag := range *patch.StatusTags {
			if strings.TrimSpace(tag) == "" {
				return model.SceneAssetInstance{}, e.rejected("update instance",
					model.Invariant(model.CodeInvalidStatusTags, "status tags must not be blank"),
					zap.String("instance_id", instanceID))
			}
		}
	}
	owner, err := e.store.GetInstance(ctx, instanceID)
	if err != nil {
		return model.SceneAssetInstance{}, err
	}

	var (
		out    model.SceneAssetInstance
		branch string
	)
	err = e.store.WithSceneTx(ctx, owner.SceneID, func(tx store.Tx) error {
		inst, err := tx.GetInstance(ctx, instanceID)
		if err != nil {
			return err
		}
		asset, err := tx.GetAsset(ctx, inst.ProjectAssetID)
		if err != nil {
			return err
		}
		branch = asset.BranchID

		switch {
		case patch.ClearOverride:
			inst.DescriptionOverride = nil
		case patch.DescriptionOverride != nil:
			inst.DescriptionOverride = model.CopyStringPtr(patch.DescriptionOverride)
		}
		if patch.StatusTags != nil {
			inst.StatusTags = model.CloneTags(*patch.StatusTags)
		}
		if patch.CarryForward != nil {
			inst.CarryForward = *patch.CarryForward
		}
		if patch.ImageKeyURL != nil {
			inst.ImageKeyURL = model.CopyStringPtr(patch.ImageKeyURL)
		}
		if patch.ClearOverride || patch.DescriptionOverride != nil {
			if inst.DescriptionOverride != nil {
				inst.EffectiveDescription = *inst.DescriptionOverride
			} else {
				desc, err := priorDescription(ctx, tx, asset, inst.SceneID)
				if err != nil {
					return err
				}
				inst.EffectiveDescription = desc
			}
		}
		inst.UpdatedAt = e.now()
		out = inst
		return tx.UpdateInstance(ctx, inst)
	})
	if err != nil {
		return model.SceneAssetInstance{}, err
	}
	e.cache.Invalidate(ctx, branch, out.ProjectAssetID)
	e.log.Info("instance updated", zap.String("instance_id", out.ID), zap.String("scene_id", out.SceneID))
	return out, nil
}

// priorDescription is the resolved description of asset entering sceneID,
// or the asset's base description when no earlier scene has it.
func priorDescription(ctx context.Context, rd store.Reader, asset model.ProjectAsset, sceneID string) (string, error) {
	scene, err := rd.GetScene(ctx, sceneID)
	if err != nil {
		return "", err
	}
	st, err := resolve(ctx, rd, asset.BranchID, asset.ID, scene.SceneNumber)
	if errors.Is(err, model.ErrNotFound) {
		return asset.Description, nil
	}
	if err != nil {
		return "", err
	}
	return st.Description, nil
}

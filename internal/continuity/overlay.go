package continuity

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/scene-continuity/internal/model"
	"github.com/iliyamo/scene-continuity/internal/store"
)

// Overlay records transformation events.  It only ever writes the event
// table; instance rows belong to the Propagator and the Editor.
type Overlay struct {
	*deps
}

// CreateTransformationInput describes a new event.  Nil pre-state fields
// default to the instance's current truth.  An empty DetectedBy means the
// event was entered by hand.
type CreateTransformationInput struct {
	InstanceID       string
	TriggerShotID    string
	Type             model.TransformationType
	PostDescription  string
	PostStatusTags   []string
	CompletionShotID *string
	Narrative        *string
	PreDescription   *string
	PreStatusTags    []string
	DetectedBy       model.DetectedBy
}

// CreateResult is the stored event plus advisory warnings.
type CreateResult struct {
	Event    model.TransformationEvent `json:"event"`
	Warnings []string                  `json:"warnings,omitempty"`
}

// ChangeResult reports a confirm or dismiss.
type ChangeResult struct {
	Event    model.TransformationEvent
	BranchID string
	SceneID  string
	// Changed is false when the call was a no-op.
	Changed bool
}

func blank(p *string) bool { return p == nil || strings.TrimSpace(*p) == "" }

func validateCreate(in *CreateTransformationInput) ([]string, error) {
	if in.DetectedBy == "" {
		in.DetectedBy = model.DetectedByManual
	}
	if strings.TrimSpace(in.TriggerShotID) == "" {
		return nil, model.Invariant(model.CodeMissingTriggerShot, "trigger shot is required")
	}
	if !in.Type.Valid() {
		return nil, model.Invariant(model.CodeInvalidTransformationType, "unknown transformation type %q", in.Type)
	}
	if !in.DetectedBy.Valid() {
		return nil, model.Invariant(model.CodeInvalidDetectedBy, "unknown detector %q", in.DetectedBy)
	}
	if in.Type == model.TransformGradual && blank(in.CompletionShotID) {
		return nil, model.Invariant(model.CodeCompletionShotRequired, "gradual transformations need a completion shot")
	}
	if in.Type != model.TransformGradual && in.CompletionShotID != nil {
		return nil, model.Invariant(model.CodeCompletionShotNotAllowed, "only gradual transformations take a completion shot")
	}
	if in.DetectedBy == model.DetectedByManual && strings.TrimSpace(in.PostDescription) == "" {
		return nil, model.Invariant(model.CodeEmptyPostDescription, "manual transformations need a post description")
	}
	var warnings []string
	if in.Type == model.TransformWithinShot && blank(in.Narrative) {
		warnings = append(warnings, "within_shot transformation has no narrative")
	}
	return warnings, nil
}

// Create stores a new event against in.InstanceID.  Manual events are
// confirmed immediately; detector events wait for Confirm.
func (o *Overlay) Create(ctx context.Context, in CreateTransformationInput) (CreateResult, error) {
	warnings, err := validateCreate(&in)
	if err != nil {
		return CreateResult{}, o.rejected("create transformation", err, zap.String("instance_id", in.InstanceID))
	}
	owner, err := o.store.GetInstance(ctx, in.InstanceID)
	if err != nil {
		return CreateResult{}, err
	}

	var (
		ev    model.TransformationEvent
		scene model.Scene
	)
	err = o.store.WithSceneTx(ctx, owner.SceneID, func(tx store.Tx) error {
		inst, err := tx.GetInstance(ctx, in.InstanceID)
		if err != nil {
			return err
		}
		scene, err = tx.GetScene(ctx, inst.SceneID)
		if err != nil {
			return err
		}
		truth, err := currentTruth(ctx, tx, inst, scene.SceneNumber)
		if err != nil {
			return err
		}
		ev = model.TransformationEvent{
			ID:                      o.newID(),
			SceneAssetInstanceID:    inst.ID,
			TriggerShotID:           in.TriggerShotID,
			CompletionShotID:        model.CopyStringPtr(in.CompletionShotID),
			TransformationType:      in.Type,
			PreDescription:          truth.Description,
			PostDescription:         in.PostDescription,
			TransformationNarrative: model.CopyStringPtr(in.Narrative),
			PreStatusTags:           truth.StatusTags,
			PostStatusTags:          model.CloneTags(in.PostStatusTags),
			Confirmed:               in.DetectedBy == model.DetectedByManual,
			DetectedBy:              in.DetectedBy,
			CreatedAt:               o.now(),
		}
		if in.PreDescription != nil {
			ev.PreDescription = *in.PreDescription
		}
		if in.PreStatusTags != nil {
			ev.PreStatusTags = model.CloneTags(in.PreStatusTags)
		}
		return tx.CreateTransformation(ctx, ev)
	})
	if err != nil {
		return CreateResult{}, err
	}

	if ev.Confirmed {
		o.cache.Invalidate(ctx, scene.BranchID, owner.ProjectAssetID)
	}
	for _, w := range warnings {
		o.log.Warn(w, zap.String("event_id", ev.ID), zap.String("instance_id", ev.SceneAssetInstanceID))
	}
	o.log.Info("transformation created",
		zap.String("event_id", ev.ID),
		zap.String("instance_id", ev.SceneAssetInstanceID),
		zap.String("type", string(ev.TransformationType)),
		zap.Bool("confirmed", ev.Confirmed))
	return CreateResult{Event: ev, Warnings: warnings}, nil
}

// Confirm marks an event confirmed.  Confirming twice is a no-op.
func (o *Overlay) Confirm(ctx context.Context, eventID string) (ChangeResult, error) {
	res, err := o.mutate(ctx, eventID, func(ctx context.Context, tx store.Tx, ev *model.TransformationEvent) (bool, error) {
		if ev.Confirmed {
			return false, nil
		}
		if strings.TrimSpace(ev.PostDescription) == "" {
			return false, model.Invariant(model.CodeEmptyPostDescription,
				"transformation %s has no post description", ev.ID)
		}
		if err := tx.ConfirmTransformation(ctx, ev.ID); err != nil {
			return false, err
		}
		ev.Confirmed = true
		return true, nil
	})
	if err != nil {
		return ChangeResult{}, o.rejected("confirm transformation", err, zap.String("event_id", eventID))
	}
	if res.Changed {
		o.log.Info("transformation confirmed", zap.String("event_id", eventID))
	}
	return res, nil
}

// Dismiss deletes an event.  Instances already inherited from its
// post-state keep their values.
func (o *Overlay) Dismiss(ctx context.Context, eventID string) (ChangeResult, error) {
	res, err := o.mutate(ctx, eventID, func(ctx context.Context, tx store.Tx, ev *model.TransformationEvent) (bool, error) {
		return true, tx.DeleteTransformation(ctx, ev.ID)
	})
	if err != nil {
		return ChangeResult{}, err
	}
	o.log.Info("transformation dismissed", zap.String("event_id", eventID), zap.Bool("was_confirmed", res.Event.Confirmed))
	return res, nil
}

// mutate runs fn against the event under its scene lock and invalidates the
// cached state of the owning asset when a confirmed event changed.
func (o *Overlay) mutate(ctx context.Context, eventID string,
	fn func(context.Context, store.Tx, *model.TransformationEvent) (bool, error)) (ChangeResult, error) {

	ev, err := o.store.GetTransformation(ctx, eventID)
	if err != nil {
		return ChangeResult{}, err
	}
	owner, err := o.store.GetInstance(ctx, ev.SceneAssetInstanceID)
	if err != nil {
		return ChangeResult{}, fmt.Errorf("owner of transformation %s: %w", eventID, err)
	}

	var res ChangeResult
	err = o.store.WithSceneTx(ctx, owner.SceneID, func(tx store.Tx) error {
		cur, err := tx.GetTransformation(ctx, eventID)
		if err != nil {
			return err
		}
		scene, err := tx.GetScene(ctx, owner.SceneID)
		if err != nil {
			return err
		}
		changed, err := fn(ctx, tx, &cur)
		if err != nil {
			return err
		}
		res = ChangeResult{Event: cur, BranchID: scene.BranchID, SceneID: scene.ID, Changed: changed}
		return nil
	})
	if err != nil {
		return ChangeResult{}, err
	}
	if res.Changed && res.Event.Confirmed {
		o.cache.Invalidate(ctx, res.BranchID, owner.ProjectAssetID)
	}
	return res, nil
}

// LastStateForInheritance returns the post-state of the newest confirmed
// event of instanceID, or nil when it has none.  The instance must belong
// to sceneID.
func (o *Overlay) LastStateForInheritance(ctx context.Context, sceneID, instanceID string) (*model.TransformationState, error) {
	inst, err := o.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.SceneID != sceneID {
		return nil, model.NotFound("instance in scene "+sceneID, instanceID)
	}
	last, err := lastConfirmed(ctx, o.store, instanceID)
	if err != nil || last == nil {
		return nil, err
	}
	st := last.PostState()
	return &st, nil
}

// ListForInstance returns every event of an instance in creation order.
func (o *Overlay) ListForInstance(ctx context.Context, instanceID string) ([]model.TransformationEvent, error) {
	if _, err := o.store.GetInstance(ctx, instanceID); err != nil {
		return nil, err
	}
	return o.store.ListTransformations(ctx, instanceID)
}

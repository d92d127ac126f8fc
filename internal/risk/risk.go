// Package risk classifies how likely a scene's continuity is to be stale.
// The result is advisory; nothing in the engine blocks on it.
package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/scene-continuity/internal/model"
	"github.com/iliyamo/scene-continuity/internal/store"
)

// Level is the advisory risk level.
type Level string

const (
	Safe   Level = "safe"
	Risky  Level = "risky"
	Broken Level = "broken"
)

// Rule names the check that decided the level.
type Rule string

const (
	RuleFirstScene      Rule = "first_scene"
	RulePriorIncomplete Rule = "prior_incomplete"
	RuleUpstreamChanged Rule = "upstream_changed"
	RuleSceneFlagged    Rule = "scene_flagged"
	RuleClear           Rule = "clear"
)

// Assessment is a level plus the rule that produced it.
type Assessment struct {
	SceneID  string     `json:"scene_id"`
	Level    Level      `json:"level"`
	Rule     Rule       `json:"rule"`
	Upstream *time.Time `json:"latest_upstream_change,omitempty"`
}

// Classify runs the rules in order and stops at the first match:
//
//  1. no prior scene: safe
//  2. prior scene not fully rendered: risky
//  3. a stage 1-4 record newer than the scene's last update: broken
//  4. the scene is itself flagged outdated or broken: broken
//  5. otherwise safe
func Classify(scene model.Scene, prior *model.Scene, upstream []model.UpstreamStageState) Assessment {
	a := Assessment{SceneID: scene.ID}
	if prior == nil {
		a.Level, a.Rule = Safe, RuleFirstScene
		return a
	}
	if !prior.Status.IsComplete() {
		a.Level, a.Rule = Risky, RulePriorIncomplete
		return a
	}
	var latest time.Time
	for _, u := range upstream {
		if u.StageNumber < 1 || u.StageNumber > 4 {
			continue
		}
		if u.CreatedAt.After(latest) {
			latest = u.CreatedAt
		}
	}
	if !latest.IsZero() {
		a.Upstream = &latest
	}
	if latest.After(scene.UpdatedAt) {
		a.Level, a.Rule = Broken, RuleUpstreamChanged
		return a
	}
	if scene.Status.IsBrokenMarker() {
		a.Level, a.Rule = Broken, RuleSceneFlagged
		return a
	}
	a.Level, a.Rule = Safe, RuleClear
	return a
}

// Analyzer loads the inputs of Classify from a store.
type Analyzer struct {
	store store.Reader
}

// NewAnalyzer returns an Analyzer reading from rd.
func NewAnalyzer(rd store.Reader) *Analyzer {
	return &Analyzer{store: rd}
}

// Assess classifies sceneID against scene number-1 of its branch.
func (a *Analyzer) Assess(ctx context.Context, sceneID string) (Assessment, error) {
	scene, err := a.store.GetScene(ctx, sceneID)
	if err != nil {
		return Assessment{}, err
	}
	var prior *model.Scene
	if scene.SceneNumber > 1 {
		p, err := a.store.SceneByNumber(ctx, scene.BranchID, scene.SceneNumber-1)
		switch {
		case errors.Is(err, model.ErrNotFound):
		case err != nil:
			return Assessment{}, fmt.Errorf("load prior scene: %w", err)
		default:
			prior = &p
		}
	}
	upstream, err := a.store.ListUpstreamStageStates(ctx, scene.BranchID)
	if err != nil {
		return Assessment{}, fmt.Errorf("load upstream stage states: %w", err)
	}
	return Classify(scene, prior, upstream), nil
}

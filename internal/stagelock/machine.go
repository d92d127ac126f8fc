// Package stagelock gates the production stages 7 through 12 of a scene.
//
// Each stage moves draft -> locked -> outdated -> locked.  A stage can only
// lock once the stage before it is locked.  Unlocking a stage is two-phase:
// the first call reports what would be invalidated, the confirmed call sets
// the stage back to draft and marks every locked or outdated stage after it
// as outdated.
package stagelock

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/scene-continuity/internal/model"
	"github.com/iliyamo/scene-continuity/internal/store"
)

// Transition describes one state change, or a no-op when Changed is false.
type Transition struct {
	SceneID  string              `json:"scene_id"`
	Stage    model.StageNumber   `json:"stage"`
	From     model.StageStatus   `json:"from"`
	To       model.StageStatus   `json:"to"`
	Cascaded []model.StageNumber `json:"cascaded,omitempty"`
	At       time.Time           `json:"at"`
	Changed  bool                `json:"changed"`
}

// Impact is what a confirmed unlock would invalidate.
type Impact struct {
	Stage            model.StageNumber   `json:"stage"`
	DownstreamStages []model.StageNumber `json:"downstream_stages"`
	AffectedFrames   int                 `json:"affected_frames"`
	AffectedVideos   int                 `json:"affected_videos"`
}

// UnlockOutcome is the answer to either unlock phase.  Transition and Locks
// are only set once the unlock was confirmed.
type UnlockOutcome struct {
	Confirmed  bool              `json:"confirmed"`
	Impact     Impact            `json:"impact"`
	Transition *Transition       `json:"transition,omitempty"`
	Locks      *model.StageLocks `json:"-"`
}

// Options tunes a Machine.
type Options struct {
	Logger *zap.Logger
	Now    func() time.Time
}

// Machine runs stage transitions against a store.  Every mutation happens
// inside store.WithSceneTx.
type Machine struct {
	store store.Store
	log   *zap.Logger
	now   func() time.Time
}

// New returns a Machine over st.
func New(st store.Store, opts Options) *Machine {
	m := &Machine{store: st, log: opts.Logger, now: opts.Now}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	m.log = m.log.Named("stagelock")
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	return m
}

// Get returns the six stage slots of a scene.
func (m *Machine) Get(ctx context.Context, sceneID string) (model.StageLocks, error) {
	if _, err := m.store.GetScene(ctx, sceneID); err != nil {
		return model.StageLocks{}, err
	}
	return m.store.GetStageLocks(ctx, sceneID)
}

// Lock locks stage.  Locking an already locked stage succeeds without
// touching it.
func (m *Machine) Lock(ctx context.Context, sceneID string, stage model.StageNumber) (Transition, error) {
	if err := checkStage(stage); err != nil {
		return Transition{}, m.rejected("lock", sceneID, err)
	}
	var tr Transition
	err := m.store.WithSceneTx(ctx, sceneID, func(tx store.Tx) error {
		locks, err := tx.GetStageLocks(ctx, sceneID)
		if err != nil {
			return err
		}
		cur := locks.Get(stage)
		tr = Transition{SceneID: sceneID, Stage: stage, From: cur.Status, To: cur.Status}
		if cur.Status == model.StageLocked {
			if cur.LockedAt != nil {
				tr.At = *cur.LockedAt
			}
			return nil
		}
		if err := requirePredecessor(&locks, stage); err != nil {
			return err
		}
		tr.At = m.now()
		tr.To = model.StageLocked
		tr.Changed = true
		return tx.SaveStageLock(ctx, sceneID, model.StageLockEntry{Stage: stage, Status: model.StageLocked, LockedAt: &tr.At})
	})
	if err != nil {
		return Transition{}, m.rejected("lock", sceneID, err)
	}
	m.logTransition("stage locked", tr)
	return tr, nil
}

// Relock locks an outdated stage again without reviewing its content.
func (m *Machine) Relock(ctx context.Context, sceneID string, stage model.StageNumber) (Transition, error) {
	if err := checkStage(stage); err != nil {
		return Transition{}, m.rejected("relock", sceneID, err)
	}
	var tr Transition
	err := m.store.WithSceneTx(ctx, sceneID, func(tx store.Tx) error {
		locks, err := tx.GetStageLocks(ctx, sceneID)
		if err != nil {
			return err
		}
		if err := requirePredecessor(&locks, stage); err != nil {
			return err
		}
		cur := locks.Get(stage)
		if cur.Status != model.StageOutdated {
			e := model.Invariant(model.CodeStageNotOutdated,
				"stage %d is %s; only outdated stages can be relocked", stage, cur.Status)
			e.Stage = stage
			e.Details = map[string]any{"status": cur.Status}
			return e
		}
		tr = Transition{SceneID: sceneID, Stage: stage, From: cur.Status, To: model.StageLocked, At: m.now(), Changed: true}
		return tx.SaveStageLock(ctx, sceneID, model.StageLockEntry{Stage: stage, Status: model.StageLocked, LockedAt: &tr.At})
	})
	if err != nil {
		return Transition{}, m.rejected("relock", sceneID, err)
	}
	m.logTransition("stage relocked", tr)
	return tr, nil
}

// Unlock reopens stage.  Without confirm it only reports the impact and
// never writes.  With confirm the stage goes back to draft and every locked
// or outdated stage after it becomes outdated.
func (m *Machine) Unlock(ctx context.Context, sceneID string, stage model.StageNumber, confirm bool) (UnlockOutcome, error) {
	if err := checkStage(stage); err != nil {
		return UnlockOutcome{}, m.rejected("unlock", sceneID, err)
	}
	if !confirm {
		if _, err := m.store.GetScene(ctx, sceneID); err != nil {
			return UnlockOutcome{}, err
		}
		impact, _, err := assess(ctx, m.store, sceneID, stage)
		if err != nil {
			return UnlockOutcome{}, m.rejected("unlock", sceneID, err)
		}
		return UnlockOutcome{Impact: impact}, nil
	}

	var out UnlockOutcome
	err := m.store.WithSceneTx(ctx, sceneID, func(tx store.Tx) error {
		impact, locks, err := assess(ctx, tx, sceneID, stage)
		if err != nil {
			return err
		}
		at := m.now()
		tr := Transition{
			SceneID:  sceneID,
			Stage:    stage,
			From:     locks.Status(stage),
			To:       model.StageDraft,
			Cascaded: impact.DownstreamStages,
			At:       at,
			Changed:  true,
		}
		for _, e := range applyUnlock(&locks, stage) {
			if err := tx.SaveStageLock(ctx, sceneID, e); err != nil {
				return fmt.Errorf("save stage %d: %w", e.Stage, err)
			}
		}
		out = UnlockOutcome{Confirmed: true, Impact: impact, Transition: &tr, Locks: &locks}
		return nil
	})
	if err != nil {
		return UnlockOutcome{}, m.rejected("unlock", sceneID, err)
	}
	m.logTransition("stage unlocked", *out.Transition)
	return out, nil
}

// assess loads the lock table and computes the impact of unlocking stage.
func assess(ctx context.Context, rd store.Reader, sceneID string, stage model.StageNumber) (Impact, model.StageLocks, error) {
	locks, err := rd.GetStageLocks(ctx, sceneID)
	if err != nil {
		return Impact{}, locks, err
	}
	status := locks.Status(stage)
	if status != model.StageLocked && status != model.StageOutdated {
		e := model.Invariant(model.CodeStageNotLocked, "stage %d is %s; nothing to unlock", stage, status)
		e.Stage = stage
		e.Details = map[string]any{"status": status}
		return Impact{}, locks, e
	}
	counts, err := rd.CountActiveArtifacts(ctx, sceneID)
	if err != nil {
		return Impact{}, locks, fmt.Errorf("count artifacts of scene %s: %w", sceneID, err)
	}
	return Impact{
		Stage:            stage,
		DownstreamStages: downstream(&locks, stage),
		AffectedFrames:   counts.Frames,
		AffectedVideos:   counts.Videos,
	}, locks, nil
}

// downstream lists the stages after stage that are locked or outdated.
func downstream(locks *model.StageLocks, stage model.StageNumber) []model.StageNumber {
	out := []model.StageNumber{}
	for s := stage + 1; s <= model.LastStage; s++ {
		switch locks.Status(s) {
		case model.StageLocked, model.StageOutdated:
			out = append(out, s)
		}
	}
	return out
}

// applyUnlock mutates locks in place and returns the entries that changed.
// Outdated stages keep their original locked_at.
func applyUnlock(locks *model.StageLocks, stage model.StageNumber) []model.StageLockEntry {
	changed := []model.StageLockEntry{{Stage: stage, Status: model.StageDraft}}
	locks.Set(changed[0])
	for _, s := range downstream(locks, stage) {
		e := locks.Get(s)
		if e.Status == model.StageOutdated {
			continue
		}
		e.Status = model.StageOutdated
		locks.Set(e)
		changed = append(changed, e)
	}
	return changed
}

func checkStage(stage model.StageNumber) error {
	if stage.Valid() {
		return nil
	}
	e := model.Invariant(model.CodeInvalidStage, "stage %d is outside %d..%d", stage, model.FirstStage, model.LastStage)
	e.Stage = stage
	return e
}

func requirePredecessor(locks *model.StageLocks, stage model.StageNumber) error {
	prev, ok := stage.Predecessor()
	if !ok {
		return nil
	}
	if st := locks.Status(prev); st != model.StageLocked {
		e := model.Invariant(model.CodePredecessorNotLocked, "stage %d requires stage %d to be locked (it is %s)", stage, prev, st)
		e.Stage = stage
		e.BlockingStage = prev
		e.Details = map[string]any{"blocking_status": st}
		return e
	}
	return nil
}

func (m *Machine) logTransition(msg string, tr Transition) {
	if !tr.Changed {
		m.log.Debug("stage already locked", zap.String("scene_id", tr.SceneID), zap.Int("stage", int(tr.Stage)))
		return
	}
	fields := []zap.Field{
		zap.String("scene_id", tr.SceneID),
		zap.Int("stage", int(tr.Stage)),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
	}
	if len(tr.Cascaded) > 0 {
		fields = append(fields, zap.Ints("cascaded", stageInts(tr.Cascaded)))
	}
	m.log.Info(msg, fields...)
}

func (m *Machine) rejected(op, sceneID string, err error) error {
	if model.KindOf(err) == model.ErrorKindValidation {
		m.log.Debug(op+" rejected", zap.String("scene_id", sceneID), zap.Error(err))
	}
	return err
}

func stageInts(stages []model.StageNumber) []int {
	out := make([]int, len(stages))
	for i, s := range stages {
		out[i] = int(s)
	}
	return out
}

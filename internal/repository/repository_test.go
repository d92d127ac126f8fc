package repository_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/scene-continuity/internal/continuity"
	"github.com/iliyamo/scene-continuity/internal/database"
	"github.com/iliyamo/scene-continuity/internal/model"
	"github.com/iliyamo/scene-continuity/internal/repository"
	"github.com/iliyamo/scene-continuity/internal/stagelock"
	"github.com/iliyamo/scene-continuity/internal/store"
)

var t0 = time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

func mustOpenRepo(t *testing.T) *repository.Repository {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "continuity.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return repository.New(db)
}

func seedBranch(t *testing.T, r *repository.Repository, scenes int) {
	t.Helper()
	ctx := context.Background()
	if err := r.CreateBranch(ctx, model.Branch{ID: "b1", ProjectID: "p1", Name: "main", CreatedAt: t0}); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	for i := 1; i <= scenes; i++ {
		sc := model.Scene{ID: fmt.Sprintf("s%d", i), BranchID: "b1", SceneNumber: i, CreatedAt: t0, UpdatedAt: t0}
		if err := r.CreateScene(ctx, sc); err != nil {
			t.Fatalf("CreateScene failed: %v", err)
		}
	}
	assets := []model.ProjectAsset{
		{ID: "jones", BranchID: "b1", Name: "Jones", AssetType: model.AssetCharacter, Description: "trench coat",
			ImageKeyURL: model.StringPtr("img/jones.png"), Readiness: model.AssetLocked, CreatedAt: t0},
		{ID: "door", BranchID: "b1", Name: "Door", AssetType: model.AssetProp, Description: "frosted door",
			ImageKeyURL: model.StringPtr("img/door.png"), Readiness: model.AssetDeferred, CreatedAt: t0.Add(time.Second)},
		{ID: "alley", BranchID: "b1", Name: "Alley", AssetType: model.AssetLocation, Description: "wet alley",
			Readiness: model.AssetDraft, CreatedAt: t0.Add(2 * time.Second)},
	}
	for _, a := range assets {
		if err := r.CreateAsset(ctx, a); err != nil {
			t.Fatalf("CreateAsset failed: %v", err)
		}
	}
}

func TestMigrateIsRepeatable(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	first, err := database.Migrate(ctx, db)
	if err != nil || len(first) == 0 {
		t.Fatalf("first Migrate: %v %v", first, err)
	}
	second, err := database.Migrate(ctx, db)
	if err != nil || len(second) != 0 {
		t.Fatalf("second Migrate should apply nothing: %v %v", second, err)
	}
}

func TestNotFoundTranslation(t *testing.T) {
	r := mustOpenRepo(t)
	ctx := context.Background()
	if _, err := r.GetScene(ctx, "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetScene: expected not found, got %v", err)
	}
	if _, err := r.GetStageLocks(ctx, "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetStageLocks: expected not found, got %v", err)
	}
	err := r.WithSceneTx(ctx, "nope", func(store.Tx) error { return nil })
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("WithSceneTx: expected not found, got %v", err)
	}
}

func TestInheritanceRoundTrip(t *testing.T) {
	r := mustOpenRepo(t)
	seedBranch(t, r, 4)
	ctx := context.Background()
	n := 0
	eng := continuity.New(r, continuity.Options{
		Now:   func() time.Time { return t0.Add(time.Hour) },
		NewID: func() string { n++; return fmt.Sprintf("id-%03d", n) },
	})

	created, err := eng.Propagator.Propagate(ctx, "s1")
	if err != nil || created != 2 {
		t.Fatalf("bootstrap: created=%d err=%v", created, err)
	}
	list, err := r.ListInstances(ctx, "s1")
	if err != nil {
		t.Fatalf("ListInstances failed: %v", err)
	}
	var jonesID string
	for _, in := range list {
		switch in.ProjectAssetID {
		case "jones":
			jonesID = in.ID
		case "door":
			if in.ImageKeyURL != nil {
				t.Fatalf("deferred asset stored an image: %q", *in.ImageKeyURL)
			}
		}
		if in.StatusTags == nil || len(in.StatusTags) != 0 {
			t.Fatalf("expected empty non-nil tags, got %#v", in.StatusTags)
		}
	}

	res, err := eng.Overlay.Create(ctx, continuity.CreateTransformationInput{
		InstanceID: jonesID, TriggerShotID: "sh1", Type: model.TransformGradual,
		CompletionShotID: model.StringPtr("sh3"),
		PostDescription:  "torn and bloody", PostStatusTags: []string{"bloody", "torn"},
		DetectedBy: model.DetectedByRelevance,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := eng.Overlay.Confirm(ctx, res.Event.ID); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	stored, err := r.GetTransformation(ctx, res.Event.ID)
	if err != nil {
		t.Fatalf("GetTransformation failed: %v", err)
	}
	if !stored.Confirmed || stored.CompletionShotID == nil || *stored.CompletionShotID != "sh3" {
		t.Fatalf("unexpected stored event %+v", stored)
	}

	// Scene 2 skips jones entirely; scene 4 still sees scene 1's transformed state.
	st, err := eng.Resolver.Resolve(ctx, "b1", "jones", 4)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if st.SourceSceneNumber != 1 || st.Description != "torn and bloody" || !reflect.DeepEqual(st.StatusTags, []string{"bloody", "torn"}) {
		t.Fatalf("unexpected resolved state %+v", st)
	}

	if created, err := eng.Propagator.Propagate(ctx, "s2"); err != nil || created != 2 {
		t.Fatalf("inherit: created=%d err=%v", created, err)
	}
	if created, err := eng.Propagator.Propagate(ctx, "s2"); err != nil || created != 0 {
		t.Fatalf("repeat inherit: created=%d err=%v", created, err)
	}
	prior, number, err := r.LatestInstanceBefore(ctx, "b1", "jones", 3)
	if err != nil || number != 2 {
		t.Fatalf("LatestInstanceBefore: number=%d err=%v", number, err)
	}
	if prior.EffectiveDescription != "torn and bloody" || prior.InheritedFromInstanceID == nil || *prior.InheritedFromInstanceID != jonesID {
		t.Fatalf("unexpected inherited instance %+v", prior)
	}
}

func TestStageLocksPersist(t *testing.T) {
	r := mustOpenRepo(t)
	seedBranch(t, r, 1)
	ctx := context.Background()
	m := stagelock.New(r, stagelock.Options{Now: func() time.Time { return t0 }})

	for _, s := range []model.StageNumber{7, 8, 9, 10} {
		if _, err := m.Lock(ctx, "s1", s); err != nil {
			t.Fatalf("Lock(%d) failed: %v", s, err)
		}
	}
	if err := r.CreateShot(ctx, model.Shot{ID: "sh1", SceneID: "s1", ShotOrder: 1}); err != nil {
		t.Fatalf("CreateShot failed: %v", err)
	}
	for i, status := range []string{"generated", model.ArtifactInvalidated, "generated"} {
		if err := r.CreateFrame(ctx, model.Frame{ID: fmt.Sprintf("f%d", i), ShotID: "sh1", Status: status}); err != nil {
			t.Fatalf("CreateFrame failed: %v", err)
		}
	}
	if err := r.CreateVideo(ctx, model.Video{ID: "v1", ShotID: "sh1", Status: model.ArtifactInvalidated}); err != nil {
		t.Fatalf("CreateVideo failed: %v", err)
	}

	preview, err := m.Unlock(ctx, "s1", 8, false)
	if err != nil {
		t.Fatalf("Unlock preview failed: %v", err)
	}
	if preview.Impact.AffectedFrames != 2 || preview.Impact.AffectedVideos != 0 {
		t.Fatalf("unexpected impact %+v", preview.Impact)
	}

	if _, err := m.Unlock(ctx, "s1", 8, true); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	locks, err := r.GetStageLocks(ctx, "s1")
	if err != nil {
		t.Fatalf("GetStageLocks failed: %v", err)
	}
	want := []model.StageStatus{model.StageLocked, model.StageDraft, model.StageOutdated, model.StageOutdated, model.StageDraft, model.StageDraft}
	for i, e := range locks {
		if e.Status != want[i] {
			t.Fatalf("stage %d: got %s want %s", e.Stage, e.Status, want[i])
		}
	}
	if e := locks.Get(9); e.LockedAt == nil || !e.LockedAt.Equal(t0) {
		t.Fatalf("outdated stage should keep its locked_at, got %+v", e)
	}
}

func TestUpstreamStageStatesFilterRange(t *testing.T) {
	r := mustOpenRepo(t)
	seedBranch(t, r, 1)
	ctx := context.Background()
	for _, u := range []model.UpstreamStageState{
		{ID: "u1", BranchID: "b1", StageNumber: 1, Status: "locked", CreatedAt: t0},
		{ID: "u4", BranchID: "b1", StageNumber: 4, Status: "locked", CreatedAt: t0.Add(time.Minute)},
		{ID: "u5", BranchID: "b1", StageNumber: 5, Status: "locked", CreatedAt: t0.Add(time.Hour)},
	} {
		if err := r.CreateUpstreamStageState(ctx, u); err != nil {
			t.Fatalf("CreateUpstreamStageState failed: %v", err)
		}
	}
	got, err := r.ListUpstreamStageStates(ctx, "b1")
	if err != nil {
		t.Fatalf("ListUpstreamStageStates failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "u1" || got[1].ID != "u4" || !got[1].CreatedAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("unexpected records %+v", got)
	}
}

func TestDuplicateInstanceConflicts(t *testing.T) {
	r := mustOpenRepo(t)
	seedBranch(t, r, 1)
	ctx := context.Background()
	in := model.SceneAssetInstance{ID: "i1", SceneID: "s1", ProjectAssetID: "jones", StatusTags: []string{}, CreatedAt: t0, UpdatedAt: t0}
	if err := r.WithSceneTx(ctx, "s1", func(tx store.Tx) error {
		return tx.CreateInstances(ctx, []model.SceneAssetInstance{in})
	}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	in.ID = "i2"
	err := r.WithSceneTx(ctx, "s1", func(tx store.Tx) error {
		return tx.CreateInstances(ctx, []model.SceneAssetInstance{in})
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestConcurrentPropagateIsSerialized(t *testing.T) {
	r := mustOpenRepo(t)
	seedBranch(t, r, 2)
	ctx := context.Background()
	eng := continuity.New(r, continuity.Options{})
	if _, err := eng.Propagator.Propagate(ctx, "s1"); err != nil {
		t.Fatalf("Propagate s1 failed: %v", err)
	}

	const workers = 8
	counts := make([]int, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			counts[i], errs[i] = eng.Propagator.Propagate(ctx, "s2")
		}(i)
	}
	wg.Wait()

	total := 0
	for i := range counts {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		total += counts[i]
	}
	list, err := r.ListInstances(ctx, "s2")
	if err != nil {
		t.Fatalf("ListInstances failed: %v", err)
	}
	if len(list) != 2 || total != 2 {
		t.Fatalf("expected 2 instances created once, got %d rows and counts summing to %d", len(list), total)
	}
}

func TestConcurrentUnlockAndLockAreSerialized(t *testing.T) {
	const rounds = 10
	r := mustOpenRepo(t)
	seedBranch(t, r, rounds)
	ctx := context.Background()
	m := stagelock.New(r, stagelock.Options{})

	for i := 1; i <= rounds; i++ {
		sceneID := fmt.Sprintf("s%d", i)
		for _, st := range []model.StageNumber{7, 8, 9, 10} {
			if _, err := m.Lock(ctx, sceneID, st); err != nil {
				t.Fatalf("Lock(%d) failed: %v", st, err)
			}
		}
		var wg sync.WaitGroup
		var lockErr, unlockErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, unlockErr = m.Unlock(ctx, sceneID, 8, true)
		}()
		go func() {
			defer wg.Done()
			_, lockErr = m.Lock(ctx, sceneID, 11)
		}()
		wg.Wait()

		if unlockErr != nil {
			t.Fatalf("%s: Unlock failed: %v", sceneID, unlockErr)
		}
		if lockErr != nil && !errors.Is(lockErr, model.ErrInvariant) {
			t.Fatalf("%s: Lock failed: %v", sceneID, lockErr)
		}
		locks, err := r.GetStageLocks(ctx, sceneID)
		if err != nil {
			t.Fatalf("GetStageLocks failed: %v", err)
		}
		for _, e := range locks {
			prev, ok := e.Stage.Predecessor()
			if ok && e.Status == model.StageLocked && locks.Status(prev) != model.StageLocked {
				t.Fatalf("%s: stage %d locked while stage %d is %s", sceneID, e.Stage, prev, locks.Status(prev))
			}
		}
	}
}

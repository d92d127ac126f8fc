package continuity_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/iliyamo/scene-continuity/internal/continuity"
	"github.com/iliyamo/scene-continuity/internal/model"
	"github.com/iliyamo/scene-continuity/internal/store"
	"github.com/iliyamo/scene-continuity/internal/store/memstore"
)

type fixture struct {
	store  *memstore.Store
	engine *continuity.Engine
	cache  *recordingCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memstore.New()
	s.PutBranch(model.Branch{ID: "b1", Name: "main"})
	for i := 1; i <= 5; i++ {
		s.PutScene(model.Scene{ID: fmt.Sprintf("s%d", i), BranchID: "b1", SceneNumber: i, Status: model.SceneDraft})
	}
	s.PutAsset(model.ProjectAsset{ID: "jones", BranchID: "b1", Name: "Detective Jones", AssetType: model.AssetCharacter,
		Description: "trench coat, fedora", ImageKeyURL: model.StringPtr("img/jones.png"), Readiness: model.AssetLocked})
	s.PutAsset(model.ProjectAsset{ID: "door", BranchID: "b1", Name: "Office door", AssetType: model.AssetProp,
		Description: "frosted glass door", ImageKeyURL: model.StringPtr("img/door.png"), Readiness: model.AssetDeferred})
	s.PutAsset(model.ProjectAsset{ID: "alley", BranchID: "b1", Name: "Alley", AssetType: model.AssetLocation,
		Description: "wet alley", Readiness: model.AssetDraft})

	n := 0
	cache := newRecordingCache()
	eng := continuity.New(s, continuity.Options{
		Cache: cache,
		Now:   func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) },
		NewID: func() string { n++; return fmt.Sprintf("id-%03d", n) },
	})
	return &fixture{store: s, engine: eng, cache: cache}
}

func (f *fixture) instanceFor(t *testing.T, sceneID, assetID string) model.SceneAssetInstance {
	t.Helper()
	list, err := f.store.ListInstances(context.Background(), sceneID)
	if err != nil {
		t.Fatalf("ListInstances failed: %v", err)
	}
	for _, in := range list {
		if in.ProjectAssetID == assetID {
			return in
		}
	}
	t.Fatalf("scene %s has no instance of %s", sceneID, assetID)
	return model.SceneAssetInstance{}
}

// recordingCache is an in-memory StateCache that counts invalidations.
type recordingCache struct {
	entries     map[string]model.AssetState
	invalidated map[string]int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[string]model.AssetState{}, invalidated: map[string]int{}}
}

func (c *recordingCache) Get(_ context.Context, b, a string, before int) (model.AssetState, bool) {
	st, ok := c.entries[fmt.Sprintf("%s/%s/%d", b, a, before)]
	return st, ok
}

func (c *recordingCache) Put(_ context.Context, b, a string, before int, st model.AssetState) {
	c.entries[fmt.Sprintf("%s/%s/%d", b, a, before)] = st
}

func (c *recordingCache) Invalidate(_ context.Context, b, a string) {
	c.invalidated[b+"/"+a]++
	for k := range c.entries {
		if len(k) > len(b+"/"+a+"/") && k[:len(b+"/"+a+"/")] == b+"/"+a+"/" {
			delete(c.entries, k)
		}
	}
}

func TestBootstrapCreatesLockedAndDeferredAssets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.engine.Propagator.Propagate(ctx, "s1")
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 instances (locked + deferred), got %d", n)
	}

	jones := f.instanceFor(t, "s1", "jones")
	if jones.ImageKeyURL == nil || *jones.ImageKeyURL != "img/jones.png" {
		t.Fatalf("locked asset should keep its image, got %v", jones.ImageKeyURL)
	}
	if jones.DescriptionOverride != nil || jones.EffectiveDescription != "trench coat, fedora" {
		t.Fatalf("unexpected description fields %+v", jones)
	}
	if !jones.CarryForward || jones.InheritedFromInstanceID != nil || len(jones.StatusTags) != 0 {
		t.Fatalf("unexpected bootstrap defaults %+v", jones)
	}

	door := f.instanceFor(t, "s1", "door")
	if door.ImageKeyURL != nil {
		t.Fatalf("deferred asset must start without image, got %q", *door.ImageKeyURL)
	}
}

func TestPropagateTwiceCreatesNothingNew(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.Propagator.Propagate(ctx, "s1"); err != nil {
		t.Fatalf("first Propagate failed: %v", err)
	}
	n, err := f.engine.Propagator.Propagate(ctx, "s1")
	if err != nil {
		t.Fatalf("second Propagate failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no new instances, got %d", n)
	}
	list, _ := f.store.ListInstances(ctx, "s1")
	if len(list) != 2 {
		t.Fatalf("expected 2 instances total, got %d", len(list))
	}
}

func TestPropagateUnknownScene(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Propagator.Propagate(context.Background(), "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// paradoxStore hands out a "previous" scene that is not actually earlier.
type paradoxStore struct {
	*memstore.Store
	prior model.Scene
}

type paradoxTx struct {
	store.Tx
	prior model.Scene
}

func (p paradoxTx) SceneByNumber(context.Context, string, int) (model.Scene, error) {
	return p.prior, nil
}

func (p paradoxStore) WithSceneTx(ctx context.Context, sceneID string, fn func(store.Tx) error) error {
	return p.Store.WithSceneTx(ctx, sceneID, func(tx store.Tx) error {
		return fn(paradoxTx{Tx: tx, prior: p.prior})
	})
}

func TestPropagateRejectsInheritanceFromLaterScene(t *testing.T) {
	cases := []struct {
		name  string
		prior model.Scene
	}{
		{"later scene", model.Scene{ID: "s4", BranchID: "b1", SceneNumber: 4}},
		{"same scene", model.Scene{ID: "s3", BranchID: "b1", SceneNumber: 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.PutInstance(model.SceneAssetInstance{ID: "j4", SceneID: "s4", ProjectAssetID: "jones", CarryForward: true})
			eng := continuity.New(paradoxStore{Store: f.store, prior: tc.prior}, continuity.Options{})

			_, err := eng.Propagator.Propagate(context.Background(), "s3")
			var inv *model.InvariantError
			if !errors.As(err, &inv) || inv.Code != model.CodeTemporalParadox {
				t.Fatalf("expected temporal paradox, got %v", err)
			}
			if !errors.Is(err, model.ErrInvariant) {
				t.Fatalf("temporal paradox should wrap ErrInvariant")
			}
			list, _ := f.store.ListInstances(context.Background(), "s3")
			if len(list) != 0 {
				t.Fatalf("nothing may be written on failure, found %d instances", len(list))
			}
		})
	}
}

func TestResetWhenCarryForwardDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutInstance(model.SceneAssetInstance{
		ID: "j1", SceneID: "s1", ProjectAssetID: "jones",
		DescriptionOverride:  model.StringPtr("soaked to the bone"),
		EffectiveDescription: "soaked to the bone",
		ImageKeyURL:          model.StringPtr("img/jones-wet.png"),
		StatusTags:           []string{"wet", "bleeding"},
		CarryForward:         false,
	})

	if _, err := f.engine.Propagator.Propagate(ctx, "s2"); err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	got := f.instanceFor(t, "s2", "jones")
	if got.DescriptionOverride != nil {
		t.Fatalf("override must reset, got %q", *got.DescriptionOverride)
	}
	if got.EffectiveDescription != "trench coat, fedora" {
		t.Fatalf("expected base description, got %q", got.EffectiveDescription)
	}
	if got.ImageKeyURL == nil || *got.ImageKeyURL != "img/jones.png" {
		t.Fatalf("expected base image, got %v", got.ImageKeyURL)
	}
	if len(got.StatusTags) != 0 {
		t.Fatalf("expected empty tags, got %v", got.StatusTags)
	}
	if got.InheritedFromInstanceID == nil || *got.InheritedFromInstanceID != "j1" {
		t.Fatalf("lineage should point at j1, got %v", got.InheritedFromInstanceID)
	}
}

func TestStatusTagsCarryIntoNextScene(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutInstance(model.SceneAssetInstance{
		ID: "j2", SceneID: "s2", ProjectAssetID: "jones",
		EffectiveDescription: "trench coat, fedora",
		StatusTags:           []string{"muddy"},
		CarryForward:         true,
	})

	if _, err := f.engine.Propagator.Propagate(ctx, "s3"); err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	got := f.instanceFor(t, "s3", "jones")
	if !reflect.DeepEqual(got.StatusTags, []string{"muddy"}) {
		t.Fatalf("expected [muddy], got %v", got.StatusTags)
	}
	if !got.CarryForward || got.InheritedFromInstanceID == nil || *got.InheritedFromInstanceID != "j2" {
		t.Fatalf("unexpected inheritance fields %+v", got)
	}
}

func TestCarriedOverrideStaysOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutInstance(model.SceneAssetInstance{
		ID: "j1", SceneID: "s1", ProjectAssetID: "jones",
		DescriptionOverride:  model.StringPtr("coat removed"),
		EffectiveDescription: "coat removed",
		CarryForward:         true,
	})

	if _, err := f.engine.Propagator.Propagate(ctx, "s2"); err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	got := f.instanceFor(t, "s2", "jones")
	if got.DescriptionOverride == nil || *got.DescriptionOverride != "coat removed" {
		t.Fatalf("override lost: %v", got.DescriptionOverride)
	}
	if got.EffectiveDescription != "coat removed" {
		t.Fatalf("effective description %q", got.EffectiveDescription)
	}
}

func TestTransformedStateWinsOverStoredFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutInstance(model.SceneAssetInstance{
		ID: "j2", SceneID: "s2", ProjectAssetID: "jones",
		DescriptionOverride:  model.StringPtr("neat suit"),
		EffectiveDescription: "neat suit",
		StatusTags:           []string{"clean"},
		CarryForward:         true,
	})
	f.store.PutTransformation(model.TransformationEvent{
		ID: "e1", SceneAssetInstanceID: "j2", TriggerShotID: "sh1",
		TransformationType: model.TransformInstant,
		PostDescription:    "torn and bloody", PostStatusTags: []string{"bloody"},
		Confirmed: true, DetectedBy: model.DetectedByManual,
	})
	f.store.PutTransformation(model.TransformationEvent{
		ID: "e2", SceneAssetInstanceID: "j2", TriggerShotID: "sh2",
		TransformationType: model.TransformInstant,
		PostDescription:    "pending suggestion",
		Confirmed:          false, DetectedBy: model.DetectedByRelevance,
	})

	for _, before := range []int{3, 4, 5} {
		st, err := f.engine.Resolver.Resolve(ctx, "b1", "jones", before)
		if err != nil {
			t.Fatalf("Resolve(before=%d) failed: %v", before, err)
		}
		if st.Description != "torn and bloody" || !st.Transformed {
			t.Fatalf("before=%d: expected transformed post-state, got %+v", before, st)
		}
		if !reflect.DeepEqual(st.StatusTags, []string{"bloody"}) || st.SourceSceneNumber != 2 || st.SourceInstanceID != "j2" {
			t.Fatalf("before=%d: unexpected state %+v", before, st)
		}
	}

	if _, err := f.engine.Propagator.Propagate(ctx, "s3"); err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	got := f.instanceFor(t, "s3", "jones")
	if got.DescriptionOverride != nil || got.EffectiveDescription != "torn and bloody" {
		t.Fatalf("transformed state should replace the override, got %+v", got)
	}
	if !reflect.DeepEqual(got.StatusTags, []string{"bloody"}) {
		t.Fatalf("expected post tags, got %v", got.StatusTags)
	}
}

func TestResolveFindsEarlierAppearance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutInstance(model.SceneAssetInstance{
		ID: "j2", SceneID: "s2", ProjectAssetID: "jones",
		EffectiveDescription: "hat askew", StatusTags: []string{"tired"}, CarryForward: true,
	})

	st, err := f.engine.Resolver.Resolve(ctx, "b1", "jones", 4)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if st.SourceSceneNumber != 2 || st.Description != "hat askew" {
		t.Fatalf("expected scene 2 state, got %+v", st)
	}

	if _, err := f.engine.Resolver.Resolve(ctx, "b1", "jones", 2); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found before first appearance, got %v", err)
	}
}

func TestResolveServesFromCacheUntilInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutInstance(model.SceneAssetInstance{ID: "j1", SceneID: "s1", ProjectAssetID: "jones",
		EffectiveDescription: "first", CarryForward: true})

	if _, err := f.engine.Resolver.Resolve(ctx, "b1", "jones", 2); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, ok := f.cache.Get(ctx, "b1", "jones", 2); !ok {
		t.Fatal("expected the result to be cached")
	}

	if _, err := f.engine.Editor.UpdateInstance(ctx, "j1", continuity.InstancePatch{DescriptionOverride: model.StringPtr("second")}); err != nil {
		t.Fatalf("UpdateInstance failed: %v", err)
	}
	if f.cache.invalidated["b1/jones"] == 0 {
		t.Fatal("edit should invalidate the cached state")
	}
	st, err := f.engine.Resolver.Resolve(ctx, "b1", "jones", 2)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if st.Description != "second" {
		t.Fatalf("expected fresh state, got %q", st.Description)
	}
}

func TestPropagateFallsBackToBootstrapWhenPredecessorMissing(t *testing.T) {
	f := newFixture(t)
	f.store.PutScene(model.Scene{ID: "s9", BranchID: "b1", SceneNumber: 9})

	n, err := f.engine.Propagator.Propagate(context.Background(), "s9")
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected bootstrap of 2 assets, got %d", n)
	}
	if got := f.instanceFor(t, "s9", "jones"); got.InheritedFromInstanceID != nil {
		t.Fatalf("bootstrap must not record lineage, got %v", *got.InheritedFromInstanceID)
	}
}

func TestUpdateInstanceRecomputesEffectiveDescription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutInstance(model.SceneAssetInstance{ID: "j1", SceneID: "s1", ProjectAssetID: "jones",
		EffectiveDescription: "trench coat, fedora", CarryForward: true})

	tags := []string{"muddy"}
	off := false
	got, err := f.engine.Editor.UpdateInstance(ctx, "j1", continuity.InstancePatch{
		DescriptionOverride: model.StringPtr("mud to the knees"),
		StatusTags:          &tags,
		CarryForward:        &off,
	})
	if err != nil {
		t.Fatalf("UpdateInstance failed: %v", err)
	}
	if got.EffectiveDescription != "mud to the knees" || got.CarryForward || !reflect.DeepEqual(got.StatusTags, tags) {
		t.Fatalf("unexpected instance %+v", got)
	}

	got, err = f.engine.Editor.UpdateInstance(ctx, "j1", continuity.InstancePatch{ClearOverride: true})
	if err != nil {
		t.Fatalf("UpdateInstance failed: %v", err)
	}
	if got.DescriptionOverride != nil || got.EffectiveDescription != "trench coat, fedora" {
		t.Fatalf("clearing the override should restore the base description, got %+v", got)
	}

	blankTags := []string{" "}
	if _, err := f.engine.Editor.UpdateInstance(ctx, "j1", continuity.InstancePatch{StatusTags: &blankTags}); !errors.Is(err, model.ErrInvariant) {
		t.Fatalf("expected invariant error for blank tag, got %v", err)
	}
}

func TestUpdateInstanceKeepsInheritedState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.engine.Propagator.Propagate(ctx, "s1"); err != nil {
		t.Fatalf("Propagate s1 failed: %v", err)
	}
	j1 := f.instanceFor(t, "s1", "jones")
	if _, err := f.engine.Overlay.Create(ctx, continuity.CreateTransformationInput{
		InstanceID: j1.ID, TriggerShotID: "sh1", Type: model.TransformInstant,
		PostDescription: "torn and bloody", PostStatusTags: []string{"bloody"},
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := f.engine.Propagator.Propagate(ctx, "s2"); err != nil {
		t.Fatalf("Propagate s2 failed: %v", err)
	}
	j2 := f.instanceFor(t, "s2", "jones")

	tags := []string{"muddy"}
	got, err := f.engine.Editor.UpdateInstance(ctx, j2.ID, continuity.InstancePatch{StatusTags: &tags})
	if err != nil {
		t.Fatalf("UpdateInstance failed: %v", err)
	}
	if got.EffectiveDescription != "torn and bloody" {
		t.Fatalf("tag edit changed the description to %q", got.EffectiveDescription)
	}

	if _, err := f.engine.Editor.UpdateInstance(ctx, j2.ID, continuity.InstancePatch{DescriptionOverride: model.StringPtr("bandaged")}); err != nil {
		t.Fatalf("UpdateInstance failed: %v", err)
	}
	got, err = f.engine.Editor.UpdateInstance(ctx, j2.ID, continuity.InstancePatch{ClearOverride: true})
	if err != nil {
		t.Fatalf("UpdateInstance failed: %v", err)
	}
	if got.EffectiveDescription != "torn and bloody" {
		t.Fatalf("clearing the override should restore the inherited state, got %q", got.EffectiveDescription)
	}

	if _, err := f.engine.Propagator.Propagate(ctx, "s3"); err != nil {
		t.Fatalf("Propagate s3 failed: %v", err)
	}
	j3 := f.instanceFor(t, "s3", "jones")
	if j3.EffectiveDescription != "torn and bloody" || !reflect.DeepEqual(j3.StatusTags, tags) {
		t.Fatalf("scene 3 inherited %q %v", j3.EffectiveDescription, j3.StatusTags)
	}
}

// Package memstore is an in-memory implementation of store.Store.  It backs
// the engine tests and the "memory" database driver used for local runs.
//
// A transaction works on a copy of the state and swaps it in on success, so
// a failed unit of work leaves nothing behind.  Transactions hold the store
// lock for their whole duration which serializes them across all scenes.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/iliyamo/scene-continuity/internal/model"
	"github.com/iliyamo/scene-continuity/internal/store"
)

type state struct {
	seq   uint64
	order map[string]uint64

	branches  map[string]model.Branch
	scenes    map[string]model.Scene
	assets    map[string]model.ProjectAsset
	instances map[string]model.SceneAssetInstance
	events    map[string]model.TransformationEvent
	locks     map[string]model.StageLocks
	shots     map[string]model.Shot
	frames    map[string]model.Frame
	videos    map[string]model.Video
	upstream  map[string]model.UpstreamStageState
}

func newState() state {
	return state{
		order:     map[string]uint64{},
		branches:  map[string]model.Branch{},
		scenes:    map[string]model.Scene{},
		assets:    map[string]model.ProjectAsset{},
		instances: map[string]model.SceneAssetInstance{},
		events:    map[string]model.TransformationEvent{},
		locks:     map[string]model.StageLocks{},
		shots:     map[string]model.Shot{},
		frames:    map[string]model.Frame{},
		videos:    map[string]model.Video{},
		upstream:  map[string]model.UpstreamStageState{},
	}
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone copies the maps.  Stored values are never mutated in place, only
// replaced, so sharing them between the copies is safe.
func (s state) clone() state {
	return state{
		seq:       s.seq,
		order:     copyMap(s.order),
		branches:  copyMap(s.branches),
		scenes:    copyMap(s.scenes),
		assets:    copyMap(s.assets),
		instances: copyMap(s.instances),
		events:    copyMap(s.events),
		locks:     copyMap(s.locks),
		shots:     copyMap(s.shots),
		frames:    copyMap(s.frames),
		videos:    copyMap(s.videos),
		upstream:  copyMap(s.upstream),
	}
}

func (s *state) track(id string) {
	if _, ok := s.order[id]; ok {
		return
	}
	s.seq++
	s.order[id] = s.seq
}

func (s *state) sortByOrder(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return s.order[ids[i]] < s.order[ids[j]] })
}

func cloneInstance(in model.SceneAssetInstance) model.SceneAssetInstance {
	in.DescriptionOverride = model.CopyStringPtr(in.DescriptionOverride)
	in.ImageKeyURL = model.CopyStringPtr(in.ImageKeyURL)
	in.InheritedFromInstanceID = model.CopyStringPtr(in.InheritedFromInstanceID)
	in.StatusTags = model.CloneTags(in.StatusTags)
	return in
}

func cloneEvent(ev model.TransformationEvent) model.TransformationEvent {
	ev.CompletionShotID = model.CopyStringPtr(ev.CompletionShotID)
	ev.TransformationNarrative = model.CopyStringPtr(ev.TransformationNarrative)
	ev.PreStatusTags = model.CloneTags(ev.PreStatusTags)
	ev.PostStatusTags = model.CloneTags(ev.PostStatusTags)
	return ev
}

// Store is safe for concurrent use.
type Store struct {
	mu sync.RWMutex
	st state
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// WithSceneTx implements store.Store.
func (s *Store) WithSceneTx(ctx context.Context, sceneID string, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := s.st.scenes[sceneID]; !ok {
		return model.NotFound("scene", sceneID)
	}
	next := s.st.clone()
	if err := fn(&tx{view{st: &next}}); err != nil {
		return err
	}
	s.st = next
	return nil
}

func (s *Store) view() view { return view{st: &s.st} }

func (s *Store) GetScene(ctx context.Context, sceneID string) (model.Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetScene(ctx, sceneID)
}

func (s *Store) SceneByNumber(ctx context.Context, branchID string, number int) (model.Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().SceneByNumber(ctx, branchID, number)
}

func (s *Store) GetAsset(ctx context.Context, assetID string) (model.ProjectAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetAsset(ctx, assetID)
}

func (s *Store) ListAssets(ctx context.Context, branchID string) ([]model.ProjectAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListAssets(ctx, branchID)
}

func (s *Store) GetInstance(ctx context.Context, instanceID string) (model.SceneAssetInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetInstance(ctx, instanceID)
}

func (s *Store) ListInstances(ctx context.Context, sceneID string) ([]model.SceneAssetInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListInstances(ctx, sceneID)
}

func (s *Store) LatestInstanceBefore(ctx context.Context, branchID, assetID string, before int) (model.SceneAssetInstance, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().LatestInstanceBefore(ctx, branchID, assetID, before)
}

func (s *Store) GetTransformation(ctx context.Context, eventID string) (model.TransformationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetTransformation(ctx, eventID)
}

func (s *Store) ListTransformations(ctx context.Context, instanceID string) ([]model.TransformationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListTransformations(ctx, instanceID)
}

func (s *Store) GetStageLocks(ctx context.Context, sceneID string) (model.StageLocks, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetStageLocks(ctx, sceneID)
}

func (s *Store) CountActiveArtifacts(ctx context.Context, sceneID string) (model.ArtifactCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().CountActiveArtifacts(ctx, sceneID)
}

func (s *Store) ListUpstreamStageStates(ctx context.Context, branchID string) ([]model.UpstreamStageState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListUpstreamStageStates(ctx, branchID)
}

// view answers reads against one state snapshot.
type view struct {
	st *state
}

func (v view) GetScene(_ context.Context, sceneID string) (model.Scene, error) {
	sc, ok := v.st.scenes[sceneID]
	if !ok {
		return model.Scene{}, model.NotFound("scene", sceneID)
	}
	return sc, nil
}

func (v view) SceneByNumber(_ context.Context, branchID string, number int) (model.Scene, error) {
	for _, sc := range v.st.scenes {
		if sc.BranchID == branchID && sc.SceneNumber == number {
			return sc, nil
		}
	}
	return model.Scene{}, model.NotFound("scene", fmt.Sprintf("%s#%d", branchID, number))
}

func (v view) GetAsset(_ context.Context, assetID string) (model.ProjectAsset, error) {
	a, ok := v.st.assets[assetID]
	if !ok {
		return model.ProjectAsset{}, model.NotFound("asset", assetID)
	}
	a.ImageKeyURL = model.CopyStringPtr(a.ImageKeyURL)
	return a, nil
}

func (v view) ListAssets(_ context.Context, branchID string) ([]model.ProjectAsset, error) {
	var ids []string
	for id, a := range v.st.assets {
		if a.BranchID == branchID {
			ids = append(ids, id)
		}
	}
	v.st.sortByOrder(ids)
	out := make([]model.ProjectAsset, 0, len(ids))
	for _, id := range ids {
		a := v.st.assets[id]
		a.ImageKeyURL = model.CopyStringPtr(a.ImageKeyURL)
		out = append(out, a)
	}
	return out, nil
}

func (v view) GetInstance(_ context.Context, instanceID string) (model.SceneAssetInstance, error) {
	in, ok := v.st.instances[instanceID]
	if !ok {
		return model.SceneAssetInstance{}, model.NotFound("instance", instanceID)
	}
	return cloneInstance(in), nil
}

func (v view) ListInstances(_ context.Context, sceneID string) ([]model.SceneAssetInstance, error) {
	var ids []string
	for id, in := range v.st.instances {
		if in.SceneID == sceneID {
			ids = append(ids, id)
		}
	}
	v.st.sortByOrder(ids)
	out := make([]model.SceneAssetInstance, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneInstance(v.st.instances[id]))
	}
	return out, nil
}

func (v view) LatestInstanceBefore(_ context.Context, branchID, assetID string, before int) (model.SceneAssetInstance, int, error) {
	var (
		best   model.SceneAssetInstance
		number int
		found  bool
	)
	for _, in := range v.st.instances {
		if in.ProjectAssetID != assetID {
			continue
		}
		sc, ok := v.st.scenes[in.SceneID]
		if !ok || sc.BranchID != branchID || sc.SceneNumber >= before {
			continue
		}
		if !found || sc.SceneNumber > number {
			best, number, found = in, sc.SceneNumber, true
		}
	}
	if !found {
		return model.SceneAssetInstance{}, 0, model.NotFound("prior instance of asset", assetID)
	}
	return cloneInstance(best), number, nil
}

func (v view) GetTransformation(_ context.Context, eventID string) (model.TransformationEvent, error) {
	ev, ok := v.st.events[eventID]
	if !ok {
		return model.TransformationEvent{}, model.NotFound("transformation", eventID)
	}
	return cloneEvent(ev), nil
}

func (v view) ListTransformations(_ context.Context, instanceID string) ([]model.TransformationEvent, error) {
	var ids []string
	for id, ev := range v.st.events {
		if ev.SceneAssetInstanceID == instanceID {
			ids = append(ids, id)
		}
	}
	v.st.sortByOrder(ids)
	out := make([]model.TransformationEvent, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneEvent(v.st.events[id]))
	}
	return out, nil
}

func (v view) GetStageLocks(_ context.Context, sceneID string) (model.StageLocks, error) {
	if _, ok := v.st.scenes[sceneID]; !ok {
		return model.StageLocks{}, model.NotFound("scene", sceneID)
	}
	locks, ok := v.st.locks[sceneID]
	if !ok {
		return model.NewStageLocks(), nil
	}
	return locks, nil
}

func (v view) CountActiveArtifacts(_ context.Context, sceneID string) (model.ArtifactCounts, error) {
	shots := map[string]bool{}
	for id, sh := range v.st.shots {
		if sh.SceneID == sceneID {
			shots[id] = true
		}
	}
	var c model.ArtifactCounts
	for _, f := range v.st.frames {
		if shots[f.ShotID] && f.Status != model.ArtifactInvalidated {
			c.Frames++
		}
	}
	for _, vid := range v.st.videos {
		if shots[vid.ShotID] && vid.Status != model.ArtifactInvalidated {
			c.Videos++
		}
	}
	return c, nil
}

func (v view) ListUpstreamStageStates(_ context.Context, branchID string) ([]model.UpstreamStageState, error) {
	var ids []string
	for id, u := range v.st.upstream {
		if u.BranchID == branchID {
			ids = append(ids, id)
		}
	}
	v.st.sortByOrder(ids)
	out := make([]model.UpstreamStageState, 0, len(ids))
	for _, id := range ids {
		out = append(out, v.st.upstream[id])
	}
	return out, nil
}

// tx adds the write side on top of a private state copy.
type tx struct {
	view
}

func (t *tx) CreateInstances(_ context.Context, instances []model.SceneAssetInstance) error {
	for _, in := range instances {
		if _, ok := t.st.scenes[in.SceneID]; !ok {
			return model.NotFound("scene", in.SceneID)
		}
		if _, ok := t.st.instances[in.ID]; ok {
			return fmt.Errorf("instance %s: %w", in.ID, store.ErrConflict)
		}
		for _, other := range t.st.instances {
			if other.SceneID == in.SceneID && other.ProjectAssetID == in.ProjectAssetID {
				return fmt.Errorf("scene %s already has an instance of asset %s: %w", in.SceneID, in.ProjectAssetID, store.ErrConflict)
			}
		}
		t.st.instances[in.ID] = cloneInstance(in)
		t.st.track(in.ID)
	}
	return nil
}

func (t *tx) UpdateInstance(_ context.Context, in model.SceneAssetInstance) error {
	if _, ok := t.st.instances[in.ID]; !ok {
		return model.NotFound("instance", in.ID)
	}
	t.st.instances[in.ID] = cloneInstance(in)
	return nil
}

func (t *tx) CreateTransformation(_ context.Context, ev model.TransformationEvent) error {
	if _, ok := t.st.instances[ev.SceneAssetInstanceID]; !ok {
		return model.NotFound("instance", ev.SceneAssetInstanceID)
	}
	t.st.events[ev.ID] = cloneEvent(ev)
	t.st.track(ev.ID)
	return nil
}

func (t *tx) ConfirmTransformation(_ context.Context, eventID string) error {
	ev, ok := t.st.events[eventID]
	if !ok {
		return model.NotFound("transformation", eventID)
	}
	ev = cloneEvent(ev)
	ev.Confirmed = true
	t.st.events[eventID] = ev
	return nil
}

func (t *tx) DeleteTransformation(_ context.Context, eventID string) error {
	if _, ok := t.st.events[eventID]; !ok {
		return model.NotFound("transformation", eventID)
	}
	delete(t.st.events, eventID)
	return nil
}

func (t *tx) SaveStageLock(_ context.Context, sceneID string, entry model.StageLockEntry) error {
	if !entry.Stage.Valid() {
		return fmt.Errorf("save stage lock: stage %d out of range", entry.Stage)
	}
	locks, ok := t.st.locks[sceneID]
	if !ok {
		locks = model.NewStageLocks()
	}
	locks.Set(entry)
	t.st.locks[sceneID] = locks
	return nil
}

package memstore

import "github.com/iliyamo/scene-continuity/internal/model"

// The Put methods load fixtures.  They bypass transactions and the
// uniqueness checks of the write path.

func (s *Store) PutBranch(b model.Branch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.branches[b.ID] = b
	s.st.track(b.ID)
}

func (s *Store) PutScene(sc model.Scene) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.scenes[sc.ID] = sc
	s.st.track(sc.ID)
}

func (s *Store) PutAsset(a model.ProjectAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ImageKeyURL = model.CopyStringPtr(a.ImageKeyURL)
	s.st.assets[a.ID] = a
	s.st.track(a.ID)
}

func (s *Store) PutInstance(in model.SceneAssetInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.instances[in.ID] = cloneInstance(in)
	s.st.track(in.ID)
}

func (s *Store) PutTransformation(ev model.TransformationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.events[ev.ID] = cloneEvent(ev)
	s.st.track(ev.ID)
}

// PutStageLocks replaces the whole lock table of a scene.
func (s *Store) PutStageLocks(sceneID string, locks model.StageLocks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.locks[sceneID] = locks
}

func (s *Store) PutShot(sh model.Shot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.shots[sh.ID] = sh
	s.st.track(sh.ID)
}

func (s *Store) PutFrame(f model.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.frames[f.ID] = f
	s.st.track(f.ID)
}

func (s *Store) PutVideo(v model.Video) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.videos[v.ID] = v
	s.st.track(v.ID)
}

func (s *Store) PutUpstreamStageState(u model.UpstreamStageState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.upstream[u.ID] = u
	s.st.track(u.ID)
}

package model

import "time"

// Branch is an ordered timeline of scenes within a project.  Alternate
// narrative paths live in separate branches.
type Branch struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// SceneStatus tracks how far a scene has progressed through rendering.
type SceneStatus string

const (
	SceneDraft            SceneStatus = "draft"
	SceneShotListReady    SceneStatus = "shot_list_ready"
	SceneFramesReady      SceneStatus = "frames_ready"
	SceneVideoComplete    SceneStatus = "video_complete"
	SceneOutdated         SceneStatus = "outdated"
	SceneContinuityBroken SceneStatus = "continuity_broken"
)

// IsComplete reports whether the scene is fully rendered.
func (s SceneStatus) IsComplete() bool { return s == SceneVideoComplete }

// IsBrokenMarker reports whether the status explicitly flags the scene as
// out of date or broken.
func (s SceneStatus) IsBrokenMarker() bool {
	return s == SceneOutdated || s == SceneContinuityBroken
}

// Scene is one position in a branch.  SceneNumber is unique and contiguous
// within the branch, starting at 1.
type Scene struct {
	ID          string      `json:"id"`
	BranchID    string      `json:"branch_id"`
	SceneNumber int         `json:"scene_number"`
	Status      SceneStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// UpstreamStageState is a branch level artifact record for stages 1-4
// (treatment, beat sheet, script, master assets).  Only CreatedAt matters
// to continuity checks.
type UpstreamStageState struct {
	ID          string    `json:"id"`
	BranchID    string    `json:"branch_id"`
	StageNumber int       `json:"stage_number"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Shot, Frame and Video are read here only to size unlock impact.

type Shot struct {
	ID        string `json:"id"`
	SceneID   string `json:"scene_id"`
	ShotOrder int    `json:"shot_order"`
}

// ArtifactInvalidated is the status generation jobs use for artifacts that
// no longer reflect their inputs.
const ArtifactInvalidated = "invalidated"

type Frame struct {
	ID     string `json:"id"`
	ShotID string `json:"shot_id"`
	Status string `json:"status"`
}

type Video struct {
	ID     string `json:"id"`
	ShotID string `json:"shot_id"`
	Status string `json:"status"`
}

// ArtifactCounts is the number of non-invalidated frames and videos
// belonging to a scene's shots.
type ArtifactCounts struct {
	Frames int `json:"frames"`
	Videos int `json:"videos"`
}

package model

import "time"

// AssetType classifies a project asset.
type AssetType string

const (
	AssetCharacter AssetType = "character"
	AssetProp      AssetType = "prop"
	AssetLocation  AssetType = "location"
)

// AssetReadiness is the readiness flag of a master asset.  Only locked and
// deferred assets take part in scene bootstrap.
type AssetReadiness string

const (
	AssetDraft    AssetReadiness = "draft"
	AssetLocked   AssetReadiness = "locked"
	AssetDeferred AssetReadiness = "deferred"
)

// ProjectAsset is the canonical definition of a character, prop or
// location.  Description and ImageKeyURL are the base truth every scene
// instance starts from or resets to.
type ProjectAsset struct {
	ID          string         `json:"id"`
	BranchID    string         `json:"branch_id"`
	Name        string         `json:"name"`
	AssetType   AssetType      `json:"asset_type"`
	Description string         `json:"description"`
	ImageKeyURL *string        `json:"image_key_url"`
	Readiness   AssetReadiness `json:"readiness"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Bootstraps reports whether the asset seeds a first scene.
func (a ProjectAsset) Bootstraps() bool {
	return a.Readiness == AssetLocked || a.Readiness == AssetDeferred
}

// Deferred reports whether the asset's image has not been produced yet.
func (a ProjectAsset) Deferred() bool { return a.Readiness == AssetDeferred }

// SceneAssetInstance is the realization of one ProjectAsset inside one
// Scene.  There is at most one instance per (scene, asset) pair.
//
// InheritedFromInstanceID is lineage for auditing only and is never
// followed when computing state.
type SceneAssetInstance struct {
	ID                      string    `json:"id"`
	SceneID                 string    `json:"scene_id"`
	ProjectAssetID          string    `json:"project_asset_id"`
	DescriptionOverride     *string   `json:"description_override"`
	EffectiveDescription    string    `json:"effective_description"`
	ImageKeyURL             *string   `json:"image_key_url"`
	StatusTags              []string  `json:"status_tags"`
	CarryForward            bool      `json:"carry_forward"`
	InheritedFromInstanceID *string   `json:"inherited_from_instance_id"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// AssetState is the resolved "current truth" of an asset as of some point
// in a branch.
type AssetState struct {
	Description       string   `json:"description"`
	ImageURL          *string  `json:"image_url"`
	StatusTags        []string `json:"status_tags"`
	SourceSceneNumber int      `json:"source_scene_number"`
	SourceInstanceID  string   `json:"source_instance_id"`
	Transformed       bool     `json:"transformed"`
}

// CloneTags copies a tag slice so callers never share backing arrays.  A
// nil input yields an empty, non-nil slice.
func CloneTags(tags []string) []string {
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string { return &s }

// CopyStringPtr returns a pointer to a copy of *p, or nil.
func CopyStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

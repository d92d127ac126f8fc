package model

import "time"

// TransformationType describes how a change unfolds across the shots of a
// scene.
type TransformationType string

const (
	TransformInstant    TransformationType = "instant"
	TransformGradual    TransformationType = "gradual"
	TransformWithinShot TransformationType = "within_shot"
)

func (t TransformationType) Valid() bool {
	switch t {
	case TransformInstant, TransformGradual, TransformWithinShot:
		return true
	}
	return false
}

// DetectedBy records who proposed a transformation event.
type DetectedBy string

const (
	DetectedByExtraction DetectedBy = "stage7_extraction"
	DetectedByRelevance  DetectedBy = "stage8_relevance"
	DetectedByManual     DetectedBy = "manual"
)

func (d DetectedBy) Valid() bool {
	switch d {
	case DetectedByExtraction, DetectedByRelevance, DetectedByManual:
		return true
	}
	return false
}

// TransformationEvent is a recorded in-scene change to one asset instance.
// Only the most recently created confirmed event of an instance counts
// toward that instance's current truth.
type TransformationEvent struct {
	ID                      string             `json:"id"`
	SceneAssetInstanceID    string             `json:"scene_asset_instance_id"`
	TriggerShotID           string             `json:"trigger_shot_id"`
	CompletionShotID        *string            `json:"completion_shot_id"`
	TransformationType      TransformationType `json:"transformation_type"`
	PreDescription          string             `json:"pre_description"`
	PostDescription         string             `json:"post_description"`
	TransformationNarrative *string            `json:"transformation_narrative"`
	PreStatusTags           []string           `json:"pre_status_tags"`
	PostStatusTags          []string           `json:"post_status_tags"`
	Confirmed               bool               `json:"confirmed"`
	DetectedBy              DetectedBy         `json:"detected_by"`
	CreatedAt               time.Time          `json:"created_at"`
}

// TransformationState is the post-state an event hands to inheritance.
type TransformationState struct {
	Description string   `json:"description"`
	StatusTags  []string `json:"status_tags"`
}

// PostState returns the event's post description and tags.
func (e TransformationEvent) PostState() TransformationState {
	return TransformationState{
		Description: e.PostDescription,
		StatusTags:  CloneTags(e.PostStatusTags),
	}
}

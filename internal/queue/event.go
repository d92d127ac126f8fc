// Package queue defines the audit events published to the message broker and
// the consumer that records them.
package queue

import (
	"encoding/json"
	"time"
)

// AuditQueueName is the default durable queue for audit events.
const AuditQueueName = "continuity.audit"

// Event is implemented by every payload that can be published.
type Event interface {
	EventType() string
}

// Event type names.
const (
	TypeStageTransition       = "stage.transition"
	TypeInheritanceCompleted  = "inheritance.completed"
	TypeTransformationChanged = "transformation.changed"
)

// Envelope is the wire shape of every message: the type selects how Payload
// is decoded.
type Envelope struct {
	Type       string          `json:"type"`
	OccurredAt string          `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Wrap marshals ev into an Envelope stamped with at.
func Wrap(ev Event, at time.Time) (Envelope, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: ev.EventType(), OccurredAt: at.UTC().Format(time.RFC3339Nano), Payload: body}, nil
}

// StageTransitionEvent is published after a lock, unlock or re-lock commits.
// Cascaded lists the downstream stages an unlock marked outdated.
type StageTransitionEvent struct {
	SceneID  string `json:"scene_id"`
	Stage    int    `json:"stage"`
	Action   string `json:"action"` // lock, unlock, relock
	From     string `json:"from"`
	To       string `json:"to"`
	Cascaded []int  `json:"cascaded,omitempty"`
	Subject  string `json:"subject,omitempty"`
}

func (StageTransitionEvent) EventType() string { return TypeStageTransition }

// InheritanceCompletedEvent is published after a propagation commits.
type InheritanceCompletedEvent struct {
	SceneID string `json:"scene_id"`
	Created int    `json:"created"`
	Subject string `json:"subject,omitempty"`
}

func (InheritanceCompletedEvent) EventType() string { return TypeInheritanceCompleted }

// TransformationChangedEvent is published when a transformation event is
// created, confirmed or dismissed.
type TransformationChangedEvent struct {
	TransformationID string `json:"transformation_id"`
	InstanceID       string `json:"instance_id"`
	SceneID          string `json:"scene_id,omitempty"`
	Action           string `json:"action"` // created, confirmed, dismissed
	Kind             string `json:"kind"`
	Confirmed        bool   `json:"confirmed"`
	Subject          string `json:"subject,omitempty"`
}

func (TransformationChangedEvent) EventType() string { return TypeTransformationChanged }

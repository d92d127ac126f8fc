package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by stores, the engine and the HTTP layer.  Use
// errors.Is against these; the typed errors below carry the detail.
var (
	// ErrNotFound is returned when a scene, asset, instance or event is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvariant marks a client error: the request would break one of the
	// continuity or stage ordering rules.
	ErrInvariant = errors.New("invariant violation")

	// ErrUpstream marks a failure of an external collaborator.
	ErrUpstream = errors.New("upstream dependency failure")
)

// ErrorKind is the coarse class used for logging and response mapping.
type ErrorKind string

const (
	ErrorKindNotFound   ErrorKind = "not_found"
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindUpstream   ErrorKind = "upstream"
	ErrorKindInternal   ErrorKind = "internal"
)

// KindOf classifies err.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrInvariant):
		return ErrorKindValidation
	case errors.Is(err, ErrUpstream):
		return ErrorKindUpstream
	default:
		return ErrorKindInternal
	}
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a *NotFoundError.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// InvariantCode identifies which rule a request violated.
type InvariantCode string

const (
	CodeTemporalParadox           InvariantCode = "temporal_paradox"
	CodePredecessorNotLocked      InvariantCode = "predecessor_not_locked"
	CodeStageNotLocked            InvariantCode = "stage_not_locked"
	CodeStageNotOutdated          InvariantCode = "stage_not_outdated"
	CodeInvalidStage              InvariantCode = "invalid_stage"
	CodeCompletionShotRequired    InvariantCode = "completion_shot_required"
	CodeCompletionShotNotAllowed  InvariantCode = "completion_shot_not_allowed"
	CodeEmptyPostDescription      InvariantCode = "empty_post_description"
	CodeMissingTriggerShot        InvariantCode = "missing_trigger_shot"
	CodeInvalidTransformationType InvariantCode = "invalid_transformation_type"
	CodeInvalidDetectedBy         InvariantCode = "invalid_detected_by"
	CodeInvalidStatusTags         InvariantCode = "invalid_status_tags"
)

// InvariantError is a client error with enough structure to render a
// precise message: which stage, which predecessor blocks it and any extra
// numbers the caller may want to show.
type InvariantError struct {
	Code          InvariantCode  `json:"code"`
	Message       string         `json:"message"`
	Stage         StageNumber    `json:"stage,omitempty"`
	BlockingStage StageNumber    `json:"blocking_stage,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

// Invariant builds an *InvariantError with a formatted message.
func Invariant(code InvariantCode, format string, args ...any) *InvariantError {
	return &InvariantError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// UpstreamError wraps a failure reported by an external collaborator.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() []error { return []error{ErrUpstream, e.Err} }

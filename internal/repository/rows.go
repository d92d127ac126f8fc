package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iliyamo/scene-continuity/internal/model"
)

// timeLayout is fixed width so stored timestamps order correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may use plain RFC3339.
		if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t2.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode status tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(raw string) ([]string, error) {
	tags := []string{}
	if raw == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("decode status tags: %w", err)
	}
	return tags, nil
}

type sceneRow struct {
	ID          string `db:"id"`
	BranchID    string `db:"branch_id"`
	SceneNumber int    `db:"scene_number"`
	Status      string `db:"status"`
	CreatedAt   string `db:"created_at"`
	UpdatedAt   string `db:"updated_at"`
}

func (r sceneRow) toModel() (model.Scene, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return model.Scene{}, err
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return model.Scene{}, err
	}
	return model.Scene{
		ID:          r.ID,
		BranchID:    r.BranchID,
		SceneNumber: r.SceneNumber,
		Status:      model.SceneStatus(r.Status),
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}

type assetRow struct {
	ID          string         `db:"id"`
	BranchID    string         `db:"branch_id"`
	Name        string         `db:"name"`
	AssetType   string         `db:"asset_type"`
	Description string         `db:"description"`
	ImageKeyURL sql.NullString `db:"image_key_url"`
	Readiness   string         `db:"readiness"`
	CreatedAt   string         `db:"created_at"`
}

func (r assetRow) toModel() (model.ProjectAsset, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return model.ProjectAsset{}, err
	}
	return model.ProjectAsset{
		ID:          r.ID,
		BranchID:    r.BranchID,
		Name:        r.Name,
		AssetType:   model.AssetType(r.AssetType),
		Description: r.Description,
		ImageKeyURL: stringPtr(r.ImageKeyURL),
		Readiness:   model.AssetReadiness(r.Readiness),
		CreatedAt:   created,
	}, nil
}

type instanceRow struct {
	ID                      string         `db:"id"`
	SceneID                 string         `db:"scene_id"`
	ProjectAssetID          string         `db:"project_asset_id"`
	DescriptionOverride     sql.NullString `db:"description_override"`
	EffectiveDescription    string         `db:"effective_description"`
	ImageKeyURL             sql.NullString `db:"image_key_url"`
	StatusTags              string         `db:"status_tags"`
	CarryForward            bool           `db:"carry_forward"`
	InheritedFromInstanceID sql.NullString `db:"inherited_from_instance_id"`
	CreatedAt               string         `db:"created_at"`
	UpdatedAt               string         `db:"updated_at"`
}

// instanceWithNumber is the LatestInstanceBefore projection.
type instanceWithNumber struct {
	instanceRow
	SceneNumber int `db:"scene_number"`
}

func (r instanceRow) toModel() (model.SceneAssetInstance, error) {
	tags, err := decodeTags(r.StatusTags)
	if err != nil {
		return model.SceneAssetInstance{}, err
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return model.SceneAssetInstance{}, err
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return model.SceneAssetInstance{}, err
	}
	return model.SceneAssetInstance{
		ID:                      r.ID,
		SceneID:                 r.SceneID,
		ProjectAssetID:          r.ProjectAssetID,
		DescriptionOverride:     stringPtr(r.DescriptionOverride),
		EffectiveDescription:    r.EffectiveDescription,
		ImageKeyURL:             stringPtr(r.ImageKeyURL),
		StatusTags:              tags,
		CarryForward:            r.CarryForward,
		InheritedFromInstanceID: stringPtr(r.InheritedFromInstanceID),
		CreatedAt:               created,
		UpdatedAt:               updated,
	}, nil
}

type eventRow struct {
	ID                      string         `db:"id"`
	SceneAssetInstanceID    string         `db:"scene_asset_instance_id"`
	TriggerShotID           string         `db:"trigger_shot_id"`
	CompletionShotID        sql.NullString `db:"completion_shot_id"`
	TransformationType      string         `db:"transformation_type"`
	PreDescription          string         `db:"pre_description"`
	PostDescription         string         `db:"post_description"`
	TransformationNarrative sql.NullString `db:"transformation_narrative"`
	PreStatusTags           string         `db:"pre_status_tags"`
	PostStatusTags          string         `db:"post_status_tags"`
	Confirmed               bool           `db:"confirmed"`
	DetectedBy              string         `db:"detected_by"`
	CreatedAt               string         `db:"created_at"`
}

func (r eventRow) toModel() (model.TransformationEvent, error) {
	pre, err := decodeTags(r.PreStatusTags)
	if err != nil {
		return model.TransformationEvent{}, err
	}
	post, err := decodeTags(r.PostStatusTags)
	if err != nil {
		return model.TransformationEvent{}, err
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return model.TransformationEvent{}, err
	}
	return model.TransformationEvent{
		ID:                      r.ID,
		SceneAssetInstanceID:    r.SceneAssetInstanceID,
		TriggerShotID:           r.TriggerShotID,
		CompletionShotID:        stringPtr(r.CompletionShotID),
		TransformationType:      model.TransformationType(r.TransformationType),
		PreDescription:          r.PreDescription,
		PostDescription:         r.PostDescription,
		TransformationNarrative: stringPtr(r.TransformationNarrative),
		PreStatusTags:           pre,
		PostStatusTags:          post,
		Confirmed:               r.Confirmed,
		DetectedBy:              model.DetectedBy(r.DetectedBy),
		CreatedAt:               created,
	}, nil
}

type stageLockRow struct {
	StageNumber int            `db:"stage_number"`
	Status      string         `db:"status"`
	LockedAt    sql.NullString `db:"locked_at"`
}

type upstreamRow struct {
	ID          string `db:"id"`
	BranchID    string `db:"branch_id"`
	StageNumber int    `db:"stage_number"`
	Status      string `db:"status"`
	CreatedAt   string `db:"created_at"`
}

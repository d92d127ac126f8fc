package repository

import (
	"context"
	"fmt"

	"github.com/iliyamo/scene-continuity/internal/model"
)

// The Create methods below insert the rows this service only reads.  Other
// services own those tables in production; these exist for local setup and
// tests.

func (r *Repository) CreateBranch(ctx context.Context, b model.Branch) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO branches (id, project_id, name, created_at) VALUES (?, ?, ?, ?)`,
		b.ID, b.ProjectID, b.Name, formatTime(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert branch: %w", err)
	}
	return nil
}

func (r *Repository) CreateScene(ctx context.Context, s model.Scene) error {
	status := s.Status
	if status == "" {
		status = model.SceneDraft
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scenes (`+sceneColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.BranchID, s.SceneNumber, string(status), formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert scene: %w", err)
	}
	return nil
}

func (r *Repository) CreateAsset(ctx context.Context, a model.ProjectAsset) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO project_assets (`+assetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.BranchID, a.Name, string(a.AssetType), a.Description, nullString(a.ImageKeyURL),
		string(a.Readiness), formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

func (r *Repository) CreateShot(ctx context.Context, s model.Shot) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO shots (id, scene_id, shot_order) VALUES (?, ?, ?)`, s.ID, s.SceneID, s.ShotOrder)
	if err != nil {
		return fmt.Errorf("insert shot: %w", err)
	}
	return nil
}

func (r *Repository) CreateFrame(ctx context.Context, f model.Frame) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO frames (id, shot_id, status) VALUES (?, ?, ?)`, f.ID, f.ShotID, f.Status)
	if err != nil {
		return fmt.Errorf("insert frame: %w", err)
	}
	return nil
}

func (r *Repository) CreateVideo(ctx context.Context, v model.Video) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO videos (id, shot_id, status) VALUES (?, ?, ?)`, v.ID, v.ShotID, v.Status)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

func (r *Repository) CreateUpstreamStageState(ctx context.Context, u model.UpstreamStageState) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO upstream_stage_states (id, branch_id, stage_number, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.BranchID, u.StageNumber, u.Status, formatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert upstream stage state: %w", err)
	}
	return nil
}

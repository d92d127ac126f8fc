package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/scene-continuity/internal/model"
)

// queries runs every statement against either the pool or an open
// transaction.  Both dialects use "?" placeholders so no rebinding is needed.
type queries struct {
	q sqlx.ExtContext
}

const sceneColumns = `id, branch_id, scene_number, status, created_at, updated_at`

const assetColumns = `id, branch_id, name, asset_type, description, image_key_url, readiness, created_at`

const instanceColumns = `id, scene_id, project_asset_id, description_override, effective_description,
	image_key_url, status_tags, carry_forward, inherited_from_instance_id, created_at, updated_at`

const eventColumns = `id, scene_asset_instance_id, trigger_shot_id, completion_shot_id, transformation_type,
	pre_description, post_description, transformation_narrative, pre_status_tags, post_status_tags,
	confirmed, detected_by, created_at`

func (r queries) GetScene(ctx context.Context, sceneID string) (model.Scene, error) {
	var row sceneRow
	if err := sqlx.GetContext(ctx, r.q, &row, `SELECT `+sceneColumns+` FROM scenes WHERE id = ?`, sceneID); err != nil {
		return model.Scene{}, notFound(err, "scene", sceneID)
	}
	return row.toModel()
}

func (r queries) SceneByNumber(ctx context.Context, branchID string, number int) (model.Scene, error) {
	var row sceneRow
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT `+sceneColumns+` FROM scenes WHERE branch_id = ? AND scene_number = ?`, branchID, number)
	if err != nil {
		return model.Scene{}, notFound(err, "scene", branchID+"#"+strconv.Itoa(number))
	}
	return row.toModel()
}

func (r queries) GetAsset(ctx context.Context, assetID string) (model.ProjectAsset, error) {
	var row assetRow
	if err := sqlx.GetContext(ctx, r.q, &row, `SELECT `+assetColumns+` FROM project_assets WHERE id = ?`, assetID); err != nil {
		return model.ProjectAsset{}, notFound(err, "asset", assetID)
	}
	return row.toModel()
}

func (r queries) ListAssets(ctx context.Context, branchID string) ([]model.ProjectAsset, error) {
	rows := []assetRow{}
	err := sqlx.SelectContext(ctx, r.q, &rows,
		`SELECT `+assetColumns+` FROM project_assets WHERE branch_id = ? ORDER BY created_at, id`, branchID)
	if err != nil {
		return nil, fmt.Errorf("select assets: %w", err)
	}
	out := make([]model.ProjectAsset, 0, len(rows))
	for _, row := range rows {
		a, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r queries) GetInstance(ctx context.Context, instanceID string) (model.SceneAssetInstance, error) {
	var row instanceRow
	err := sqlx.GetContext(ctx, r.q, &row, `SELECT `+instanceColumns+` FROM scene_asset_instances WHERE id = ?`, instanceID)
	if err != nil {
		return model.SceneAssetInstance{}, notFound(err, "instance", instanceID)
	}
	return row.toModel()
}

func (r queries) ListInstances(ctx context.Context, sceneID string) ([]model.SceneAssetInstance, error) {
	rows := []instanceRow{}
	err := sqlx.SelectContext(ctx, r.q, &rows,
		`SELECT `+instanceColumns+` FROM scene_asset_instances WHERE scene_id = ? ORDER BY created_at, id`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("select instances: %w", err)
	}
	out := make([]model.SceneAssetInstance, 0, len(rows))
	for _, row := range rows {
		in, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

// LatestInstanceBefore walks scenes of the branch in descending number and
// returns the first instance of the asset.  The (branch_id, scene_number)
// unique key and the instance asset index keep this to one probe.
func (r queries) LatestInstanceBefore(ctx context.Context, branchID, assetID string, before int) (model.SceneAssetInstance, int, error) {
	var row instanceWithNumber
	err := sqlx.GetContext(ctx, r.q, &row, `
		SELECT i.id, i.scene_id, i.project_asset_id, i.description_override, i.effective_description,
		       i.image_key_url, i.status_tags, i.carry_forward, i.inherited_from_instance_id,
		       i.created_at, i.updated_at, s.scene_number
		  FROM scene_asset_instances i
		  JOIN scenes s ON s.id = i.scene_id
		 WHERE s.branch_id = ? AND i.project_asset_id = ? AND s.scene_number < ?
		 ORDER BY s.scene_number DESC
		 LIMIT 1`, branchID, assetID, before)
	if err != nil {
		return model.SceneAssetInstance{}, 0, notFound(err, "prior instance of asset", assetID)
	}
	in, err := row.instanceRow.toModel()
	if err != nil {
		return model.SceneAssetInstance{}, 0, err
	}
	return in, row.SceneNumber, nil
}

func (r queries) GetTransformation(ctx context.Context, eventID string) (model.TransformationEvent, error) {
	var row eventRow
	err := sqlx.GetContext(ctx, r.q, &row, `SELECT `+eventColumns+` FROM transformation_events WHERE id = ?`, eventID)
	if err != nil {
		return model.TransformationEvent{}, notFound(err, "transformation", eventID)
	}
	return row.toModel()
}

func (r queries) ListTransformations(ctx context.Context, instanceID string) ([]model.TransformationEvent, error) {
	rows := []eventRow{}
	err := sqlx.SelectContext(ctx, r.q, &rows,
		`SELECT `+eventColumns+` FROM transformation_events WHERE scene_asset_instance_id = ? ORDER BY created_at, id`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("select transformations: %w", err)
	}
	out := make([]model.TransformationEvent, 0, len(rows))
	for _, row := range rows {
		ev, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (r queries) GetStageLocks(ctx context.Context, sceneID string) (model.StageLocks, error) {
	var exists int
	if err := sqlx.GetContext(ctx, r.q, &exists, `SELECT COUNT(1) FROM scenes WHERE id = ?`, sceneID); err != nil {
		return model.StageLocks{}, fmt.Errorf("check scene %s: %w", sceneID, err)
	}
	if exists == 0 {
		return model.StageLocks{}, model.NotFound("scene", sceneID)
	}

	rows := []stageLockRow{}
	err := sqlx.SelectContext(ctx, r.q, &rows,
		`SELECT stage_number, status, locked_at FROM scene_stage_locks WHERE scene_id = ?`, sceneID)
	if err != nil {
		return model.StageLocks{}, fmt.Errorf("select stage locks: %w", err)
	}
	locks := model.NewStageLocks()
	for _, row := range rows {
		stage := model.StageNumber(row.StageNumber)
		if !stage.Valid() {
			continue
		}
		e := model.StageLockEntry{Stage: stage, Status: model.StageStatus(row.Status)}
		if row.LockedAt.Valid {
			t, err := parseTime(row.LockedAt.String)
			if err != nil {
				return model.StageLocks{}, err
			}
			e.LockedAt = &t
		}
		locks.Set(e)
	}
	return locks, nil
}

func (r queries) CountActiveArtifacts(ctx context.Context, sceneID string) (model.ArtifactCounts, error) {
	var c model.ArtifactCounts
	err := sqlx.GetContext(ctx, r.q, &c.Frames, `
		SELECT COUNT(1) FROM frames f JOIN shots s ON s.id = f.shot_id
		 WHERE s.scene_id = ? AND f.status <> ?`, sceneID, model.ArtifactInvalidated)
	if err != nil {
		return c, fmt.Errorf("count frames: %w", err)
	}
	err = sqlx.GetContext(ctx, r.q, &c.Videos, `
		SELECT COUNT(1) FROM videos v JOIN shots s ON s.id = v.shot_id
		 WHERE s.scene_id = ? AND v.status <> ?`, sceneID, model.ArtifactInvalidated)
	if err != nil {
		return c, fmt.Errorf("count videos: %w", err)
	}
	return c, nil
}

func (r queries) ListUpstreamStageStates(ctx context.Context, branchID string) ([]model.UpstreamStageState, error) {
	rows := []upstreamRow{}
	err := sqlx.SelectContext(ctx, r.q, &rows, `
		SELECT id, branch_id, stage_number, status, created_at
		  FROM upstream_stage_states
		 WHERE branch_id = ? AND stage_number BETWEEN 1 AND 4
		 ORDER BY created_at, id`, branchID)
	if err != nil {
		return nil, fmt.Errorf("select upstream stage states: %w", err)
	}
	out := make([]model.UpstreamStageState, 0, len(rows))
	for _, row := range rows {
		t, err := parseTime(row.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, model.UpstreamStageState{
			ID: row.ID, BranchID: row.BranchID, StageNumber: row.StageNumber, Status: row.Status, CreatedAt: t,
		})
	}
	return out, nil
}

// Writes.

func (r queries) CreateInstances(ctx context.Context, instances []model.SceneAssetInstance) error {
	if len(instances) == 0 {
		return nil
	}
	// Build one multi-row INSERT; eleven values per instance.
	query := `INSERT INTO scene_asset_instances (` + instanceColumns + `) VALUES `
	args := make([]interface{}, 0, len(instances)*11)
	for i, in := range instances {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
		tags, err := encodeTags(in.StatusTags)
		if err != nil {
			return err
		}
		args = append(args,
			in.ID, in.SceneID, in.ProjectAssetID,
			nullString(in.DescriptionOverride), in.EffectiveDescription, nullString(in.ImageKeyURL),
			tags, in.CarryForward, nullString(in.InheritedFromInstanceID),
			formatTime(in.CreatedAt), formatTime(in.UpdatedAt))
	}
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return conflict(err, "insert instances")
	}
	return nil
}

func (r queries) UpdateInstance(ctx context.Context, in model.SceneAssetInstance) error {
	tags, err := encodeTags(in.StatusTags)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE scene_asset_instances
		   SET description_override = ?, effective_description = ?, image_key_url = ?,
		       status_tags = ?, carry_forward = ?, updated_at = ?
		 WHERE id = ?`,
		nullString(in.DescriptionOverride), in.EffectiveDescription, nullString(in.ImageKeyURL),
		tags, in.CarryForward, formatTime(in.UpdatedAt), in.ID)
	if err != nil {
		return fmt.Errorf("update instance %s: %w", in.ID, err)
	}
	return requireRow(res, "instance", in.ID)
}

func (r queries) CreateTransformation(ctx context.Context, ev model.TransformationEvent) error {
	pre, err := encodeTags(ev.PreStatusTags)
	if err != nil {
		return err
	}
	post, err := encodeTags(ev.PostStatusTags)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `INSERT INTO transformation_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SceneAssetInstanceID, ev.TriggerShotID, nullString(ev.CompletionShotID),
		string(ev.TransformationType), ev.PreDescription, ev.PostDescription,
		nullString(ev.TransformationNarrative), pre, post, ev.Confirmed, string(ev.DetectedBy),
		formatTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert transformation: %w", err)
	}
	return nil
}

func (r queries) ConfirmTransformation(ctx context.Context, eventID string) error {
	res, err := r.q.ExecContext(ctx, `UPDATE transformation_events SET confirmed = ? WHERE id = ?`, true, eventID)
	if err != nil {
		return fmt.Errorf("confirm transformation %s: %w", eventID, err)
	}
	// MySQL reports zero affected rows when the value did not change, so
	// existence is checked separately.
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetTransformation(ctx, eventID); err != nil {
			return err
		}
	}
	return nil
}

func (r queries) DeleteTransformation(ctx context.Context, eventID string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM transformation_events WHERE id = ?`, eventID)
	if err != nil {
		return fmt.Errorf("delete transformation %s: %w", eventID, err)
	}
	return requireRow(res, "transformation", eventID)
}

// SaveStageLock replaces the row of one stage.  Callers hold the scene lock
// so delete-then-insert cannot interleave with another writer.
func (r queries) SaveStageLock(ctx context.Context, sceneID string, e model.StageLockEntry) error {
	if !e.Stage.Valid() {
		return fmt.Errorf("save stage lock: stage %d out of range", e.Stage)
	}
	if _, err := r.q.ExecContext(ctx,
		`DELETE FROM scene_stage_locks WHERE scene_id = ? AND stage_number = ?`, sceneID, int(e.Stage)); err != nil {
		return fmt.Errorf("clear stage %d: %w", e.Stage, err)
	}
	var lockedAt interface{}
	if e.LockedAt != nil {
		lockedAt = formatTime(*e.LockedAt)
	}
	if _, err := r.q.ExecContext(ctx,
		`INSERT INTO scene_stage_locks (scene_id, stage_number, status, locked_at) VALUES (?, ?, ?, ?)`,
		sceneID, int(e.Stage), string(e.Status), lockedAt); err != nil {
		return fmt.Errorf("insert stage %d: %w", e.Stage, err)
	}
	return nil
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func requireRow(res rowsAffected, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return model.NotFound(entity, id)
	}
	return nil
}

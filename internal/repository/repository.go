package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/scene-continuity/internal/database"
	"github.com/iliyamo/scene-continuity/internal/model"
	"github.com/iliyamo/scene-continuity/internal/store"
)

// Repository implements store.Store over a sqlx pool.  Reads outside a
// transaction go straight to the pool.
type Repository struct {
	queries
	db *sqlx.DB
}

var _ store.Store = (*Repository)(nil)

// New wraps db.  The driver name selects how scene locks are taken.
func New(db *sqlx.DB) *Repository {
	return &Repository{queries: queries{q: db}, db: db}
}

// DB exposes the pool for health checks.
func (r *Repository) DB() *sqlx.DB { return r.db }

// WithSceneTx opens a transaction, takes the scene's row lock and runs fn.
// With SQLite only tx may be used inside fn; the pool has one connection.
func (r *Repository) WithSceneTx(ctx context.Context, sceneID string, fn func(tx store.Tx) error) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockScene(ctx, tx, r.db.DriverName(), sceneID); err != nil {
			return err
		}
		return fn(queries{q: tx})
	})
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// lockScene serializes writers of one scene.  MySQL takes a row lock with
// SELECT ... FOR UPDATE.  SQLite has no row locks; a no-op UPDATE takes the
// database write lock for the rest of the transaction instead.
func lockScene(ctx context.Context, tx *sqlx.Tx, driver, sceneID string) error {
	if driver == database.DriverMySQL {
		var id string
		err := tx.GetContext(ctx, &id, `SELECT id FROM scenes WHERE id = ? FOR UPDATE`, sceneID)
		if errors.Is(err, sql.ErrNoRows) {
			return model.NotFound("scene", sceneID)
		}
		if err != nil {
			return fmt.Errorf("lock scene %s: %w", sceneID, err)
		}
		return nil
	}
	res, err := tx.ExecContext(ctx, `UPDATE scenes SET id = id WHERE id = ?`, sceneID)
	if err != nil {
		return fmt.Errorf("lock scene %s: %w", sceneID, err)
	}
	return requireRow(res, "scene", sceneID)
}

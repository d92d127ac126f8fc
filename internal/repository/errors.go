// Package repository is the SQL implementation of store.Store, shared by
// the MySQL and SQLite dialects.  Lookups that find no row translate
// sql.ErrNoRows into a model.NotFoundError so handlers can map it to a 404
// with errors.Is(err, model.ErrNotFound).
package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/scene-continuity/internal/model"
	"github.com/iliyamo/scene-continuity/internal/store"
)

// notFound maps sql.ErrNoRows to a typed not-found error and wraps anything
// else with the operation name.
func notFound(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.NotFound(entity, id)
	}
	return fmt.Errorf("get %s %s: %w", entity, id, err)
}

// conflict rewrites a unique-key violation as store.ErrConflict.  MySQL
// reports error 1062; SQLite only says so in the message.
func conflict(err error, op string) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return fmt.Errorf("%s: %w", op, store.ErrConflict)
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%s: %w", op, store.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

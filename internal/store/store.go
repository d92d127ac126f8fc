// Package store declares the persistence contract the continuity engine and
// the stage lock machine are written against.  The SQL implementation lives
// in internal/repository and an in-memory one in internal/store/memstore.
package store

import (
	"context"
	"errors"

	"github.com/iliyamo/scene-continuity/internal/model"
)

// ErrConflict is returned when a write collides with an existing row, such
// as a second instance of the same asset in one scene.
var ErrConflict = errors.New("conflict")

// Reader is the read side shared by the store and by open transactions.
// Single-row lookups return an error wrapping model.ErrNotFound when the
// row is absent.
type Reader interface {
	GetScene(ctx context.Context, sceneID string) (model.Scene, error)
	SceneByNumber(ctx context.Context, branchID string, number int) (model.Scene, error)

	GetAsset(ctx context.Context, assetID string) (model.ProjectAsset, error)
	ListAssets(ctx context.Context, branchID string) ([]model.ProjectAsset, error)

	GetInstance(ctx context.Context, instanceID string) (model.SceneAssetInstance, error)
	ListInstances(ctx context.Context, sceneID string) ([]model.SceneAssetInstance, error)

	// LatestInstanceBefore returns the instance of assetID in the highest
	// numbered scene of branchID whose number is strictly below before,
	// together with that scene's number.
	LatestInstanceBefore(ctx context.Context, branchID, assetID string, before int) (model.SceneAssetInstance, int, error)

	GetTransformation(ctx context.Context, eventID string) (model.TransformationEvent, error)
	// ListTransformations returns the events of an instance in creation order.
	ListTransformations(ctx context.Context, instanceID string) ([]model.TransformationEvent, error)

	// GetStageLocks returns all six slots; stages without a stored row are
	// reported as draft.
	GetStageLocks(ctx context.Context, sceneID string) (model.StageLocks, error)

	CountActiveArtifacts(ctx context.Context, sceneID string) (model.ArtifactCounts, error)
	ListUpstreamStageStates(ctx context.Context, branchID string) ([]model.UpstreamStageState, error)
}

// Writer holds the mutations.  They are only reachable from inside
// WithSceneTx so every write happens under the owning scene's lock.
type Writer interface {
	CreateInstances(ctx context.Context, instances []model.SceneAssetInstance) error
	UpdateInstance(ctx context.Context, inst model.SceneAssetInstance) error

	CreateTransformation(ctx context.Context, ev model.TransformationEvent) error
	ConfirmTransformation(ctx context.Context, eventID string) error
	DeleteTransformation(ctx context.Context, eventID string) error

	SaveStageLock(ctx context.Context, sceneID string, entry model.StageLockEntry) error
}

// Tx is a unit of work scoped to one scene.
type Tx interface {
	Reader
	Writer
}

// Store is implemented by every backend.
type Store interface {
	Reader

	// WithSceneTx runs fn in a transaction holding the lock of sceneID.
	// Concurrent calls for the same scene are serialized.  If fn returns an
	// error nothing it wrote is kept.  A missing scene yields an error
	// wrapping model.ErrNotFound before fn is called.
	WithSceneTx(ctx context.Context, sceneID string, fn func(tx Tx) error) error
}

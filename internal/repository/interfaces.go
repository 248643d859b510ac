package repository

import "roadwatch/internal/model"

// RunRepository defines the interface for detection run history.
type RunRepository interface {
	// Create operations
	Insert(run *model.Run) (int64, error)

	// Update operations
	Finish(run *model.Run) error

	// Read operations
	GetByID(id int64) (*model.Run, error)
	GetAll(filter *model.RunFilter) ([]model.Run, error)
	GetTotalCount(filter *model.RunFilter) (int, error)

	// Delete operations
	DeleteAll() error
}

// ObjectRepository defines the interface for per-run label counts.
type ObjectRepository interface {
	// Create operations
	InsertBatch(objects []model.RunObject) error

	// Read operations
	GetByRunID(runID int64) ([]model.RunObject, error)
	GetAllObjectNames() ([]string, error)
}

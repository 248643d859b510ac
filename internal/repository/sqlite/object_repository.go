package sqlite

import (
	"fmt"
	"roadwatch/internal/model"
)

// ObjectRepository implements repository.ObjectRepository for SQLite.
type ObjectRepository struct {
	db *DB
}

// NewObjectRepository creates a new SQLite run object repository.
func NewObjectRepository(db *DB) *ObjectRepository {
	return &ObjectRepository{db: db}
}

// InsertBatch adds multiple label counts in a single transaction.
func (r *ObjectRepository) InsertBatch(objects []model.RunObject) error {
	if len(objects) == 0 {
		return nil
	}

	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO run_objects (run_id, object_name, count, best_confidence)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, obj := range objects {
		if _, err := stmt.Exec(obj.RunID, obj.ObjectName, obj.Count, obj.BestConfidence); err != nil {
			return fmt.Errorf("failed to insert run object: %w", err)
		}
	}

	return tx.Commit()
}

// GetByRunID retrieves the label counts of a run ordered by name.
func (r *ObjectRepository) GetByRunID(runID int64) ([]model.RunObject, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, run_id, object_name, count, best_confidence
		FROM run_objects WHERE run_id = ? ORDER BY object_name
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run objects: %w", err)
	}
	defer rows.Close()

	var objects []model.RunObject
	for rows.Next() {
		var obj model.RunObject
		if err := rows.Scan(&obj.ID, &obj.RunID, &obj.ObjectName, &obj.Count, &obj.BestConfidence); err != nil {
			return nil, fmt.Errorf("failed to scan run object: %w", err)
		}
		objects = append(objects, obj)
	}
	return objects, rows.Err()
}

// GetAllObjectNames returns a list of all unique detected object names.
func (r *ObjectRepository) GetAllObjectNames() ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT DISTINCT object_name FROM run_objects ORDER BY object_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query objects: %w", err)
	}
	defer rows.Close()

	var objects []string
	for rows.Next() {
		var obj string
		if err := rows.Scan(&obj); err != nil {
			return nil, fmt.Errorf("failed to scan object: %w", err)
		}
		objects = append(objects, obj)
	}
	return objects, rows.Err()
}

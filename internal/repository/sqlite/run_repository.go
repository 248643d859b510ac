package sqlite

import (
	"database/sql"
	"fmt"
	"roadwatch/internal/model"
)

// RunRepository implements repository.RunRepository for SQLite.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new SQLite run repository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `r.id, r.session_id, r.task, r.source, r.input, r.status, r.error, r.frames, r.started_at, r.finished_at`

// Insert adds a new run record to the database.
func (r *RunRepository) Insert(run *model.Run) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO runs (session_id, task, source, input, status, error, frames, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.SessionID, string(run.Task), string(run.Source), run.Input, string(run.Status), run.Error, run.Frames, run.StartedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	run.ID = id
	return id, nil
}

// Finish stores the final status, error, frame count and end time of a run.
func (r *RunRepository) Finish(run *model.Run) error {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		UPDATE runs SET status = ?, error = ?, frames = ?, finished_at = ? WHERE id = ?
	`, string(run.Status), run.Error, run.Frames, run.FinishedAt, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %d not found", run.ID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var (
		run      model.Run
		task     string
		source   string
		status   string
		finished sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.SessionID, &task, &source, &run.Input, &status, &run.Error, &run.Frames, &run.StartedAt, &finished); err != nil {
		return nil, err
	}
	run.Task = model.Task(task)
	run.Source = model.SourceKind(source)
	run.Status = model.RunStatus(status)
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return &run, nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(id int64) (*model.Run, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	run, err := scanRun(r.db.Conn().QueryRow(`SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// buildWhere appends the filter conditions shared by GetAll and GetTotalCount.
func buildWhere(filter *model.RunFilter) (string, []interface{}) {
	where := " WHERE 1=1"
	args := []interface{}{}
	if filter == nil {
		return where, args
	}

	if filter.Task != "" {
		where += " AND r.task = ?"
		args = append(args, filter.Task)
	}

	if filter.Source != "" {
		where += " AND r.source = ?"
		args = append(args, filter.Source)
	}

	if filter.Object != "" {
		where += " AND o.object_name = ?"
		args = append(args, filter.Object)
	}
	return where, args
}

// GetAll retrieves runs based on filter criteria, newest first.
func (r *RunRepository) GetAll(filter *model.RunFilter) ([]model.Run, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildWhere(filter)
	query := `SELECT DISTINCT ` + runColumns + ` FROM runs r LEFT JOIN run_objects o ON r.id = o.run_id` + where +
		` ORDER BY r.started_at DESC, r.id DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetTotalCount returns the total count of runs matching the filter.
func (r *RunRepository) GetTotalCount(filter *model.RunFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildWhere(filter)
	query := `SELECT COUNT(DISTINCT r.id) FROM runs r LEFT JOIN run_objects o ON r.id = o.run_id` + where

	var count int
	if err := r.db.Conn().QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

// DeleteAll removes all runs and their objects.
func (r *RunRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM run_objects`); err != nil {
		return fmt.Errorf("failed to delete run objects: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM runs`); err != nil {
		return fmt.Errorf("failed to delete runs: %w", err)
	}
	return nil
}

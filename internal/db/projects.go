package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/autovid/autovid/internal/models"
)

func (db *DB) CreateProject(ctx context.Context, project *models.Project) error {
	query := `
		INSERT INTO projects (topic, chapters, video_format, priority)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		project.Topic, project.Chapters, project.VideoFormat, project.Priority,
	).Scan(&project.ID, &project.CreatedAt, &project.UpdatedAt)
}

func (db *DB) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	query := `
		SELECT
			id, topic, chapters, video_format, priority, paused,
			task_id, created_at, updated_at
		FROM projects
		WHERE id = $1
	`

	project := &models.Project{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&project.ID, &project.Topic, &project.Chapters, &project.VideoFormat,
		&project.Priority, &project.Paused, &project.TaskID,
		&project.CreatedAt, &project.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return project, nil
}

// ListProjects returns projects ordered by priority then creation date
// (newest first), with limit and offset for pagination.
func (db *DB) ListProjects(ctx context.Context, limit, offset int) ([]models.Project, error) {
	query := `
		SELECT
			id, topic, chapters, video_format, priority, paused,
			task_id, created_at, updated_at
		FROM projects
		ORDER BY priority DESC, created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(
			&p.ID, &p.Topic, &p.Chapters, &p.VideoFormat,
			&p.Priority, &p.Paused, &p.TaskID,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}

	return projects, rows.Err()
}

func (db *DB) CountProjects(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&count)
	return count, err
}

// SetProjectPaused toggles the pause flag. Stage handlers consult it before
// enqueueing downstream work.
func (db *DB) SetProjectPaused(ctx context.Context, id int64, paused bool) error {
	query := `UPDATE projects SET paused = $1, updated_at = NOW() WHERE id = $2`
	res, err := db.ExecContext(ctx, query, paused, id)
	if err != nil {
		return fmt.Errorf("failed to update pause flag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project not found")
	}
	return nil
}

// IsProjectPaused reads the pause flag. A missing project reads as paused
// so orphaned queue entries never spawn work.
func (db *DB) IsProjectPaused(ctx context.Context, id int64) (bool, error) {
	var paused bool
	err := db.QueryRowContext(ctx, `SELECT paused FROM projects WHERE id = $1`, id).Scan(&paused)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read pause flag: %w", err)
	}
	return paused, nil
}

func (db *DB) SetProjectTaskID(ctx context.Context, id int64, taskID string) error {
	query := `UPDATE projects SET task_id = $1, updated_at = NOW() WHERE id = $2`
	_, err := db.ExecContext(ctx, query, taskID, id)
	return err
}

func (db *DB) DeleteProject(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project not found")
	}
	return nil
}

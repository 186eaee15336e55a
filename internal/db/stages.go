package db

import (
	"context"
	"fmt"

	"github.com/autovid/autovid/internal/models"
)

// EnsureStages creates one row per pipeline stage for a new project, so
// progress reads never have to special-case missing rows.
func (db *DB) EnsureStages(ctx context.Context, projectID int64) error {
	query := `
		INSERT INTO stages (project_id, name)
		VALUES ($1, $2)
		ON CONFLICT (project_id, name) DO NOTHING
	`
	for _, name := range models.AllStages {
		if _, err := db.ExecContext(ctx, query, projectID, name); err != nil {
			return fmt.Errorf("failed to create stage %s: %w", name, err)
		}
	}
	return nil
}

func (db *DB) GetStages(ctx context.Context, projectID int64) ([]models.Stage, error) {
	query := `
		SELECT
			id, project_id, name, started_at, completed, completed_at,
			duration_seconds, error_message, paused
		FROM stages
		WHERE project_id = $1
		ORDER BY id
	`

	rows, err := db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	var stages []models.Stage
	for rows.Next() {
		var s models.Stage
		if err := rows.Scan(
			&s.ID, &s.ProjectID, &s.Name, &s.StartedAt, &s.Completed,
			&s.CompletedAt, &s.DurationSeconds, &s.ErrorMessage, &s.Paused,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		stages = append(stages, s)
	}

	return stages, rows.Err()
}

// StartStage marks a stage as running and clears any previous outcome, so
// retries present a clean record.
func (db *DB) StartStage(ctx context.Context, projectID int64, name models.StageName) error {
	query := `
		UPDATE stages
		SET started_at = NOW(), completed = FALSE, completed_at = NULL,
		    duration_seconds = NULL, error_message = NULL
		WHERE project_id = $1 AND name = $2
	`
	_, err := db.ExecContext(ctx, query, projectID, name)
	return err
}

func (db *DB) CompleteStage(ctx context.Context, projectID int64, name models.StageName) error {
	query := `
		UPDATE stages
		SET completed = TRUE, completed_at = NOW(),
		    duration_seconds = EXTRACT(EPOCH FROM (NOW() - started_at)),
		    error_message = NULL
		WHERE project_id = $1 AND name = $2
	`
	_, err := db.ExecContext(ctx, query, projectID, name)
	return err
}

func (db *DB) FailStage(ctx context.Context, projectID int64, name models.StageName, errMsg string) error {
	query := `
		UPDATE stages
		SET completed = FALSE, completed_at = NOW(),
		    duration_seconds = EXTRACT(EPOCH FROM (NOW() - started_at)),
		    error_message = $3
		WHERE project_id = $1 AND name = $2
	`
	_, err := db.ExecContext(ctx, query, projectID, name, errMsg)
	return err
}

// ResetStages clears progress for a fresh pipeline run.
func (db *DB) ResetStages(ctx context.Context, projectID int64) error {
	query := `
		UPDATE stages
		SET started_at = NULL, completed = FALSE, completed_at = NULL,
		    duration_seconds = NULL, error_message = NULL
		WHERE project_id = $1
	`
	_, err := db.ExecContext(ctx, query, projectID)
	return err
}

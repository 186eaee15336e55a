package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type DB struct {
	*sql.DB
}

func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn}
	if err := db.ensureSchema(); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return db, nil
}

func (db *DB) ensureSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS projects (
			id BIGSERIAL PRIMARY KEY,
			topic TEXT NOT NULL,
			chapters INT NOT NULL DEFAULT 1,
			video_format TEXT NOT NULL DEFAULT 'long',
			priority INT NOT NULL DEFAULT 0,
			paused BOOLEAN NOT NULL DEFAULT FALSE,
			task_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS stages (
			id BIGSERIAL PRIMARY KEY,
			project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			started_at TIMESTAMPTZ,
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			completed_at TIMESTAMPTZ,
			duration_seconds DOUBLE PRECISION,
			error_message TEXT,
			paused BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE (project_id, name)
		);

		CREATE INDEX IF NOT EXISTS idx_stages_project ON stages(project_id);
	`
	_, err := db.Exec(schema)
	return err
}

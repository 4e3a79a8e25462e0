package storage

import (
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

var postgresQueries = queries{
	schema: []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id BIGSERIAL PRIMARY KEY,
			taken_at TIMESTAMPTZ NOT NULL,
			projects INTEGER NOT NULL,
			attention INTEGER NOT NULL,
			orphaned_alerts INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS snapshot_projects (
			snapshot_id BIGINT NOT NULL REFERENCES snapshots(id),
			work_id TEXT NOT NULL,
			work_name TEXT NOT NULL,
			department TEXT NOT NULL,
			total_alerts INTEGER NOT NULL,
			critical_alerts INTEGER NOT NULL,
			requires_attention BOOLEAN NOT NULL,
			is_overdue BOOLEAN NOT NULL,
			progress DOUBLE PRECISION NOT NULL,
			available_budget DOUBLE PRECISION NOT NULL,
			project_json JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshot_projects_snapshot ON snapshot_projects(snapshot_id)`,
		`CREATE TABLE IF NOT EXISTS changes (
			id BIGSERIAL PRIMARY KEY,
			work_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			field TEXT NOT NULL,
			old_value TEXT NOT NULL,
			new_value TEXT NOT NULL,
			changed_at TIMESTAMPTZ NOT NULL,
			changed_by TEXT NOT NULL,
			magnitude DOUBLE PRECISION NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL,
			UNIQUE (work_id, kind, changed_at, new_value)
		)`,
	},
	insertSnapshot: `INSERT INTO snapshots (taken_at, projects, attention, orphaned_alerts) VALUES ($1, $2, $3, $4) RETURNING id`,
	insertProject: `INSERT INTO snapshot_projects (snapshot_id, work_id, work_name, department, total_alerts, critical_alerts,
		requires_attention, is_overdue, progress, available_budget, project_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	insertChange: `INSERT INTO changes (work_id, kind, field, old_value, new_value, changed_at, changed_by, magnitude, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (work_id, kind, changed_at, new_value) DO NOTHING`,
	latestAttention: `SELECT work_id FROM snapshot_projects
		WHERE snapshot_id = (SELECT MAX(id) FROM snapshots) AND requires_attention = $1`,
	returningID: true,
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/obrawatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db, q: postgresQueries}}, nil
}

package storage

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

var sqliteQueries = queries{
	schema: []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			taken_at TEXT NOT NULL,
			projects INTEGER NOT NULL,
			attention INTEGER NOT NULL,
			orphaned_alerts INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS snapshot_projects (
			snapshot_id INTEGER NOT NULL REFERENCES snapshots(id),
			work_id TEXT NOT NULL,
			work_name TEXT NOT NULL,
			department TEXT NOT NULL,
			total_alerts INTEGER NOT NULL,
			critical_alerts INTEGER NOT NULL,
			requires_attention INTEGER NOT NULL,
			is_overdue INTEGER NOT NULL,
			progress REAL NOT NULL,
			available_budget REAL NOT NULL,
			project_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshot_projects_snapshot ON snapshot_projects(snapshot_id)`,
		`CREATE TABLE IF NOT EXISTS changes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			work_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			field TEXT NOT NULL,
			old_value TEXT NOT NULL,
			new_value TEXT NOT NULL,
			changed_at TEXT NOT NULL,
			changed_by TEXT NOT NULL,
			magnitude REAL NOT NULL,
			recorded_at TEXT NOT NULL,
			UNIQUE (work_id, kind, changed_at, new_value)
		)`,
	},
	insertSnapshot: `INSERT INTO snapshots (taken_at, projects, attention, orphaned_alerts) VALUES (?, ?, ?, ?)`,
	insertProject: `INSERT INTO snapshot_projects (snapshot_id, work_id, work_name, department, total_alerts, critical_alerts,
		requires_attention, is_overdue, progress, available_budget, project_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	insertChange: `INSERT OR IGNORE INTO changes (work_id, kind, field, old_value, new_value, changed_at, changed_by, magnitude, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	latestAttention: `SELECT work_id FROM snapshot_projects
		WHERE snapshot_id = (SELECT MAX(id) FROM snapshots) AND requires_attention = ?`,
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:obrawatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db, q: sqliteQueries}}, nil
}

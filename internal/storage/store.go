package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"obrawatch/internal/config"
	"obrawatch/internal/model"
)

type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveSnapshot(ctx context.Context, snap Snapshot) (int64, error)
	SaveChanges(ctx context.Context, changes []model.ChangeRecord) (int, error)
	LatestAttention(ctx context.Context) (map[string]struct{}, error)
}

// Snapshot is one refresh cycle worth of unified projects.
type Snapshot struct {
	TakenAt        time.Time
	Projects       []model.UnifiedProject
	OrphanedAlerts int
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

// queries holds the dialect-specific statements of a store.
type queries struct {
	schema          []string
	insertSnapshot  string
	insertProject   string
	insertChange    string
	latestAttention string
	// returningID is set when insertSnapshot yields the id through RETURNING.
	returningID bool
}

type baseStore struct {
	db *sql.DB
	q  queries
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) Init(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	for _, stmt := range b.q.schema {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (b *baseStore) SaveSnapshot(ctx context.Context, snap Snapshot) (int64, error) {
	if b.db == nil {
		return 0, nil
	}
	attention := 0
	for _, p := range snap.Projects {
		if p.RequiresAttention {
			attention++
		}
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	args := []any{snap.TakenAt.UTC(), len(snap.Projects), attention, snap.OrphanedAlerts}
	var id int64
	if b.q.returningID {
		err = tx.QueryRowContext(ctx, b.q.insertSnapshot, args...).Scan(&id)
	} else {
		var res sql.Result
		res, err = tx.ExecContext(ctx, b.q.insertSnapshot, args...)
		if err == nil {
			id, err = res.LastInsertId()
		}
	}
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, b.q.insertProject)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	for _, p := range snap.Projects {
		if _, err := stmt.ExecContext(ctx,
			id,
			p.WorkID,
			p.WorkName,
			p.Department,
			p.TotalAlerts,
			p.CriticalAlertCount,
			p.RequiresAttention,
			p.IsOverdue,
			p.TotalProgress,
			p.AvailableBudget,
			encodeJSON(p),
		); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert project %s: %w", p.WorkID, err)
		}
	}
	return id, tx.Commit()
}

// SaveChanges stores significant changes once; records already present are
// skipped. It returns how many rows were new.
func (b *baseStore) SaveChanges(ctx context.Context, changes []model.ChangeRecord) (int, error) {
	if b.db == nil || len(changes) == 0 {
		return 0, nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, b.q.insertChange)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	inserted := 0
	recordedAt := nowUTC()
	for _, c := range changes {
		res, err := stmt.ExecContext(ctx,
			c.WorkID,
			string(c.Kind),
			c.FieldChanged,
			c.OldValue,
			c.NewValue,
			c.ChangedAt.UTC(),
			c.ChangedBy,
			c.Magnitude,
			recordedAt,
		)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert change %s: %w", c.WorkID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, tx.Commit()
}

// LatestAttention lists the work ids flagged for attention in the most recent snapshot.
func (b *baseStore) LatestAttention(ctx context.Context) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	if b.db == nil {
		return out, nil
	}
	rows, err := b.db.QueryContext(ctx, b.q.latestAttention, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

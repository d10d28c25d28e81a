// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scrapedeck/scrapedeck/internal/scrape"
)

// pool is the subset of pgxpool.Pool the stores need; pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// TaskStoreConfig controls the Postgres connection pool for task rows.
type TaskStoreConfig struct {
	DSN      string
	MaxConns int32
}

// NewPool opens a pgx pool from the config. Task and result stores share one
// pool in production wiring.
func NewPool(ctx context.Context, cfg TaskStoreConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return p, nil
}

// TaskStore persists task lifecycle state in Postgres.
type TaskStore struct {
	pool pool
}

// NewTaskStore creates a Postgres-backed TaskStore using the provided config.
func NewTaskStore(ctx context.Context, cfg TaskStoreConfig) (*TaskStore, error) {
	p, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &TaskStore{pool: p}, nil
}

// NewTaskStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewTaskStoreWithPool(p pool) (*TaskStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &TaskStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *TaskStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateTask inserts a new task row.
func (s *TaskStore) CreateTask(ctx context.Context, task scrape.Task) error {
	if task.ID == "" {
		return fmt.Errorf("task id is required")
	}
	query := `
INSERT INTO scrape_tasks (
	id, source, status, progress, total_items, submitted_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := s.pool.Exec(ctx, query,
		task.ID,
		task.Source,
		task.Status,
		task.Progress,
		task.TotalItems,
		task.Submitted,
		task.Submitted,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask retrieves a single task by its ID.
func (s *TaskStore) GetTask(ctx context.Context, taskID string) (scrape.Task, error) {
	query := `
SELECT id, source, status, progress, total_items, error_text, challenge_type,
	rate_limit_reset_at, export_location, submitted_at, completed_at, updated_at
FROM scrape_tasks
WHERE id = $1`
	var (
		task      scrape.Task
		errText   *string
		challenge *string
		location  *string
	)
	err := s.pool.QueryRow(ctx, query, taskID).Scan(
		&task.ID,
		&task.Source,
		&task.Status,
		&task.Progress,
		&task.TotalItems,
		&errText,
		&challenge,
		&task.RateLimitResetAt,
		&location,
		&task.Submitted,
		&task.Completed,
		&task.Updated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scrape.Task{}, scrape.ErrNotFound
		}
		return scrape.Task{}, fmt.Errorf("get task: %w", err)
	}
	if errText != nil {
		task.ErrorText = *errText
	}
	if challenge != nil {
		task.ChallengeType = *challenge
	}
	if location != nil {
		task.ExportLocation = *location
	}
	return task, nil
}

// UpdateTaskStatus applies a partial update merged into the existing row,
// always bumping updated_at. Fields left nil in the update are untouched.
func (s *TaskStore) UpdateTaskStatus(ctx context.Context, taskID string, update scrape.TaskUpdate) error {
	sets := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}
	next := 2

	add := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, next))
		args = append(args, value)
		next++
	}
	if update.Status != nil {
		add("status", *update.Status)
	}
	if update.Progress != nil {
		add("progress", *update.Progress)
	}
	if update.TotalItems != nil {
		add("total_items", *update.TotalItems)
	}
	if update.ErrorText != nil {
		add("error_text", *update.ErrorText)
	}
	if update.ChallengeType != nil {
		add("challenge_type", *update.ChallengeType)
	}
	if update.RateLimitResetAt != nil {
		add("rate_limit_reset_at", *update.RateLimitResetAt)
	}
	if update.ExportLocation != nil {
		add("export_location", *update.ExportLocation)
	}
	if update.CompletedAt != nil {
		add("completed_at", *update.CompletedAt)
	}

	query := fmt.Sprintf("UPDATE scrape_tasks SET %s WHERE id = $%d",
		strings.Join(sets, ", "), next)
	args = append(args, taskID)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scrape.ErrNotFound
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/scrapedeck/scrapedeck/internal/scrape"
)

// ResultStore appends scraped result rows into Postgres.
type ResultStore struct {
	pool pool
}

// NewResultStoreWithPool constructs a store over an existing pool. The task
// and result stores share one pool in production wiring.
func NewResultStoreWithPool(p pool) (*ResultStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ResultStore{pool: p}, nil
}

// AppendResult inserts one result row. Rows are append-only; redelivered
// jobs short-circuit before reaching this call, so duplicates only occur if
// the terminal-state guard is bypassed.
func (s *ResultStore) AppendResult(ctx context.Context, item scrape.ResultItem) error {
	if item.ID == "" {
		return fmt.Errorf("result id is required")
	}
	query := `
INSERT INTO scrape_results (
	id, task_id, url, caption, likes_count, comments_count
) VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := s.pool.Exec(ctx, query,
		item.ID,
		item.TaskID,
		item.URL,
		item.Caption,
		item.LikesCount,
		item.CommentsCount,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// ListResults returns all result rows for a task in insertion order.
func (s *ResultStore) ListResults(ctx context.Context, taskID string) ([]scrape.ResultItem, error) {
	query := `
SELECT id, task_id, url, caption, likes_count, comments_count
FROM scrape_results
WHERE task_id = $1
ORDER BY id`
	rows, err := s.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var items []scrape.ResultItem
	for rows.Next() {
		var item scrape.ResultItem
		if err := rows.Scan(
			&item.ID,
			&item.TaskID,
			&item.URL,
			&item.Caption,
			&item.LikesCount,
			&item.CommentsCount,
		); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows: %w", err)
	}
	return items, nil
}

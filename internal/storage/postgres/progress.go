package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/AyonJD/medeasy-scraper/internal/scraper"
)

// UpsertProgress writes one crawl_progress row keyed by task name. The whole
// row is replaced: the checkpoint blob in resume_data must always match the
// counters next to it.
func (s *Store) UpsertProgress(ctx context.Context, p *scraper.Progress) error {
	query := `
		INSERT INTO crawl_progress (
			task_name, current_page, total_pages, processed_items, total_items,
			status, error_message, resume_data, started_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (task_name) DO UPDATE SET
			current_page = EXCLUDED.current_page,
			total_pages = EXCLUDED.total_pages,
			processed_items = EXCLUDED.processed_items,
			total_items = EXCLUDED.total_items,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			resume_data = EXCLUDED.resume_data,
			started_at = EXCLUDED.started_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id;
	`
	err := s.pool.QueryRow(ctx, query,
		p.TaskName, p.CurrentPage, p.TotalPages, p.ProcessedItems, p.TotalItems,
		p.Status, p.ErrorMessage, p.ResumeData, p.StartedAt, s.now(),
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("upsert progress %s: %w", p.TaskName, err)
	}
	return nil
}

// GetProgress retrieves the crawl_progress row for a task.
func (s *Store) GetProgress(ctx context.Context, taskName string) (scraper.Progress, error) {
	query := `
		SELECT id, task_name, current_page, total_pages, processed_items,
			total_items, status, error_message, resume_data, started_at, updated_at
		FROM crawl_progress
		WHERE task_name = $1;
	`
	var p scraper.Progress
	err := s.pool.QueryRow(ctx, query, taskName).Scan(
		&p.ID, &p.TaskName, &p.CurrentPage, &p.TotalPages, &p.ProcessedItems,
		&p.TotalItems, &p.Status, &p.ErrorMessage, &p.ResumeData,
		&p.StartedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scraper.Progress{}, scraper.ErrNotFound
		}
		return scraper.Progress{}, fmt.Errorf("get progress %s: %w", taskName, err)
	}
	return p, nil
}

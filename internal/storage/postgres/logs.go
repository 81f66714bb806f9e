package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AyonJD/medeasy-scraper/internal/scraper"
)

// AppendLog writes one scrape_logs row.
func (s *Store) AppendLog(ctx context.Context, entry scraper.LogEntry) error {
	query := `
		INSERT INTO scrape_logs (task_name, level, message, url, created_at)
		VALUES ($1, $2, $3, $4, $5);
	`
	_, err := s.pool.Exec(ctx, query,
		entry.TaskName, entry.Level, entry.Message, entry.URL, s.now())
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// ListLogs returns a filtered page of log entries, newest first.
func (s *Store) ListLogs(ctx context.Context, f scraper.LogFilter) ([]scraper.LogEntry, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Level != "" {
		conds = append(conds, "level = "+arg(strings.ToUpper(f.Level)))
	}
	if f.TaskName != "" {
		conds = append(conds, "task_name = "+arg(f.TaskName))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(
		"SELECT id, task_name, level, message, url, created_at FROM scrape_logs%s ORDER BY created_at DESC, id DESC LIMIT %s OFFSET %s",
		where, arg(limit), arg(f.Offset),
	)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var entries []scraper.LogEntry
	for rows.Next() {
		var e scraper.LogEntry
		if err := rows.Scan(&e.ID, &e.TaskName, &e.Level, &e.Message, &e.URL, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	return entries, nil
}

// PruneLogs deletes log entries older than the cutoff and reports how many
// rows went away.
func (s *Store) PruneLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pool.Exec(ctx, `DELETE FROM scrape_logs WHERE created_at < $1;`, before)
	if err != nil {
		return 0, fmt.Errorf("prune logs: %w", err)
	}
	return res.RowsAffected(), nil
}

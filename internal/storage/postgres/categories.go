package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/AyonJD/medeasy-scraper/internal/scraper"
)

// UpsertCategory inserts or refreshes a category keyed by slug, filling in
// the generated ID on the passed struct.
func (s *Store) UpsertCategory(ctx context.Context, c *scraper.Category) error {
	query := `
		INSERT INTO categories (name, slug, description, parent_id, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			parent_id = EXCLUDED.parent_id,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.created_at
		RETURNING id;
	`
	err := s.pool.QueryRow(ctx, query,
		c.Name, c.Slug, c.Description, c.ParentID, c.IsActive, s.now(),
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("upsert category %s: %w", c.Slug, err)
	}
	return nil
}

// GetCategoryBySlug retrieves a single category by its slug.
func (s *Store) GetCategoryBySlug(ctx context.Context, slug string) (scraper.Category, error) {
	query := `
		SELECT id, name, slug, description, parent_id, is_active, created_at, updated_at
		FROM categories
		WHERE slug = $1;
	`
	var c scraper.Category
	err := s.pool.QueryRow(ctx, query, slug).Scan(
		&c.ID, &c.Name, &c.Slug, &c.Description, &c.ParentID,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scraper.Category{}, scraper.ErrNotFound
		}
		return scraper.Category{}, fmt.Errorf("get category %s: %w", slug, err)
	}
	return c, nil
}

// ListCategories returns all categories ordered by ID.
func (s *Store) ListCategories(ctx context.Context) ([]scraper.Category, error) {
	query := `
		SELECT id, name, slug, description, parent_id, is_active, created_at, updated_at
		FROM categories
		ORDER BY id;
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []scraper.Category
	for rows.Next() {
		var c scraper.Category
		err := rows.Scan(
			&c.ID, &c.Name, &c.Slug, &c.Description, &c.ParentID,
			&c.IsActive, &c.CreatedAt, &c.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

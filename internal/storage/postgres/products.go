package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/AyonJD/medeasy-scraper/internal/scraper"
)

const productColumns = `id, name, generic_name, brand_name, manufacturer, strength,
	dosage_form, pack_size, price, currency, description, indications,
	contraindications, side_effects, dosage_instructions, storage_conditions,
	product_code, category_id, subcategory_id, image_url, raw_data, is_active,
	created_at, updated_at, last_scraped`

// UpsertProduct writes the product keyed by product_code, and its image when
// present, inside one transaction. A nil image leaves any existing image row
// untouched.
func (s *Store) UpsertProduct(ctx context.Context, p *scraper.Product, img *scraper.ImageData) error {
	now := s.now()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert product: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO products (
			name, generic_name, brand_name, manufacturer, strength, dosage_form,
			pack_size, price, currency, description, indications, contraindications,
			side_effects, dosage_instructions, storage_conditions, product_code,
			category_id, subcategory_id, image_url, raw_data, is_active,
			created_at, last_scraped
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$22)
		ON CONFLICT (product_code) DO UPDATE SET
			name = EXCLUDED.name,
			generic_name = EXCLUDED.generic_name,
			brand_name = EXCLUDED.brand_name,
			manufacturer = EXCLUDED.manufacturer,
			strength = EXCLUDED.strength,
			dosage_form = EXCLUDED.dosage_form,
			pack_size = EXCLUDED.pack_size,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			description = EXCLUDED.description,
			indications = EXCLUDED.indications,
			contraindications = EXCLUDED.contraindications,
			side_effects = EXCLUDED.side_effects,
			dosage_instructions = EXCLUDED.dosage_instructions,
			storage_conditions = EXCLUDED.storage_conditions,
			category_id = EXCLUDED.category_id,
			subcategory_id = EXCLUDED.subcategory_id,
			image_url = EXCLUDED.image_url,
			raw_data = EXCLUDED.raw_data,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.last_scraped,
			last_scraped = EXCLUDED.last_scraped
		RETURNING id;
	`
	err = tx.QueryRow(ctx, query,
		p.Name, p.GenericName, p.BrandName, p.Manufacturer, p.Strength,
		p.DosageForm, p.PackSize, p.Price, p.Currency, p.Description,
		p.Indications, p.Contraindications, p.SideEffects, p.DosageInstructions,
		p.StorageConditions, p.ProductCode, p.CategoryID, p.SubcategoryID,
		p.ImageURL, p.RawData, p.IsActive, now,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ProductCode, err)
	}

	if img != nil {
		// The WHERE clause skips the bytea rewrite when the stored image is
		// byte-identical to the freshly processed one.
		imgQuery := `
			INSERT INTO product_images (product_id, image_data, original_url, file_size, width, height, content_hash, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (product_id) DO UPDATE SET
				image_data = EXCLUDED.image_data,
				original_url = EXCLUDED.original_url,
				file_size = EXCLUDED.file_size,
				width = EXCLUDED.width,
				height = EXCLUDED.height,
				content_hash = EXCLUDED.content_hash,
				updated_at = EXCLUDED.created_at
			WHERE product_images.content_hash IS DISTINCT FROM EXCLUDED.content_hash;
		`
		_, err = tx.Exec(ctx, imgQuery,
			p.ID, img.Data, img.OriginalURL, img.FileSize, img.Width, img.Height, img.ContentHash, now,
		)
		if err != nil {
			return fmt.Errorf("upsert product image %s: %w", p.ProductCode, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert product: %w", err)
	}
	return nil
}

// ListProducts returns a filtered page of products and the total match count.
func (s *Store) ListProducts(ctx context.Context, f scraper.ProductFilter) ([]scraper.Product, int, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, fmt.Sprintf("(name ILIKE %s OR generic_name ILIKE %s OR brand_name ILIKE %s)", p, p, p))
	}
	if f.CategoryID != nil {
		conds = append(conds, "category_id = "+arg(*f.CategoryID))
	}
	if f.Manufacturer != "" {
		conds = append(conds, "manufacturer ILIKE "+arg("%"+f.Manufacturer+"%"))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM products"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(
		"SELECT %s FROM products%s ORDER BY id LIMIT %s OFFSET %s",
		productColumns, where, arg(limit), arg(f.Offset),
	)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []scraper.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, total, nil
}

// GetProduct retrieves a single product by ID.
func (s *Store) GetProduct(ctx context.Context, id int) (scraper.Product, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM products WHERE id = $1", productColumns), id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scraper.Product{}, scraper.ErrNotFound
		}
		return scraper.Product{}, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

func scanProduct(row pgx.Row) (scraper.Product, error) {
	var p scraper.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.GenericName, &p.BrandName, &p.Manufacturer,
		&p.Strength, &p.DosageForm, &p.PackSize, &p.Price, &p.Currency,
		&p.Description, &p.Indications, &p.Contraindications, &p.SideEffects,
		&p.DosageInstructions, &p.StorageConditions, &p.ProductCode,
		&p.CategoryID, &p.SubcategoryID, &p.ImageURL, &p.RawData, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt, &p.LastScraped,
	)
	return p, err
}

// GetProductImage retrieves the stored image binary for a product.
func (s *Store) GetProductImage(ctx context.Context, productID int) (scraper.ProductImage, error) {
	query := `
		SELECT id, product_id, image_data, original_url, file_size, width, height, content_hash, created_at, updated_at
		FROM product_images
		WHERE product_id = $1;
	`
	var img scraper.ProductImage
	err := s.pool.QueryRow(ctx, query, productID).Scan(
		&img.ID, &img.ProductID, &img.ImageData, &img.OriginalURL,
		&img.FileSize, &img.Width, &img.Height, &img.ContentHash, &img.CreatedAt, &img.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scraper.ProductImage{}, scraper.ErrNotFound
		}
		return scraper.ProductImage{}, fmt.Errorf("get product image %d: %w", productID, err)
	}
	return img, nil
}

// GetProductImageInfo retrieves image metadata without the binary payload.
func (s *Store) GetProductImageInfo(ctx context.Context, productID int) (scraper.ProductImage, error) {
	query := `
		SELECT id, product_id, original_url, file_size, width, height, content_hash, created_at, updated_at
		FROM product_images
		WHERE product_id = $1;
	`
	var img scraper.ProductImage
	err := s.pool.QueryRow(ctx, query, productID).Scan(
		&img.ID, &img.ProductID, &img.OriginalURL,
		&img.FileSize, &img.Width, &img.Height, &img.ContentHash, &img.CreatedAt, &img.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scraper.ProductImage{}, scraper.ErrNotFound
		}
		return scraper.ProductImage{}, fmt.Errorf("get product image info %d: %w", productID, err)
	}
	return img, nil
}

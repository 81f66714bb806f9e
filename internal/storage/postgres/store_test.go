package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AyonJD/medeasy-scraper/internal/scraper"
)

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

var testNow = time.Unix(1700000000, 0).UTC()

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, fixedClock{at: testNow})
	require.NoError(t, err)
	return store, mock
}

func TestUpsertProductWithImage(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	price := 32.50
	catID := 3
	p := scraper.Product{
		Name:        "Napa 500mg Tablet",
		GenericName: "Paracetamol",
		ProductCode: "MED-1234",
		Price:       &price,
		Currency:    "BDT",
		CategoryID:  &catID,
		IsActive:    true,
		RawData:     json.RawMessage(`{"url":"https://medeasy.health/product/napa-500"}`),
	}
	img := scraper.ImageData{
		Data:        []byte("jpeg-bytes"),
		OriginalURL: "https://api.medeasy.health/media/napa-500.webp",
		FileSize:    10,
		Width:       600,
		Height:      600,
		ContentHash: "deadbeef",
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO products").
		WithArgs(
			p.Name, p.GenericName, p.BrandName, p.Manufacturer, p.Strength,
			p.DosageForm, p.PackSize, p.Price, p.Currency, p.Description,
			p.Indications, p.Contraindications, p.SideEffects,
			p.DosageInstructions, p.StorageConditions, p.ProductCode,
			p.CategoryID, p.SubcategoryID, p.ImageURL, p.RawData, p.IsActive,
			testNow,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec("INSERT INTO product_images").
		WithArgs(7, img.Data, img.OriginalURL, img.FileSize, img.Width, img.Height, img.ContentHash, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.UpsertProduct(context.Background(), &p, &img)
	require.NoError(t, err)
	assert.Equal(t, 7, p.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertProductImageUnchangedHashSkipsRewrite(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	p := scraper.Product{Name: "Napa 500mg Tablet", ProductCode: "MED-1234", IsActive: true}
	img := scraper.ImageData{Data: []byte("jpeg-bytes"), FileSize: 10, Width: 600, Height: 600, ContentHash: "deadbeef"}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO products").
		WithArgs(
			p.Name, p.GenericName, p.BrandName, p.Manufacturer, p.Strength,
			p.DosageForm, p.PackSize, p.Price, p.Currency, p.Description,
			p.Indications, p.Contraindications, p.SideEffects,
			p.DosageInstructions, p.StorageConditions, p.ProductCode,
			p.CategoryID, p.SubcategoryID, p.ImageURL, p.RawData, p.IsActive,
			testNow,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(7))
	// Conflicting row already carries this hash, so the update clause
	// matches nothing and the bytea column is not rewritten.
	mock.ExpectExec("INSERT INTO product_images").
		WithArgs(7, img.Data, img.OriginalURL, img.FileSize, img.Width, img.Height, img.ContentHash, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	require.NoError(t, store.UpsertProduct(context.Background(), &p, &img))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertProductWithoutImageSkipsImageWrite(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	p := scraper.Product{Name: "Seclo 20mg Capsule", ProductCode: "ME-001234", IsActive: true}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO products").
		WithArgs(
			p.Name, p.GenericName, p.BrandName, p.Manufacturer, p.Strength,
			p.DosageForm, p.PackSize, p.Price, p.Currency, p.Description,
			p.Indications, p.Contraindications, p.SideEffects,
			p.DosageInstructions, p.StorageConditions, p.ProductCode,
			p.CategoryID, p.SubcategoryID, p.ImageURL, p.RawData, p.IsActive,
			testNow,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(12))
	mock.ExpectCommit()

	err := store.UpsertProduct(context.Background(), &p, nil)
	require.NoError(t, err)
	assert.Equal(t, 12, p.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertProductSameCodeOverwrites(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	first := scraper.Product{Name: "Napa 500mg Tablet", ProductCode: "ME-004217", IsActive: true}
	second := scraper.Product{Name: "Seclo 20mg Capsule", ProductCode: "ME-004217", IsActive: true}

	for _, p := range []*scraper.Product{&first, &second} {
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO products").
			WithArgs(
				p.Name, p.GenericName, p.BrandName, p.Manufacturer, p.Strength,
				p.DosageForm, p.PackSize, p.Price, p.Currency, p.Description,
				p.Indications, p.Contraindications, p.SideEffects,
				p.DosageInstructions, p.StorageConditions, p.ProductCode,
				p.CategoryID, p.SubcategoryID, p.ImageURL, p.RawData, p.IsActive,
				testNow,
			).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectCommit()
		require.NoError(t, store.UpsertProduct(context.Background(), p, nil))
	}

	// Colliding fallback codes land on one row: the second write mutates it.
	assert.Equal(t, first.ID, second.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCategory(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	c := scraper.Category{Name: "Dental Care", Slug: "dental-care", IsActive: true}

	mock.ExpectQuery("INSERT INTO categories").
		WithArgs(c.Name, c.Slug, c.Description, c.ParentID, c.IsActive, testNow).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(4))

	require.NoError(t, store.UpsertCategory(context.Background(), &c))
	assert.Equal(t, 4, c.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCategoryBySlugNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM categories").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "slug", "description", "parent_id", "is_active", "created_at", "updated_at"}))

	_, err := store.GetCategoryBySlug(context.Background(), "missing")
	assert.ErrorIs(t, err, scraper.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertAndGetProgress(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	resume, err := json.Marshal(scraper.ResumeState{
		TaskKind: scraper.TaskKindCatalog,
		WorkList: []scraper.WorkItem{{URL: "https://medeasy.health/product/napa-500", CategoryID: 1}},
		Cursor:   0,
	})
	require.NoError(t, err)

	p := scraper.Progress{
		TaskName:   "medeasy_scraper",
		TotalItems: 1,
		Status:     scraper.StatusRunning,
		ResumeData: resume,
		StartedAt:  testNow,
	}

	mock.ExpectQuery("INSERT INTO crawl_progress").
		WithArgs(
			p.TaskName, p.CurrentPage, p.TotalPages, p.ProcessedItems,
			p.TotalItems, p.Status, p.ErrorMessage, p.ResumeData,
			p.StartedAt, testNow,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(1))

	require.NoError(t, store.UpsertProgress(context.Background(), &p))

	mock.ExpectQuery("SELECT (.+) FROM crawl_progress").
		WithArgs("medeasy_scraper").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "task_name", "current_page", "total_pages", "processed_items",
			"total_items", "status", "error_message", "resume_data", "started_at", "updated_at",
		}).AddRow(1, "medeasy_scraper", 0, 0, 0, 1, scraper.StatusRunning, "", resume, testNow, testNow))

	got, err := store.GetProgress(context.Background(), "medeasy_scraper")
	require.NoError(t, err)
	assert.Equal(t, scraper.StatusRunning, got.Status)
	assert.JSONEq(t, string(resume), string(got.ResumeData))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProgressNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM crawl_progress").
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := store.GetProgress(context.Background(), "nope")
	assert.ErrorIs(t, err, scraper.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendAndPruneLogs(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	entry := scraper.LogEntry{
		TaskName: "medeasy_scraper",
		Level:    scraper.LogWarning,
		Message:  "no product name found",
		URL:      "https://medeasy.health/product/mystery",
	}
	mock.ExpectExec("INSERT INTO scrape_logs").
		WithArgs(entry.TaskName, entry.Level, entry.Message, entry.URL, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.AppendLog(context.Background(), entry))

	cutoff := testNow.Add(-30 * 24 * time.Hour)
	mock.ExpectExec("DELETE FROM scrape_logs").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 42))

	deleted, err := store.PruneLogs(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(42), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListProductsFilters(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	catID := 2
	f := scraper.ProductFilter{Search: "napa", CategoryID: &catID, Limit: 10}

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("%napa%", catID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	cols := []string{
		"id", "name", "generic_name", "brand_name", "manufacturer", "strength",
		"dosage_form", "pack_size", "price", "currency", "description",
		"indications", "contraindications", "side_effects", "dosage_instructions",
		"storage_conditions", "product_code", "category_id", "subcategory_id",
		"image_url", "raw_data", "is_active", "created_at", "updated_at", "last_scraped",
	}
	price := 32.50
	mock.ExpectQuery("SELECT (.+) FROM products").
		WithArgs("%napa%", catID, 10, 0).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			7, "Napa 500mg Tablet", "Paracetamol", "", "", "500mg", "Tablet", "",
			&price, "BDT", "", "", "", "", "", "", "MED-1234", &catID, (*int)(nil),
			"", json.RawMessage(`{}`), true, testNow, (*time.Time)(nil), testNow,
		))

	products, total, err := store.ListProducts(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, products, 1)
	assert.Equal(t, "Napa 500mg Tablet", products[0].Name)
	require.NotNil(t, products[0].Price)
	assert.InDelta(t, 32.50, *products[0].Price, 0.001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductImageNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM product_images").
		WithArgs(99).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := store.GetProductImage(context.Background(), 99)
	assert.ErrorIs(t, err, scraper.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AyonJD/medeasy-scraper/internal/scheduler"
	"github.com/AyonJD/medeasy-scraper/internal/scraper"
)

// fakeController scripts the engine surface the handlers call.
type fakeController struct {
	startErr    error
	running     bool
	stopped     bool
	progress    scraper.Progress
	progressErr error
	lastResume  bool
}

func (f *fakeController) Start(resume bool) error {
	f.lastResume = resume
	return f.startErr
}
func (f *fakeController) Stop()         { f.stopped = true }
func (f *fakeController) Running() bool { return f.running }
func (f *fakeController) Progress(context.Context) (scraper.Progress, error) {
	return f.progress, f.progressErr
}

// fakeStore serves canned rows for the read endpoints.
type fakeStore struct {
	products []scraper.Product
	total    int
	image    scraper.ProductImage
	imageErr error
	logs     []scraper.LogEntry

	lastFilter scraper.ProductFilter
}

func (f *fakeStore) UpsertProduct(context.Context, *scraper.Product, *scraper.ImageData) error {
	return nil
}
func (f *fakeStore) UpsertCategory(context.Context, *scraper.Category) error { return nil }
func (f *fakeStore) GetCategoryBySlug(context.Context, string) (scraper.Category, error) {
	return scraper.Category{}, scraper.ErrNotFound
}
func (f *fakeStore) ListCategories(context.Context) ([]scraper.Category, error) { return nil, nil }
func (f *fakeStore) UpsertProgress(context.Context, *scraper.Progress) error    { return nil }
func (f *fakeStore) GetProgress(context.Context, string) (scraper.Progress, error) {
	return scraper.Progress{}, scraper.ErrNotFound
}
func (f *fakeStore) AppendLog(context.Context, scraper.LogEntry) error { return nil }
func (f *fakeStore) ListLogs(_ context.Context, filter scraper.LogFilter) ([]scraper.LogEntry, error) {
	return f.logs, nil
}
func (f *fakeStore) PruneLogs(context.Context, time.Time) (int64, error) { return 0, nil }
func (f *fakeStore) ListProducts(_ context.Context, filter scraper.ProductFilter) ([]scraper.Product, int, error) {
	f.lastFilter = filter
	return f.products, f.total, nil
}
func (f *fakeStore) GetProduct(_ context.Context, id int) (scraper.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return scraper.Product{}, scraper.ErrNotFound
}
func (f *fakeStore) GetProductImage(context.Context, int) (scraper.ProductImage, error) {
	return f.image, f.imageErr
}
func (f *fakeStore) GetProductImageInfo(context.Context, int) (scraper.ProductImage, error) {
	return f.image, f.imageErr
}

func doRequest(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStartCrawl(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	srv := NewServer(ctrl, &fakeStore{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/crawl/start", `{"resume":true}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, ctrl.lastResume)
	assert.Contains(t, rec.Body.String(), "started")
}

func TestStartCrawlResumeQueryParam(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	srv := NewServer(ctrl, &fakeStore{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/crawl/start?resume=true", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, ctrl.lastResume)
}

func TestStartCrawlEmptyBody(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	srv := NewServer(ctrl, &fakeStore{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/crawl/start", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.False(t, ctrl.lastResume)
}

func TestStartCrawlConflict(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{startErr: scheduler.ErrAlreadyRunning}
	srv := NewServer(ctrl, &fakeStore{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/crawl/start", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStopCrawl(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{running: true}
	srv := NewServer(ctrl, &fakeStore{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/crawl/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ctrl.stopped)
	assert.Contains(t, rec.Body.String(), "stopping")
}

func TestStopCrawlIdle(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{running: false}
	srv := NewServer(ctrl, &fakeStore{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/crawl/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, ctrl.stopped)
	assert.Contains(t, rec.Body.String(), "idle")
}

func TestGetProgress(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{progress: scraper.Progress{
		TaskName:       "medeasy_scraper",
		Status:         scraper.StatusRunning,
		ProcessedItems: 12,
		TotalItems:     40,
	}}
	srv := NewServer(ctrl, &fakeStore{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/crawl/progress", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got scraper.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, scraper.StatusRunning, got.Status)
	assert.Equal(t, 12, got.ProcessedItems)
}

func TestGetProgressNoRunYet(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{progressErr: scraper.ErrNotFound}
	srv := NewServer(ctrl, &fakeStore{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/crawl/progress", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(scraper.StatusIdle))
}

func TestListProducts(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		products: []scraper.Product{{ID: 1, Name: "Napa 500mg Tablet", ProductCode: "MED-1234"}},
		total:    1,
	}
	srv := NewServer(&fakeController{}, store, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/products?search=napa&category_id=3&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "napa", store.lastFilter.Search)
	require.NotNil(t, store.lastFilter.CategoryID)
	assert.Equal(t, 3, *store.lastFilter.CategoryID)
	assert.Equal(t, 10, store.lastFilter.Limit)

	var payload struct {
		Items []scraper.Product `json:"items"`
		Total int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Items, 1)
	assert.Equal(t, "Napa 500mg Tablet", payload.Items[0].Name)
	assert.Equal(t, 1, payload.Total)
}

func TestListProductsInvalidCategory(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeController{}, &fakeStore{}, nil)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/products?category_id=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProduct(t *testing.T) {
	t.Parallel()

	store := &fakeStore{products: []scraper.Product{{ID: 7, Name: "Seclo 20mg Capsule"}}}
	srv := NewServer(&fakeController{}, store, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/products/7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Seclo 20mg Capsule")

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/products/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/products/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProductImage(t *testing.T) {
	t.Parallel()

	store := &fakeStore{image: scraper.ProductImage{
		ID: 1, ProductID: 7, ImageData: []byte("jpeg-bytes"), FileSize: 10, Width: 600, Height: 600,
	}}
	srv := NewServer(&fakeController{}, store, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/products/7/image", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte("jpeg-bytes"), rec.Body.Bytes())
}

func TestGetProductImageInfoOmitsBinary(t *testing.T) {
	t.Parallel()

	store := &fakeStore{image: scraper.ProductImage{
		ID: 1, ProductID: 7, ImageData: []byte("jpeg-bytes"), FileSize: 10, Width: 600, Height: 600,
	}}
	srv := NewServer(&fakeController{}, store, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/products/7/image/info", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "jpeg-bytes")
	assert.Contains(t, rec.Body.String(), `"width":600`)
}

func TestGetProductImageNotFound(t *testing.T) {
	t.Parallel()

	store := &fakeStore{imageErr: scraper.ErrNotFound}
	srv := NewServer(&fakeController{}, store, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/products/7/image", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListLogs(t *testing.T) {
	t.Parallel()

	store := &fakeStore{logs: []scraper.LogEntry{
		{ID: 1, TaskName: "medeasy_scraper", Level: scraper.LogWarning, Message: "no product name found"},
	}}
	srv := NewServer(&fakeController{}, store, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/logs?level=WARNING", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "no product name found")
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeController{}, &fakeStore{}, nil)
	rec := doRequest(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

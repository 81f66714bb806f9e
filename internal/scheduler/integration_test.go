package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AyonJD/medeasy-scraper/internal/discover"
	"github.com/AyonJD/medeasy-scraper/internal/extract"
	collyfetcher "github.com/AyonJD/medeasy-scraper/internal/fetcher/colly"
	"github.com/AyonJD/medeasy-scraper/internal/scraper"
)

// catalogSite serves one category spread over two listing pages with three
// product pages behind it.
func catalogSite(t *testing.T) *httptest.Server {
	t.Helper()

	listing1 := `<html><body>
		<a href="/product/napa-500">Napa</a>
		<a href="/product/ace-500">Ace</a>
	</body></html>`
	listing2 := `<html><body>
		<a href="/product/seclo-20">Seclo</a>
	</body></html>`
	product := func(name, code string) string {
		return fmt.Sprintf(`<html><body>
			<h1>%s</h1>
			<span class="product-code">%s</span>
			<div class="price">৳ 32.50</div>
		</body></html>`, name, code)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/category/pain-relief", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, listing2)
			return
		}
		fmt.Fprint(w, listing1)
	})
	mux.HandleFunc("/product/napa-500", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, product("Napa 500mg Tablet", "MED-0001"))
	})
	mux.HandleFunc("/product/ace-500", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, product("Ace 500mg Tablet", "MED-0002"))
	})
	mux.HandleFunc("/product/seclo-20", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, product("Seclo 20mg Capsule", "MED-0003"))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// TestRunAgainstLiveSite wires the real fetcher, discoverer, and extractor
// over an in-process site and runs a full crawl through them.
func TestRunAgainstLiveSite(t *testing.T) {
	srv := catalogSite(t)

	fetcher := collyfetcher.New(collyfetcher.Config{MaxRetries: 1}, nil)
	disc := discover.New(discover.Config{
		BaseURL:            srv.URL,
		Mode:               discover.ModeStatic,
		ProductPathMarkers: []string{"/product/"},
		Categories: []discover.Category{
			{ID: 3, Slug: "pain-relief", Path: "/category/pain-relief", Pages: 2},
		},
	}, fetcher, nil)

	store := newMemStore()
	engine, err := New(
		Config{TaskName: "medeasy_scraper"},
		Deps{
			Fetcher:    fetcher,
			Discoverer: disc,
			Extractor:  extract.New(extract.Config{}, nil),
			Store:      store,
			Clock:      &tickClock{at: time.Unix(1700000000, 0).UTC()},
		},
	)
	require.NoError(t, err)

	require.NoError(t, engine.Run(context.Background(), false))

	require.Len(t, store.products, 3)
	codes := map[string]string{}
	for _, p := range store.products {
		codes[p.ProductCode] = p.Name
		require.NotNil(t, p.CategoryID)
		assert.Equal(t, 3, *p.CategoryID)
		require.NotNil(t, p.Price)
		assert.InDelta(t, 32.50, *p.Price, 0.001)
	}
	assert.Len(t, codes, 3)
	assert.Equal(t, "Napa 500mg Tablet", codes["MED-0001"])
	assert.Equal(t, "Ace 500mg Tablet", codes["MED-0002"])
	assert.Equal(t, "Seclo 20mg Capsule", codes["MED-0003"])

	progress, err := store.GetProgress(context.Background(), "medeasy_scraper")
	require.NoError(t, err)
	assert.Equal(t, scraper.StatusCompleted, progress.Status)
	assert.Equal(t, 3, progress.ProcessedItems)
	assert.Equal(t, 3, progress.TotalItems)
}

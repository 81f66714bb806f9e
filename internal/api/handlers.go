package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/AyonJD/medeasy-scraper/internal/scheduler"
	"github.com/AyonJD/medeasy-scraper/internal/scraper"
)

type startCrawlRequest struct {
	Resume bool `json:"resume"`
}

func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	var req startCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	// ?resume=true works for clients that cannot send a body.
	if v := r.URL.Query().Get("resume"); v != "" {
		req.Resume, _ = strconv.ParseBool(v)
	}
	if err := s.controller.Start(req.Resume); err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			s.writeError(w, http.StatusConflict, "crawl already running")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "started",
		"resume": req.Resume,
	})
}

func (s *Server) stopCrawl(w http.ResponseWriter, _ *http.Request) {
	if !s.controller.Running() {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "idle"})
		return
	}
	s.controller.Stop()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.controller.Progress(r.Context())
	if err != nil {
		if errors.Is(err, scraper.ErrNotFound) {
			s.writeJSON(w, http.StatusOK, scraper.Progress{Status: scraper.StatusIdle})
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to fetch progress")
		return
	}
	s.writeJSON(w, http.StatusOK, progress)
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := scraper.ProductFilter{
		Search:       q.Get("search"),
		Manufacturer: q.Get("manufacturer"),
		Limit:        intParam(q.Get("limit"), 50, 200),
		Offset:       intParam(q.Get("offset"), 0, 1<<30),
	}
	if raw := q.Get("category_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid category_id")
			return
		}
		filter.CategoryID = &id
	}

	products, total, err := s.store.ListProducts(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	if products == nil {
		products = []scraper.Product{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"items":  products,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := s.productID(w, r)
	if !ok {
		return
	}
	product, err := s.store.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, scraper.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "product not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to fetch product")
		return
	}
	s.writeJSON(w, http.StatusOK, product)
}

func (s *Server) getProductImage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.productID(w, r)
	if !ok {
		return
	}
	img, err := s.store.GetProductImage(r.Context(), id)
	if err != nil {
		if errors.Is(err, scraper.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "image not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to fetch image")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(img.ImageData)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img.ImageData); err != nil {
		s.logger.Error("write image failed", zap.Error(err))
	}
}

func (s *Server) getProductImageInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := s.productID(w, r)
	if !ok {
		return
	}
	img, err := s.store.GetProductImageInfo(r.Context(), id)
	if err != nil {
		if errors.Is(err, scraper.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "image not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to fetch image info")
		return
	}
	s.writeJSON(w, http.StatusOK, img)
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := scraper.LogFilter{
		Level:    q.Get("level"),
		TaskName: q.Get("task"),
		Limit:    intParam(q.Get("limit"), 100, 1000),
		Offset:   intParam(q.Get("offset"), 0, 1<<30),
	}
	logs, err := s.store.ListLogs(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list logs")
		return
	}
	if logs == nil {
		logs = []scraper.LogEntry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": logs})
}

func (s *Server) productID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "product_id"))
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	return id, true
}

// intParam parses a non-negative integer query parameter with a fallback and
// an upper bound.
func intParam(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

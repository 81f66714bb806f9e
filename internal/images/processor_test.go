package images

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func newTestProcessor(cfg ProcessorConfig) *Processor {
	if cfg.RetryWait == 0 {
		cfg.RetryWait = time.Millisecond
	}
	return NewProcessor(cfg, zap.NewNop())
}

func TestProcessReencodesAsJPEG(t *testing.T) {
	payload := encodePNG(t, solidImage(200, 100, color.RGBA{R: 200, G: 10, B: 10, A: 255}))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	defer srv.Close()

	got, err := newTestProcessor(ProcessorConfig{}).Process(context.Background(), srv.URL+"/napa.png")
	require.NoError(t, err)

	assert.Equal(t, 200, got.Width)
	assert.Equal(t, 100, got.Height)
	assert.Equal(t, len(got.Data), got.FileSize)
	assert.Len(t, got.ContentHash, 64)
	assert.Equal(t, srv.URL+"/napa.png", got.OriginalURL)

	decoded, err := jpeg.Decode(bytes.NewReader(got.Data))
	require.NoError(t, err)
	assert.Equal(t, 200, decoded.Bounds().Dx())
}

func TestProcessDownscalesLargeImages(t *testing.T) {
	payload := encodePNG(t, solidImage(400, 200, color.White))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	got, err := newTestProcessor(ProcessorConfig{MaxDimension: 100}).Process(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Width)
	assert.Equal(t, 50, got.Height)
}

func TestProcessFlattensTransparencyOntoWhite(t *testing.T) {
	payload := encodePNG(t, solidImage(10, 10, color.RGBA{}))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	got, err := newTestProcessor(ProcessorConfig{}).Process(context.Background(), srv.URL)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(got.Data))
	require.NoError(t, err)
	r, g, b, _ := decoded.At(5, 5).RGBA()
	assert.Greater(t, r, uint32(0xf000))
	assert.Greater(t, g, uint32(0xf000))
	assert.Greater(t, b, uint32(0xf000))
}

func TestProcessRetriesOnServerError(t *testing.T) {
	payload := encodePNG(t, solidImage(5, 5, color.Black))
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	_, err := newTestProcessor(ProcessorConfig{MaxRetries: 3}).Process(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestProcessGivesUpAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestProcessor(ProcessorConfig{MaxRetries: 2}).Process(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestProcessRejectsNonImagePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>not an image</html>"))
	}))
	defer srv.Close()

	_, err := newTestProcessor(ProcessorConfig{MaxRetries: 1}).Process(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode image")
}

func TestIsWebP(t *testing.T) {
	assert.True(t, isWebP([]byte("RIFF\x00\x00\x00\x00WEBPVP8 ")))
	assert.False(t, isWebP([]byte("\x89PNG\r\n\x1a\n")))
	assert.False(t, isWebP([]byte("RIFF")))
}

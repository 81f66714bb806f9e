package images

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"

	"github.com/AyonJD/medeasy-scraper/internal/scraper"
)

// ProcessorConfig controls download and normalization behavior.
type ProcessorConfig struct {
	// MaxDimension is the longest allowed side after processing. Larger
	// images are scaled down preserving aspect ratio.
	MaxDimension int
	// JPEGQuality for the re-encoded output.
	JPEGQuality int
	// MaxRetries is the number of download attempts per URL.
	MaxRetries int
	// RetryWait between download attempts.
	RetryWait time.Duration
	// Timeout for a single download.
	Timeout time.Duration
	// MaxBytes caps the downloaded payload.
	MaxBytes int64
	// UserAgent sent with every download request.
	UserAgent string
}

func (c *ProcessorConfig) applyDefaults() {
	if c.MaxDimension <= 0 {
		c.MaxDimension = 1600
	}
	if c.JPEGQuality <= 0 {
		c.JPEGQuality = 90
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryWait <= 0 {
		c.RetryWait = 2 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 20 << 20
	}
}

// Processor implements scraper.ImageProcessor: it downloads an image,
// decodes whatever the site serves (JPEG, PNG, GIF, WebP), flattens any
// transparency onto white, bounds the dimensions, and re-encodes as JPEG.
type Processor struct {
	cfg    ProcessorConfig
	client *http.Client
	logger *zap.Logger
}

// NewProcessor builds a Processor with its own HTTP client.
func NewProcessor(cfg ProcessorConfig, logger *zap.Logger) *Processor {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Process downloads and normalizes the image at url.
func (p *Processor) Process(ctx context.Context, url string) (scraper.ImageData, error) {
	raw, err := p.download(ctx, url)
	if err != nil {
		return scraper.ImageData{}, err
	}

	src, format, err := decode(raw)
	if err != nil {
		return scraper.ImageData{}, fmt.Errorf("decode image %s: %w", url, err)
	}

	normalized := p.normalize(src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, normalized, &jpeg.Options{Quality: p.cfg.JPEGQuality}); err != nil {
		return scraper.ImageData{}, fmt.Errorf("encode image %s: %w", url, err)
	}
	data := buf.Bytes()
	sum := sha256.Sum256(data)

	bounds := normalized.Bounds()
	p.logger.Debug("processed image",
		zap.String("url", url),
		zap.String("source_format", format),
		zap.Int("width", bounds.Dx()),
		zap.Int("height", bounds.Dy()),
		zap.Int("bytes", len(data)),
	)

	return scraper.ImageData{
		Data:        data,
		OriginalURL: url,
		FileSize:    len(data),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		ContentHash: hex.EncodeToString(sum[:]),
	}, nil
}

func (p *Processor) download(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxRetries; attempt++ {
		raw, err := p.downloadOnce(ctx, url)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		p.logger.Warn("image download failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < p.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.cfg.RetryWait):
			}
		}
	}
	return nil, fmt.Errorf("download image %s: %w", url, lastErr)
}

func (p *Processor) downloadOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}
	req.Header.Set("Accept", "image/webp,image/png,image/jpeg,image/*;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > p.cfg.MaxBytes {
		return nil, fmt.Errorf("payload exceeds %d bytes", p.cfg.MaxBytes)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	return raw, nil
}

// decode sniffs the container and decodes it. WebP is handled explicitly
// since the site serves most assets through a WebP-converting CDN.
func decode(raw []byte) (image.Image, string, error) {
	if isWebP(raw) {
		img, err := webp.Decode(bytes.NewReader(raw))
		return img, "webp", err
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	return img, format, err
}

func isWebP(raw []byte) bool {
	return len(raw) >= 12 && bytes.Equal(raw[0:4], []byte("RIFF")) && bytes.Equal(raw[8:12], []byte("WEBP"))
}

// normalize flattens transparency onto a white background and bounds the
// longest side to MaxDimension using Catmull-Rom resampling.
func (p *Processor) normalize(src image.Image) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	outW, outH := w, h
	if max := p.cfg.MaxDimension; w > max || h > max {
		if w >= h {
			outW = max
			outH = h * max / w
		} else {
			outH = max
			outW = w * max / h
		}
		if outW < 1 {
			outW = 1
		}
		if outH < 1 {
			outH = 1
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, outW, outH))
	draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)
	if outW == w && outH == h {
		draw.Draw(out, out.Bounds(), src, bounds.Min, draw.Over)
	} else {
		xdraw.CatmullRom.Scale(out, out.Bounds(), src, bounds, xdraw.Over, nil)
	}
	return out
}

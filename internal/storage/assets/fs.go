// Package assets stores binary payloads (processed images, archived HTML)
// outside the relational database and returns path strings for its rows.
package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AyonJD/medeasy-scraper/internal/scraper"
)

// assetName builds a timestamp-plus-content-hash filename. Distinct payloads
// never collide; the same payload written twice in one second lands on the
// same name, which is an idempotent overwrite.
func assetName(now time.Time, data []byte, ext string) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s-%s.%s", now.Format("20060102T150405"), hex.EncodeToString(sum[:])[:12], ext)
}

// FSStore writes assets under a local root directory, partitioned by kind
// and month so a long-running deployment never piles everything into one
// directory.
type FSStore struct {
	root  string
	clock scraper.Clock
}

// NewFSStore creates the root directory if needed.
func NewFSStore(root string, clock scraper.Clock) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("assets.root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create asset root: %w", err)
	}
	return &FSStore{root: root, clock: clock}, nil
}

// Save writes data to a fresh file and returns its path relative to the
// root. Filenames carry the payload's content hash alongside the timestamp.
func (s *FSStore) Save(ctx context.Context, kind, ext string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := s.clock.Now()
	dir := filepath.Join(kind, now.Format("2006"), now.Format("01"))
	if err := os.MkdirAll(filepath.Join(s.root, dir), 0o755); err != nil {
		return "", fmt.Errorf("create asset dir: %w", err)
	}
	rel := filepath.Join(dir, assetName(now, data, ext))
	if err := os.WriteFile(filepath.Join(s.root, rel), data, 0o644); err != nil {
		return "", fmt.Errorf("write asset: %w", err)
	}
	return rel, nil
}

package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func TestFSStoreSave(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	clock := fixedClock{at: time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)}
	store, err := NewFSStore(root, clock)
	require.NoError(t, err)

	rel, err := store.Save(context.Background(), "images", "jpg", []byte("jpeg-bytes"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rel, filepath.Join("images", "2026", "08")+string(filepath.Separator)))
	assert.True(t, strings.HasSuffix(rel, ".jpg"))

	data, err := os.ReadFile(filepath.Join(root, rel))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)
}

func TestFSStoreSaveUniqueNames(t *testing.T) {
	t.Parallel()

	store, err := NewFSStore(t.TempDir(), fixedClock{at: time.Unix(1700000000, 0).UTC()})
	require.NoError(t, err)

	first, err := store.Save(context.Background(), "html", "html", []byte("<html>a</html>"))
	require.NoError(t, err)
	second, err := store.Save(context.Background(), "html", "html", []byte("<html>b</html>"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestFSStoreNameCarriesContentHash(t *testing.T) {
	t.Parallel()

	store, err := NewFSStore(t.TempDir(), fixedClock{at: time.Unix(1700000000, 0).UTC()})
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("jpeg-bytes"))
	rel, err := store.Save(context.Background(), "images", "jpg", []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.Contains(t, rel, hex.EncodeToString(sum[:])[:12])

	// Identical payload at the same instant is an idempotent overwrite.
	again, err := store.Save(context.Background(), "images", "jpg", []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, rel, again)
}

func TestNewFSStoreRequiresRoot(t *testing.T) {
	t.Parallel()

	_, err := NewFSStore("", fixedClock{})
	require.Error(t, err)
}

package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Specoptor/trendyol/internal/storage/local"
)

func TestNewPreparesBaseDir(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "out", "runs")
	_, err := local.New(local.Config{BaseDir: missing})
	require.NoError(t, err)
	assert.DirExists(t, missing)

	entries, err := os.ReadDir(missing)
	require.NoError(t, err)
	assert.Empty(t, entries, "write probe must be cleaned up")
}

func TestNewRejectsBadBaseDir(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o600))

	for name, dir := range map[string]string{
		"empty":     " ",
		"not a dir": file,
	} {
		_, err := local.New(local.Config{BaseDir: dir})
		assert.Error(t, err, name)
	}
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	store, err := local.New(local.Config{BaseDir: base})
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{name: "flat", path: "products.json"},
		{name: "nested", path: "2026/10/products.csv"},
		{name: "empty", path: "", wantErr: "path is required"},
		{name: "traversal", path: "../escape.json", wantErr: "path traversal"},
		{name: "base itself", path: ".", wantErr: "path traversal"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			uri, err := store.PutObject(context.Background(), tc.path, "application/json", strings.NewReader(tc.name))
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			want := filepath.Join(base, tc.path)
			assert.Equal(t, "file://"+want, uri)
			// #nosec G304 -- test reads from the controlled temp directory.
			got, err := os.ReadFile(want)
			require.NoError(t, err)
			assert.Equal(t, tc.name, string(got))
		})
	}
}

func TestPutObjectReplacesWithoutLeftovers(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	store, err := local.New(local.Config{BaseDir: base})
	require.NoError(t, err)

	for _, body := range []string{"first run", "second run"} {
		_, err = store.PutObject(context.Background(), "products.json", "application/json", strings.NewReader(body))
		require.NoError(t, err)
	}

	// #nosec G304 -- test reads from the controlled temp directory.
	got, err := os.ReadFile(filepath.Join(base, "products.json"))
	require.NoError(t, err)
	assert.Equal(t, "second run", string(got))

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "products.json", entries[0].Name())
}

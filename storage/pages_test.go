package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWritePageRaw(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "raw")
	raw := map[string]any{
		"numFound":  float64(2),
		"documents": []any{map[string]any{"id": "1"}},
		"cursor":    "c1",
	}

	path, err := WritePageRaw(raw, dir, 3, "vorgang")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "vorgang_page_00003.json"), path)

	// Die Datei enthält den unveränderten Payload
	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	var restored map[string]any
	require.NoError(t, json.Unmarshal(buf, &restored))
	assert.Equal(t, raw, restored)

	// Formatiert, nicht als Einzeiler
	assert.Contains(t, string(buf), "\n")
}

func TestWritePageRawIndexFormat(t *testing.T) {
	dir := t.TempDir()

	path, err := WritePageRaw(map[string]any{}, dir, 0, "drucksache_antwort")
	require.NoError(t, err)
	assert.Equal(t, "drucksache_antwort_page_00000.json", filepath.Base(path))

	path, err = WritePageRaw(map[string]any{}, dir, 12345, "vorgang")
	require.NoError(t, err)
	assert.Equal(t, "vorgang_page_12345.json", filepath.Base(path))
}

func TestArchiverWithoutS3(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "raw")
	archiver := NewArchiver(dir, nil, zap.NewNop())

	path, err := archiver.ArchivePage(context.Background(), map[string]any{"numFound": float64(0)}, 0, "vorgang")
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

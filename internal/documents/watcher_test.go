package documents

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextResult(t *testing.T, ch <-chan FileResult) FileResult {
	t.Helper()
	select {
	case res, ok := <-ch:
		require.True(t, ok, "results channel closed")
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("no import reported")
		return FileResult{}
	}
}

func TestRegistry_WatchInitialScan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cdv.pdf")
	require.NoError(t, os.WriteFile(path, minimalPDF(1, "initial"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRegistry(nil)
	results, _, err := r.Watch(ctx, WatchConfig{Roots: []string{dir}, InitialScan: true, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	res := nextResult(t, results)
	assert.Equal(t, path, res.Path)
	assert.Empty(t, res.Err)
	_, ok := r.Resolve(res.DocumentID)
	assert.True(t, ok)
}

func TestRegistry_WatchNewFiles(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	r := NewRegistry(nil)
	results, _, err := r.Watch(ctx, WatchConfig{Roots: []string{dir}, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	// Written under a temporary name then renamed so the watcher only sees
	// a complete file.
	tmp := filepath.Join(dir, "fiche.part")
	require.NoError(t, os.WriteFile(tmp, minimalPDF(2, "fiche"), 0o600))
	final := filepath.Join(dir, "fiche.pdf")
	require.NoError(t, os.Rename(tmp, final))

	res := nextResult(t, results)
	assert.Equal(t, final, res.Path)
	doc, ok := r.Resolve(res.DocumentID)
	require.True(t, ok)
	assert.Equal(t, 2, doc.Pages)

	bad := filepath.Join(dir, "broken.part")
	require.NoError(t, os.WriteFile(bad, []byte("not a pdf"), 0o600))
	require.NoError(t, os.Rename(bad, filepath.Join(dir, "broken.pdf")))
	res = nextResult(t, results)
	assert.NotEmpty(t, res.Err)

	cancel()
	select {
	case _, ok := <-results:
		for ok {
			_, ok = <-results
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestRegistry_WatchRequiresRoots(t *testing.T) {
	_, _, err := NewRegistry(nil).Watch(context.Background(), WatchConfig{})
	assert.Error(t, err)
}

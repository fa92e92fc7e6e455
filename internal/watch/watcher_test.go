package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"datalogbridge/internal/engine"
	"datalogbridge/internal/importer"
	"datalogbridge/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeHandler struct {
	mu    sync.Mutex
	paths []string
}

func (h *fakeHandler) Import(_ context.Context, paths ...string) ([]importer.Report, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paths = append(h.paths, paths...)
	reports := make([]importer.Report, len(paths))
	for i, p := range paths {
		reports[i] = importer.Report{Path: p}
	}
	return reports, nil
}

func (h *fakeHandler) seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.paths...)
}

const factDoc = `{"facts": [{"@type": "Fact", "head": {"predicate": "online", "terms": [{"value": "hall"}]}}]}`

func TestWatcherImportsSettledFiles(t *testing.T) {
	dir := t.TempDir()
	h := &fakeHandler{}
	w, err := New(dir, h, 50*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	path := filepath.Join(dir, "devices.json")
	require.NoError(t, os.WriteFile(path, []byte(factDoc), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	require.Eventually(t, func() bool { return len(h.seen()) > 0 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{path}, h.seen())

	stats := w.Stats()
	assert.Equal(t, 1, stats.Imports)
	assert.Equal(t, path, stats.LastEventPath)
}

func TestWatcherFeedsEngine(t *testing.T) {
	dir := t.TempDir()
	exec := session.NewExecutor(engine.NewMangle(engine.DefaultConfig()), nil)
	w, err := New(dir, importer.New(exec, 2), 30*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "devices.json"), []byte(factDoc), 0644))

	require.Eventually(t, func() bool {
		res, err := exec.Process(ctx, "online(X)?")
		return err == nil && res.Answers.Len() == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStopWithoutStart(t *testing.T) {
	w, err := New(t.TempDir(), &fakeHandler{}, 0)
	require.NoError(t, err)
	w.Stop()
}

func TestStartTwiceIsNoop(t *testing.T) {
	w, err := New(t.TempDir(), &fakeHandler{}, 0)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	require.NoError(t, w.Start(ctx))
	w.Stop()
}

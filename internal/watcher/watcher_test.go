package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/velto/internal/errors"
	"github.com/conneroisu/velto/internal/logging"
)

func newWatcher(t *testing.T) *FileWatcher {
	t.Helper()
	w, err := NewFileWatcher(logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

// collector gathers delivered events for assertions.
type collector struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (c *collector) handle(event ChangeEvent) error {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	return nil
}

func (c *collector) paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Path
	}
	return out
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventTypeChmod, "chmod"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestEventTypeOf(t *testing.T) {
	assert.Equal(t, EventTypeCreated, eventTypeOf(fsnotify.Create))
	assert.Equal(t, EventTypeModified, eventTypeOf(fsnotify.Write))
	assert.Equal(t, EventTypeDeleted, eventTypeOf(fsnotify.Remove))
	assert.Equal(t, EventTypeRenamed, eventTypeOf(fsnotify.Rename))
	assert.Equal(t, EventTypeChmod, eventTypeOf(fsnotify.Chmod))
	assert.Equal(t, EventTypeCreated, eventTypeOf(fsnotify.Create|fsnotify.Write))
}

func TestNewFileWatcher(t *testing.T) {
	w := newWatcher(t)
	assert.NotNil(t, w.watcher)
	assert.Empty(t, w.filters)
	assert.Empty(t, w.handlers)

	w.AddFilter(NoGitFilter)
	w.AddHandler(func(ChangeEvent) error { return nil })
	assert.Len(t, w.filters, 1)
	assert.Len(t, w.handlers, 1)
}

func TestAddRecursive(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "c"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "file.txt"), []byte("x"), 0o644))

	w := newWatcher(t)
	require.NoError(t, w.AddRecursive(root))

	assert.ElementsMatch(t, []string{
		root,
		filepath.Join(root, "a"),
		filepath.Join(root, "a", "b"),
		filepath.Join(root, "c"),
	}, w.WatchedPaths())
}

func TestAddRecursiveErrors(t *testing.T) {
	w := newWatcher(t)

	err := w.AddRecursive("")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidPath))

	err = w.AddRecursive(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeWatchPath))

	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	err = w.AddRecursive(file)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeWatchPath))
}

func TestEventsAreDeliveredIndividually(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "nested")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	w := newWatcher(t)
	require.NoError(t, w.AddRecursive(root))

	var got collector
	w.AddHandler(got.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(root, "one.txt"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "two.txt"), []byte("2"), 0o644))

	require.Eventually(t, func() bool {
		paths := got.paths()
		return contains(paths, filepath.Join(root, "one.txt")) &&
			contains(paths, filepath.Join(nested, "two.txt"))
	}, 2*time.Second, 10*time.Millisecond)

	// Each write produces at least one event per file; nothing is merged.
	assert.GreaterOrEqual(t, got.count(), 2)
}

func TestFiltersDropEvents(t *testing.T) {
	root := t.TempDir()

	w := newWatcher(t)
	require.NoError(t, w.AddRecursive(root))
	w.AddFilter(NoEditorTempFilter)

	var got collector
	w.AddHandler(got.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(root, "page.html.swp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "page.html"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		return contains(got.paths(), filepath.Join(root, "page.html"))
	}, 2*time.Second, 10*time.Millisecond)
	assert.NotContains(t, got.paths(), filepath.Join(root, "page.html.swp"))
}

func TestHandlerErrorDoesNotStopDelivery(t *testing.T) {
	root := t.TempDir()

	w := newWatcher(t)
	require.NoError(t, w.AddRecursive(root))

	var got collector
	w.AddHandler(func(ChangeEvent) error { return assert.AnError })
	w.AddHandler(got.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))

	require.Eventually(t, func() bool { return got.count() > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStopEndsLoop(t *testing.T) {
	w := newWatcher(t)
	require.NoError(t, w.AddRecursive(t.TempDir()))
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not exit after Stop")
	}
}

func TestContextCancelEndsLoop(t *testing.T) {
	w := newWatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	require.NoError(t, w.Start(ctx))
	cancel()

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not exit after cancel")
	}
}

func TestNoGitFilter(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"src/main.go", true},
		{".git/config", false},
		{"src/.git/test.go", false},
		{"main.go", true},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, NoGitFilter(tc.path))
		})
	}
}

func TestNoEditorTempFilter(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"static/style.css", true},
		{"templates/index.html", true},
		{"templates/.index.html.swp", false},
		{"templates/index.html~", false},
		{"templates/.#index.html", false},
		{"templates/#index.html#", false},
		{"templates/4913", false},
		{"upload.tmp", false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, NoEditorTempFilter(tc.path))
		})
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

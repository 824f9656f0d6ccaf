// Package watcher reports filesystem changes under a set of directory trees.
//
// Every fsnotify event that passes the filters is delivered to every handler
// as its own ChangeEvent. Nothing is coalesced. Directories created after a
// tree was added are not watched.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/velto/internal/errors"
	"github.com/conneroisu/velto/internal/logging"
)

// FileWatcher watches directory trees for changes.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	filters  []FileFilter
	handlers []ChangeHandler
	logger   logging.Logger
	mutex    sync.RWMutex

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
	EventTypeChmod
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	case EventTypeChmod:
		return "chmod"
	default:
		return "unknown"
	}
}

// FileFilter reports whether an event for path should be delivered.
type FileFilter func(path string) bool

// ChangeHandler handles one file change event.
type ChangeHandler func(event ChangeEvent) error

// NewFileWatcher creates a new file watcher
func NewFileWatcher(logger logging.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeWatcherInit, "creating file watcher", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &FileWatcher{
		watcher:  watcher,
		filters:  make([]FileFilter, 0),
		handlers: make([]ChangeHandler, 0),
		logger:   logger.WithComponent("watcher"),
		done:     make(chan struct{}),
	}, nil
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddRecursive watches root and every directory beneath it as of now.
func (fw *FileWatcher) AddRecursive(root string) error {
	cleanRoot, err := validatePath(root)
	if err != nil {
		return err
	}

	info, err := os.Stat(cleanRoot)
	if err != nil {
		return errors.NewIOError(errors.ErrCodeWatchPath, "stat watch root", err).WithPath(cleanRoot)
	}
	if !info.IsDir() {
		return errors.NewValidationError(errors.ErrCodeWatchPath, "watch root is not a directory").WithPath(cleanRoot)
	}

	return filepath.WalkDir(cleanRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// An unreadable subtree should not stop the rest from being watched.
			fw.logger.Warn(context.Background(), err, "skipping unreadable directory", "path", path)
			if d != nil && d.IsDir() && path != cleanRoot {
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.watcher.Add(path); err != nil {
			return errors.NewIOError(errors.ErrCodeWatchPath, "watching directory", err).WithPath(path)
		}
		return nil
	})
}

// WatchedPaths returns the directories currently registered with fsnotify.
func (fw *FileWatcher) WatchedPaths() []string {
	return fw.watcher.WatchList()
}

// validatePath cleans path and rejects empty input.
func validatePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.NewValidationError(errors.ErrCodeInvalidPath, "empty watch path")
	}
	cleanPath := filepath.Clean(path)
	if strings.IndexByte(cleanPath, 0) != -1 {
		return "", errors.NewValidationError(errors.ErrCodeInvalidPath, "watch path contains NUL byte")
	}
	return cleanPath, nil
}

// Start begins delivering events until ctx is cancelled or Stop is called.
// Calling it more than once has no further effect.
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.startOnce.Do(func() {
		go fw.watchLoop(ctx)
	})
	return nil
}

// Done is closed when the event loop has exited.
func (fw *FileWatcher) Done() <-chan struct{} {
	return fw.done
}

// Stop stops the file watcher and cleans up resources
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	defer close(fw.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			// Log error but continue watching
			fw.logger.Warn(ctx, err, "file watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	fw.mutex.RLock()
	filters := fw.filters
	handlers := fw.handlers
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(event.Name) {
			return
		}
	}

	changeEvent := ChangeEvent{
		Type: eventTypeOf(event.Op),
		Path: event.Name,
	}
	if info, err := os.Stat(event.Name); err == nil {
		changeEvent.ModTime = info.ModTime()
		changeEvent.Size = info.Size()
	}

	for _, handler := range handlers {
		if err := handler(changeEvent); err != nil {
			// Log error but continue processing
			fw.logger.Warn(ctx, err, "file watcher handler error", "path", event.Name)
		}
	}
}

func eventTypeOf(op fsnotify.Op) EventType {
	switch {
	case op.Has(fsnotify.Create):
		return EventTypeCreated
	case op.Has(fsnotify.Write):
		return EventTypeModified
	case op.Has(fsnotify.Remove):
		return EventTypeDeleted
	case op.Has(fsnotify.Rename):
		return EventTypeRenamed
	case op.Has(fsnotify.Chmod):
		return EventTypeChmod
	default:
		return EventTypeModified
	}
}

// String describes the event for logs.
func (e ChangeEvent) String() string {
	return fmt.Sprintf("%s %s", e.Type, e.Path)
}

// NoGitFilter drops events inside .git directories.
func NoGitFilter(path string) bool {
	slashed := filepath.ToSlash(path)
	return !strings.HasPrefix(slashed, ".git/") && !strings.Contains(slashed, "/.git/")
}

// NoEditorTempFilter drops editor swap and backup files.
func NoEditorTempFilter(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasSuffix(base, ".tmp"),
		strings.HasPrefix(base, ".#"),
		base == "4913":
		return false
	}
	matched, _ := filepath.Match("#*#", base)
	return !matched
}

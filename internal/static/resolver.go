// Package static resolves request paths to files under a set of configured
// root directories.
//
// Every candidate is checked by a traversal guard: the joined path is
// normalized lexically, then both the root and the candidate are resolved
// through symlinks, and the candidate is served only if its canonical form
// stays inside the canonical root.
package static

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/conneroisu/velto/internal/devmode"
	"github.com/conneroisu/velto/internal/errors"
	"github.com/conneroisu/velto/internal/logging"
)

// Asset is a resolved static file.
type Asset struct {
	// Path is the canonical filesystem path the content was read from.
	Path     string
	Content  []byte
	MIMEType string
}

// Resolver searches its directories in registration order; first match wins.
type Resolver struct {
	mu     sync.RWMutex
	dirs   []string
	state  *devmode.State
	logger logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for dev-mode diagnostics.
func WithLogger(logger logging.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger.WithComponent("static")
	}
}

// WithDevMode gates diagnostics on state.
func WithDevMode(state *devmode.State) Option {
	return func(r *Resolver) {
		r.state = state
	}
}

// New creates a resolver over dirs.
func New(dirs []string, opts ...Option) *Resolver {
	r := &Resolver{
		dirs:   append([]string(nil), dirs...),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add appends dir to the search order.
func (r *Resolver) Add(dir string) {
	r.mu.Lock()
	r.dirs = append(r.dirs, dir)
	r.mu.Unlock()
}

// Dirs returns the search order.
func (r *Resolver) Dirs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.dirs...)
}

// Resolve finds urlPath (as escaped on the wire) in the first directory that
// holds it. A miss in one directory, for any reason, moves on to the next.
func (r *Resolver) Resolve(urlPath string) (*Asset, bool) {
	rel, err := decodePath(urlPath)
	if err != nil {
		r.diagnose(err, "rejected static path", "path", urlPath)
		return nil, false
	}

	for _, dir := range r.Dirs() {
		asset, err := resolveIn(dir, rel)
		if err != nil {
			r.diagnose(err, "static file not served", "dir", dir, "path", urlPath)
			continue
		}
		return asset, true
	}
	return nil, false
}

// diagnose logs only while dev mode is enabled.
func (r *Resolver) diagnose(err error, msg string, fields ...interface{}) {
	if !r.state.Enabled() {
		return
	}
	r.logger.Warn(context.Background(), err, msg, fields...)
}

// decodePath percent-decodes urlPath and strips leading slashes.
func decodePath(urlPath string) (string, error) {
	decoded, err := url.PathUnescape(urlPath)
	if err != nil {
		return "", errors.NewValidationError(errors.ErrCodeInvalidPath, "malformed percent-encoding").
			WithPath(urlPath)
	}
	if strings.IndexByte(decoded, 0) != -1 {
		return "", errors.NewSecurityError(errors.ErrCodeInvalidPath, "path contains NUL byte").
			WithPath(urlPath)
	}
	return strings.TrimLeft(decoded, "/"), nil
}

// resolveIn applies the traversal guard for one root and reads the file.
func resolveIn(dir, rel string) (*Asset, error) {
	root, err := canonical(dir)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeStaticRead, "resolving static root", err).WithPath(dir)
	}

	// filepath.Join cleans the result, collapsing "." and ".." lexically.
	joined := filepath.Join(dir, filepath.FromSlash(rel))

	candidate, err := canonical(joined)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeStaticRead, "resolving static file", err).WithPath(joined)
	}

	if !within(root, candidate) {
		return nil, errors.NewSecurityError(errors.ErrCodePathTraversal, "path escapes static root").
			WithPath(joined)
	}

	info, err := os.Stat(candidate)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeStaticRead, "stat static file", err).WithPath(candidate)
	}
	if info.IsDir() {
		return nil, errors.NewIOError(errors.ErrCodeStaticRead, "path is a directory", nil).WithPath(candidate)
	}

	content, err := os.ReadFile(candidate)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeStaticRead, "reading static file", err).WithPath(candidate)
	}

	return &Asset{
		Path:     candidate,
		Content:  content,
		MIMEType: MIMEType(candidate),
	}, nil
}

// canonical returns the absolute, symlink-free form of path.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// within reports whether path equals root or lies beneath it.
func within(root, path string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

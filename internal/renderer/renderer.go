// Package renderer renders HTML templates from a template directory and, in
// dev mode, injects the live-reload client into every page it produces.
//
// Template syntax:
//
//	{{ key }}                      replaced by data[key], or "" when missing
//	{% include "header.html" %}    replaced by the named template
//	{% extends "base.html" %}      the page fills the parent's blocks
//	{% block name %}...{% endblock %}
//
// Template names are resolved inside the template directory only.
package renderer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/velto/internal/devmode"
	"github.com/conneroisu/velto/internal/errors"
	"github.com/conneroisu/velto/internal/logging"
)

// DefaultDir is the template directory used when none is configured.
const DefaultDir = "templates"

// NotFoundHTML is rendered in place of a template that cannot be loaded.
const NotFoundHTML = "<h1>Template not found</h1>"

// MaxDepth bounds include and extends nesting.
const MaxDepth = 10

var (
	varPattern     = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)
	includePattern = regexp.MustCompile(`\{%\s*include\s+"([^"]+)"\s*%\}`)
	extendsPattern = regexp.MustCompile(`^\s*\{%\s*extends\s+"([^"]+)"\s*%\}`)
	blockPattern   = regexp.MustCompile(`(?s)\{%\s*block\s+(\w+)\s*%\}(.*?)\{%\s*endblock\s*%\}`)
)

// Renderer loads templates from a directory.
type Renderer struct {
	dir    string
	dev    *devmode.State
	logger logging.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger.WithComponent("renderer")
	}
}

// New creates a renderer over dir (DefaultDir when empty). dev may be nil,
// in which case no reload script is injected.
func New(dir string, dev *devmode.State, opts ...Option) *Renderer {
	if dir == "" {
		dir = DefaultDir
	}
	r := &Renderer{
		dir:    dir,
		dev:    dev,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the template directory.
func (r *Renderer) Dir() string {
	return r.dir
}

// Render produces the page for name with data substituted. A missing
// template yields NotFoundHTML rather than an error.
func (r *Renderer) Render(name string, data map[string]string) string {
	page, err := r.compose(name, 0)
	if err != nil {
		r.logger.Warn(context.Background(), err, "template not rendered", "template", name)
		page = NotFoundHTML
	}
	page = stripBlocks(page)

	page = varPattern.ReplaceAllStringFunc(page, func(match string) string {
		key := varPattern.FindStringSubmatch(match)[1]
		return data[key]
	})

	return string(r.Inject([]byte(page)))
}

// RenderComponent renders a templ component and applies the same reload
// script injection as Render.
func (r *Renderer) RenderComponent(ctx context.Context, component templ.Component) ([]byte, error) {
	var buf bytes.Buffer
	if err := component.Render(ctx, &buf); err != nil {
		return nil, fmt.Errorf("rendering component: %w", err)
	}
	return r.Inject(buf.Bytes()), nil
}

// Inject adds the reload client to page when dev mode is enabled.
func (r *Renderer) Inject(page []byte) []byte {
	if !r.dev.Enabled() {
		return page
	}
	return InjectScript(page, ReloadScript(r.dev.ReloadAddr()))
}

// compose resolves inheritance and includes for name.
func (r *Renderer) compose(name string, depth int) (string, error) {
	if depth > MaxDepth {
		return "", errors.NewValidationError(errors.ErrCodeInvalidPath, "template nesting too deep").WithPath(name)
	}

	content, err := r.load(name)
	if err != nil {
		return "", err
	}

	if m := extendsPattern.FindStringSubmatch(content); m != nil {
		parent, err := r.compose(m[1], depth+1)
		if err != nil {
			return "", err
		}
		content = fillBlocks(parent, blocksOf(content))
	}

	return r.expandIncludes(content, depth)
}

// expandIncludes replaces include tags. An include that cannot be rendered,
// including one nested past MaxDepth, renders as nothing.
func (r *Renderer) expandIncludes(content string, depth int) (string, error) {
	return includePattern.ReplaceAllStringFunc(content, func(match string) string {
		name := includePattern.FindStringSubmatch(match)[1]
		included, err := r.compose(name, depth+1)
		if err != nil {
			r.logger.Warn(context.Background(), err, "include not rendered", "template", name)
			return ""
		}
		return included
	}), nil
}

// blocksOf collects the block bodies defined by a child template.
func blocksOf(content string) map[string]string {
	blocks := make(map[string]string)
	for _, m := range blockPattern.FindAllStringSubmatch(content, -1) {
		blocks[m[1]] = m[2]
	}
	return blocks
}

// fillBlocks replaces the body of each parent block with the child's
// version. Block tags are kept so a further descendant can override again.
func fillBlocks(parent string, blocks map[string]string) string {
	return blockPattern.ReplaceAllStringFunc(parent, func(match string) string {
		m := blockPattern.FindStringSubmatch(match)
		body, ok := blocks[m[1]]
		if !ok {
			return match
		}
		return "{% block " + m[1] + " %}" + body + "{% endblock %}"
	})
}

// stripBlocks removes block tags, leaving their bodies.
func stripBlocks(page string) string {
	return blockPattern.ReplaceAllString(page, "$2")
}

// load reads name from the template directory.
func (r *Renderer) load(name string) (string, error) {
	path, err := confine(r.dir, name)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeStaticRead, "reading template", err).WithPath(path)
	}
	return string(content), nil
}

// confine maps name to a file inside dir, following symlinks.
func confine(dir, name string) (string, error) {
	if name == "" || strings.IndexByte(name, 0) != -1 || filepath.IsAbs(name) {
		return "", errors.NewSecurityError(errors.ErrCodeInvalidPath, "invalid template name").WithPath(name)
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeStaticRead, "resolving template directory", err).WithPath(dir)
	}
	path := filepath.Join(root, filepath.FromSlash(name))
	if !within(root, path) {
		return "", errors.NewSecurityError(errors.ErrCodePathTraversal, "template escapes template directory").WithPath(name)
	}

	canonRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeStaticRead, "resolving template directory", err).WithPath(dir)
	}
	canonPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeStaticRead, "resolving template", err).WithPath(path)
	}
	if !within(canonRoot, canonPath) {
		return "", errors.NewSecurityError(errors.ErrCodePathTraversal, "template escapes template directory").WithPath(name)
	}
	return canonPath, nil
}

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

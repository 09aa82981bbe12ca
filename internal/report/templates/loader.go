// Package templates resolves template names to their assets and plugins.
//
// A template named "invoice" is a set of files in the template root:
//
//	invoice.html   required; html/template markup
//	invoice.js     optional; evaluated in the page before render
//	invoice.yaml   optional; Manifest
//
// Data plugins are registered in a Registry, never loaded from disk.
package templates

import (
	"database/sql"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/engine"
)

// Loader resolves names inside a single root directory.
type Loader struct {
	root     string
	registry *Registry

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// NewLoader returns a loader rooted at root. A nil registry means no
// template has a data plugin.
func NewLoader(root string, registry *Registry) (*Loader, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: template root: %w", domain.ErrConfig, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: template root: %w", domain.ErrConfig, err)
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Loader{
		root:     resolved,
		registry: registry,
		sources:  make(map[string]oauth2.TokenSource),
	}, nil
}

func (l *Loader) Root() string { return l.root }

// Template is a resolved template.
type Template struct {
	Name     string
	HTMLPath string

	// Script is the contents of {name}.js, empty when absent.
	Script string

	Manifest Manifest

	factory Factory
	loader  *Loader
}

// Resolve validates name and locates its assets. It returns an error
// wrapping domain.ErrValidation for a bad name or an asset outside the root,
// domain.ErrNotFound when the markup is missing and domain.ErrConfig for a
// broken manifest or plugin registration.
func (l *Loader) Resolve(name string) (*Template, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	htmlPath, err := l.asset(name, ".html")
	if err != nil {
		return nil, err
	}
	if htmlPath == "" {
		return nil, fmt.Errorf("%w: template %q", domain.ErrNotFound, name)
	}

	t := &Template{Name: name, HTMLPath: htmlPath, loader: l}

	if p, err := l.asset(name, ".js"); err != nil {
		return nil, err
	} else if p != "" {
		src, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("templates: read %s: %w", filepath.Base(p), err)
		}
		t.Script = string(src)
	}

	if p, err := l.asset(name, ".yaml"); err != nil {
		return nil, err
	} else if p != "" {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("templates: read %s: %w", filepath.Base(p), err)
		}
		if t.Manifest, err = ParseManifest(data); err != nil {
			return nil, fmt.Errorf("template %q: %w", name, err)
		}
	}

	pluginName := t.Manifest.Plugin
	if pluginName == "" {
		pluginName = name
	}
	f, ok := l.registry.Lookup(pluginName)
	switch {
	case ok && f == nil:
		return nil, fmt.Errorf("%w: template %q: plugin %q has no constructor", domain.ErrConfig, name, pluginName)
	case !ok && t.Manifest.Plugin != "":
		return nil, fmt.Errorf("%w: template %q: plugin %q is not registered", domain.ErrConfig, name, pluginName)
	}
	t.factory = f

	return t, nil
}

// asset returns the resolved path of name+ext, or "" if it does not exist.
// Paths that leave the root, directly or through a symlink, are rejected.
func (l *Loader) asset(name, ext string) (string, error) {
	p := filepath.Join(l.root, name+ext)
	if !l.inside(p) {
		return "", fmt.Errorf("%w: template %q escapes the template root", domain.ErrValidation, name)
	}

	resolved, err := filepath.EvalSymlinks(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("templates: stat %s: %w", name+ext, err)
	}
	if !l.inside(resolved) {
		return "", fmt.Errorf("%w: template %q escapes the template root", domain.ErrValidation, name)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("templates: stat %s: %w", name+ext, err)
	}
	if !info.Mode().IsRegular() {
		return "", nil
	}
	return resolved, nil
}

func (l *Loader) inside(p string) bool {
	rel, err := filepath.Rel(l.root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// HasPlugin reports whether the template gathers its own data.
func (t *Template) HasPlugin() bool { return t.factory != nil }

// NewPlugin constructs the data plugin for one run. It returns nil, nil when
// the template has none.
func (t *Template) NewPlugin(params map[string]any, db *sql.DB) (DataPlugin, error) {
	if t.factory == nil {
		return nil, nil
	}
	p, err := t.factory(params, db)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: template %q: plugin constructor returned nil", domain.ErrConfig, t.Name)
	}
	return p, nil
}

// Execute renders the markup with params. Parameters are escaped by
// html/template; only the markdown func emits raw HTML.
func (t *Template) Execute(w io.Writer, params map[string]any) error {
	tpl, err := template.New(filepath.Base(t.HTMLPath)).
		Funcs(FuncMap()).
		Option("missingkey=zero").
		ParseFiles(t.HTMLPath)
	if err != nil {
		return fmt.Errorf("templates: parse %s: %w", t.Name, err)
	}
	if err := tpl.Execute(w, params); err != nil {
		return fmt.Errorf("templates: execute %s: %w", t.Name, err)
	}
	return nil
}

// HeaderFooter renders the manifest header and footer with params.
func (t *Template) HeaderFooter(params map[string]any) (header, footer string, err error) {
	if header, err = RenderString(t.Name+"-header", t.Manifest.Header, params); err != nil {
		return "", "", fmt.Errorf("templates: header %s: %w", t.Name, err)
	}
	if footer, err = RenderString(t.Name+"-footer", t.Manifest.Footer, params); err != nil {
		return "", "", fmt.Errorf("templates: footer %s: %w", t.Name, err)
	}
	return header, footer, nil
}

// RequestHook returns the manifest-configured credential hook and the URL
// patterns it applies to. It returns nil when the manifest has no auth block.
func (t *Template) RequestHook() (patterns []string, hook engine.RequestHook, err error) {
	auth := t.Manifest.Auth
	if auth == nil {
		return nil, nil, nil
	}
	ts, err := t.loader.tokenSource(t.Name, auth)
	if err != nil {
		return nil, nil, err
	}
	return auth.Routes, BearerHook(ts), nil
}

// tokenSource caches one reusable source per template so client-credential
// tokens are shared across renders until they expire.
func (l *Loader) tokenSource(name string, auth *AuthConfig) (oauth2.TokenSource, error) {
	key := name + "|" + auth.BearerEnv
	if o := auth.OAuth2; o != nil {
		key += "|" + o.TokenURL + "|" + o.ClientID + "|" + o.ClientSecretEnv + "|" + strings.Join(o.Scopes, " ")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if ts, ok := l.sources[key]; ok {
		return ts, nil
	}
	ts, err := auth.tokenSource()
	if err != nil {
		return nil, err
	}
	ts = oauth2.ReuseTokenSource(nil, ts)
	l.sources[key] = ts
	return ts, nil
}

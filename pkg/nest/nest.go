package nest

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"unicode"
)

// Nest renders input trees against a directory of templates. It owns the
// template index cache, so separate instances never share state.
// All methods are concurrent-safe.
type Nest struct {
	logger *slog.Logger
	eng    *engine
	mu     sync.RWMutex
}

// engine is an immutable snapshot of everything derived from a Config.
// Swapping it under Nest.mu keeps in-flight renders on a consistent view.
type engine struct {
	config *Config
	ixr    *indexer
	filter func(string) string
	cache  *indexCache
}

// New creates a Nest for config, which may be nil to use DefaultConfig.
// It fails with ErrTemplateDirNotFound if config.Directory is not a
// directory. When caching is enabled every template below the directory is
// indexed up front.
func New(logger *slog.Logger, config *Config) (*Nest, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	n := &Nest{logger: logger}
	if err := n.SetConfig(config); err != nil {
		return nil, err
	}
	logger.Info("Template engine initialized", "directory", n.eng.config.Directory)
	return n, nil
}

func newEngine(config *Config) (*engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	info, err := os.Stat(config.Directory)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w at %q", ErrTemplateDirNotFound, config.Directory)
	}
	if config.StartDelimiter == "" || config.EndDelimiter == "" {
		return nil, errors.New("token start and end delimiters must not be empty")
	}
	if config.Label == "" {
		return nil, errors.New("name label must not be empty")
	}
	return &engine{
		config: config,
		ixr:    newIndexer(config.Syntax()),
		filter: leafFilter(config),
		cache:  newIndexCache(),
	}, nil
}

// SetConfig replaces the configuration. The index cache is discarded and,
// when caching is enabled, rebuilt from the new directory before the swap.
// On error the previous configuration stays in effect.
func (n *Nest) SetConfig(config *Config) error {
	eng, err := newEngine(config)
	if err != nil {
		return err
	}
	if eng.config.CacheTemplates {
		if err = n.preload(eng); err != nil {
			return err
		}
	}
	n.mu.Lock()
	n.eng = eng
	n.mu.Unlock()
	return nil
}

// Refresh drops every cached index and re-indexes the template directory.
// It is a no-op when caching is disabled.
func (n *Nest) Refresh() error {
	eng := n.current()
	if !eng.config.CacheTemplates {
		return nil
	}
	return n.preload(eng)
}

func (n *Nest) preload(eng *engine) error {
	n.logger.Info("Loading template files...", "directory", eng.config.Directory)
	entries := make(map[string]*Index)
	err := walkTemplates(eng.config.Directory, eng.config.Extension, func(name, path string, info fs.FileInfo) error {
		ix, err := eng.ixr.load(path, info.ModTime())
		if err != nil {
			return err
		}
		entries[name] = ix
		return nil
	})
	if err != nil {
		n.logger.Error("failed to load template files", "error", err)
		return err
	}
	eng.cache.replace(entries)
	n.logger.Info("Loaded template files", "count", len(entries))
	return nil
}

func (n *Nest) current() *engine {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.eng
}

// GetConfig returns a copy of the current configuration.
func (n *Nest) GetConfig() Config {
	return *n.current().config
}

// GetTemplateDir returns the template directory in use.
func (n *Nest) GetTemplateDir() string {
	return n.current().config.Directory
}

// TemplateNames returns the sorted names of all known templates. With
// caching disabled the directory is walked on every call.
func (n *Nest) TemplateNames() ([]string, error) {
	eng := n.current()
	if eng.config.CacheTemplates {
		return eng.cache.names(), nil
	}
	var names []string
	err := walkTemplates(eng.config.Directory, eng.config.Extension, func(name, _ string, _ fs.FileInfo) error {
		names = append(names, name)
		return nil
	})
	return names, err
}

// Index returns the index of the named template, loading it if needed.
func (n *Nest) Index(name string) (*Index, error) {
	return n.current().lookup(n.logger, name)
}

// lookup returns the index for name, re-reading the file when its
// modification time is newer than the cached copy.
func (e *engine) lookup(logger *slog.Logger, name string) (*Index, error) {
	path, info, err := e.ixr.stat(e.config.Directory, name)
	if err != nil {
		return nil, err
	}
	if !e.config.CacheTemplates {
		return e.ixr.load(path, info.ModTime())
	}
	if ix, ok := e.cache.get(name); ok && !info.ModTime().After(ix.ModTime) {
		return ix, nil
	}
	ix, err := e.ixr.load(path, info.ModTime())
	if err != nil {
		return nil, err
	}
	logger.Debug("Indexed template", "template", name, "tokens", len(ix.Tokens))
	e.cache.put(name, ix)
	return ix, nil
}

// Render resolves v into a string. Text is returned as is (escaped or
// sanitized when configured), List items are concatenated and Keyed values
// are substituted into their template. Any error aborts the whole render.
func (n *Nest) Render(v Value) (string, error) {
	r := renderer{eng: n.current(), logger: n.logger}
	return r.render(v)
}

// RenderTo renders v and writes the result to w.
func (n *Nest) RenderTo(w io.Writer, v Value) error {
	out, err := n.Render(v)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

type renderer struct {
	eng    *engine
	logger *slog.Logger
}

func (r renderer) render(v Value) (string, error) {
	switch v := v.(type) {
	case Text:
		if r.eng.filter != nil {
			return r.eng.filter(string(v)), nil
		}
		return string(v), nil
	case List:
		var b strings.Builder
		for _, item := range v {
			s, err := r.render(item)
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		}
		return b.String(), nil
	case Keyed:
		return r.renderKeyed(v)
	}
	return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

func (r renderer) renderKeyed(k Keyed) (string, error) {
	cfg := r.eng.config
	name, err := k.Template(cfg.Label)
	if err != nil {
		return "", err
	}
	ix, err := r.eng.lookup(r.logger, name)
	if err != nil {
		return "", err
	}

	if cfg.DieOnBadParams {
		for _, key := range k.keys() {
			if key != cfg.Label && !ix.Has(key) {
				return "", fmt.Errorf("%w: %q in template %q", ErrBadParams, key, name)
			}
		}
	}

	var b strings.Builder
	b.Grow(len(ix.Contents))
	if cfg.ShowLabels {
		fmt.Fprintf(&b, "%s BEGIN %s %s\n", cfg.CommentStart, name, cfg.CommentEnd)
	}

	// Tokens are sorted by offset, so one forward pass copies the literal
	// text between spans and appends each substitution in place of its span.
	pos := 0
	for _, tok := range ix.Tokens {
		b.WriteString(ix.Contents[pos:tok.Start])
		pos = tok.End
		if tok.Escaped {
			continue
		}

		v, ok := k[tok.Name]
		if !ok {
			v, ok = cfg.Defaults[tok.Name]
		}
		if !ok {
			continue
		}
		s, err := r.render(v)
		if err != nil {
			return "", err
		}
		if cfg.FixedIndent && tok.Indent != 0 {
			s = strings.ReplaceAll(s, "\n", "\n"+strings.Repeat(" ", tok.Indent))
		}
		b.WriteString(s)
	}
	b.WriteString(ix.Contents[pos:])

	if cfg.ShowLabels {
		fmt.Fprintf(&b, "%s END %s %s\n", cfg.CommentStart, name, cfg.CommentEnd)
	}
	return strings.TrimRightFunc(b.String(), unicode.IsSpace), nil
}

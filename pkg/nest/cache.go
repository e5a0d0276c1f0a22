package nest

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// indexCache maps template names to their indexes. Reads run concurrently;
// stores and resets are serialized.
type indexCache struct {
	mu      sync.RWMutex
	entries map[string]*Index
}

func newIndexCache() *indexCache {
	return &indexCache{entries: make(map[string]*Index)}
}

func (c *indexCache) get(name string) (*Index, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ix, ok := c.entries[name]
	return ix, ok
}

func (c *indexCache) put(name string, ix *Index) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = ix
}

// replace swaps in a fully built set of entries.
func (c *indexCache) replace(entries map[string]*Index) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
}

func (c *indexCache) names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// walkTemplates calls fn for every template file below dir, passing the
// template name: the slash separated path relative to dir with the
// extension stripped.
func walkTemplates(dir, ext string, fn func(name, path string, info fs.FileInfo) error) error {
	suffix := ""
	if ext != "" {
		suffix = "." + ext
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.ToSlash(rel), suffix)
		return fn(name, path, info)
	})
}

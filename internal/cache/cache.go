// Package cache holds the read-only template repository shared by every
// transport instance.
package cache

import (
	"sort"
	"sync"

	"github.com/OCAP2/transport/internal/path"
)

// TemplateCache stores generated templates by transport entry. Templates
// are immutable once added, so callers share the returned pointers.
type TemplateCache struct {
	m         sync.RWMutex
	templates map[uint32]*path.Template
}

func NewTemplateCache() *TemplateCache {
	return &TemplateCache{
		templates: make(map[uint32]*path.Template),
	}
}

func (c *TemplateCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.templates = make(map[uint32]*path.Template)
}

func (c *TemplateCache) Get(entry uint32) (*path.Template, bool) {
	c.m.RLock()
	defer c.m.RUnlock()
	t, ok := c.templates[entry]
	return t, ok
}

func (c *TemplateCache) Add(t *path.Template) {
	c.m.Lock()
	defer c.m.Unlock()
	c.templates[t.Info.Entry] = t
}

func (c *TemplateCache) Len() int {
	c.m.RLock()
	defer c.m.RUnlock()
	return len(c.templates)
}

// All returns every template ordered by entry.
func (c *TemplateCache) All() []*path.Template {
	c.m.RLock()
	defer c.m.RUnlock()
	out := make([]*path.Template, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Info.Entry < out[j].Info.Entry })
	return out
}

// Package item holds the item catalog and the per-character bag the quest
// engine reads and edits through quest.Inventory.
package item

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kasuganosora/rpgquest/game/quest"
)

// Catalog indexes item templates by id.
type Catalog struct {
	mu    sync.RWMutex
	items map[string]*quest.ItemTemplate
}

func NewCatalog() *Catalog {
	return &Catalog{items: make(map[string]*quest.ItemTemplate)}
}

// Add registers t. Ids are unique.
func (c *Catalog) Add(t *quest.ItemTemplate) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("item template without id: %w", quest.ErrInvalidDefinition)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[t.ID]; ok {
		return fmt.Errorf("duplicate item %q: %w", t.ID, quest.ErrInvalidDefinition)
	}
	c.items[t.ID] = t
	return nil
}

func (c *Catalog) Get(id string) (*quest.ItemTemplate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.items[id]
	return t, ok
}

// All returns every template sorted by id.
func (c *Catalog) All() []*quest.ItemTemplate {
	c.mu.RLock()
	out := make([]*quest.ItemTemplate, 0, len(c.items))
	for _, t := range c.items {
		out = append(out, t)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

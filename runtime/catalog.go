package runtime

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Catalog holds the currently loaded workflows by name. Reloads swap the
// whole set at once.
type Catalog struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
}

func NewCatalog(workflows map[string]*Workflow) *Catalog {
	c := &Catalog{}
	c.Replace(workflows)
	return c
}

func (c *Catalog) Get(name string) (*Workflow, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.workflows[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, name)
	}
	return w, nil
}

// Names returns workflow names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.workflows))
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.workflows)
}

func (c *Catalog) Replace(workflows map[string]*Workflow) {
	next := maps.Clone(workflows)
	if next == nil {
		next = make(map[string]*Workflow)
	}
	c.mu.Lock()
	c.workflows = next
	c.mu.Unlock()
}

// Tools returns a descriptor per workflow, ordered by name.
func (c *Catalog) Tools() []ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tools := make([]ToolDescriptor, 0, len(c.workflows))
	for _, name := range slices.Sorted(maps.Keys(c.workflows)) {
		tools = append(tools, Tool(c.workflows[name]))
	}
	return tools
}

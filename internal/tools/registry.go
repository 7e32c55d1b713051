package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/MEKXH/cherub/internal/enforcement"
)

// Registry manages tool implementations by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]enforcement.Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]enforcement.Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool enforcement.Tool) error {
	if tool == nil || tool.Name() == "" {
		return fmt.Errorf("tool missing name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name()]; exists {
		return fmt.Errorf("tool already registered: %s", tool.Name())
	}
	r.tools[tool.Name()] = tool
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (enforcement.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

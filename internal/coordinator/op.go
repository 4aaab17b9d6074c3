package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/Ghazalehdelfi/secretary-agent/pkg/protocol"
)

// Op is one typed scheduling operation the reasoning engine may invoke.
type Op interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema
	Execute(ctx context.Context, params map[string]any) (string, error)
}

// Registry holds registered ops and dispatches execution.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Op
}

// NewRegistry creates an empty op registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Op)}
}

// Register adds an op to the registry.
func (r *Registry) Register(o Op) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[o.Name()] = o
}

// Has returns true if an op with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ops[name]
	return ok
}

// List returns the names of all registered ops.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	return names
}

// Definitions returns all ops in function-calling format.
func (r *Registry) Definitions() []protocol.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]protocol.ToolDefinition, 0, len(r.ops))
	for _, o := range r.ops {
		defs = append(defs, protocol.NewToolDefinition(
			o.Name(),
			o.Description(),
			o.Parameters(),
		))
	}
	return defs
}

// Execute runs the named op with the given parameters.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (string, error) {
	r.mu.RLock()
	o, ok := r.ops[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("operation %q not found", name)
	}
	return o.Execute(ctx, params)
}

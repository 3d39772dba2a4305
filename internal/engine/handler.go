package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/rendis/agentflow/pkg/schema"
)

// RunLog lets handlers append entries to the execution log of the current
// run. Append failures are swallowed by the implementation; logging must
// never abort a workflow.
type RunLog interface {
	Log(ctx context.Context, level schema.LogLevel, message string, data map[string]any)
}

// Handler executes one node type. Execute receives the accumulated context
// and returns the context for the node's successors plus the node's result
// payload (recorded as a NodeResult).
//
// A returned error aborts the whole run. Integration failures that should
// not abort (api_call errors, generation fallbacks) are logged through
// RunLog and absorbed by the handler itself.
type Handler interface {
	Type() schema.NodeType
	Execute(ctx context.Context, node *schema.Node, execCtx Context, log RunLog) (Context, any, error)
}

// Registry is a thread-safe node-type to handler lookup table.
type Registry struct {
	mu       sync.RWMutex
	handlers map[schema.NodeType]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[schema.NodeType]Handler),
	}
}

// Register adds a handler to the registry. Returns error on duplicate type.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return schema.NewError(schema.ErrCodeValidation, "handler is nil")
	}
	typ := h.Type()
	if typ == "" {
		return schema.NewError(schema.ErrCodeValidation, "handler type is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[typ]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "handler for %q already registered", typ)
	}
	r.handlers[typ] = h
	return nil
}

// Get retrieves a handler by node type. The second return is false for
// unknown types; the walker substitutes identity behavior.
func (r *Registry) Get(typ schema.NodeType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[typ]
	return h, ok
}

// Types returns the registered node types, sorted.
func (r *Registry) Types() []schema.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]schema.NodeType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

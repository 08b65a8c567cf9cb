// Package tools defines the tool interface and registry for the gateway.
// Each tool validates its own parameters before execution so invalid
// requests fail fast at the dispatch boundary.
package tools

import (
	"context"
	"sort"
	"sync"
)

// Tool is the interface all gateway tools implement.
type Tool interface {
	// Name returns the tool's unique identifier (e.g. "python").
	Name() string

	// Description returns a human-readable description sent to the client.
	Description() string

	// InputSchema returns a JSON Schema object describing the tool's
	// parameters, sent to the MCP client as the tool's input_schema.
	InputSchema() map[string]any

	// Validate checks that params are well-formed before execution.
	Validate(params map[string]any) error

	// Execute runs the tool with the given parameters.
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Result is the outcome of a tool execution.
type Result struct {
	Output   string         `json:"output"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Success  bool           `json:"success"`
}

// MaxOutputBytes is the default cap for tool output to prevent OOM.
const MaxOutputBytes = 1 << 20 // 1 MB

// TruncateOutput caps a string at maxBytes, appending a truncation notice if cut.
func TruncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	const suffix = "\n... [output truncated]"
	if maxBytes <= len(suffix) {
		return s[:maxBytes]
	}
	return s[:maxBytes-len(suffix)] + suffix
}

// Registry holds available tools keyed by name.
// Thread-safe for concurrent reads; writes should only happen at startup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Panics on duplicate names (startup config error, not runtime).
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		panic("duplicate tool registration: " + t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns the tool by name, or nil if not found.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns all registered tools in name order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// RequireString extracts a required string parameter.
func RequireString(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", &ParamError{Key: key, Reason: "missing required parameter"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ParamError{Key: key, Reason: "must be a string"}
	}
	if s == "" {
		return "", &ParamError{Key: key, Reason: "must not be empty"}
	}
	return s, nil
}

// OptionalInt extracts an optional integer parameter, tolerating the
// float64 that JSON decoding produces.
func OptionalInt(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// OptionalBool extracts an optional boolean parameter.
func OptionalBool(params map[string]any, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}

// OptionalString extracts an optional string parameter.
func OptionalString(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}

// ParamError reports an invalid tool parameter.
type ParamError struct {
	Key    string
	Reason string
}

func (e *ParamError) Error() string { return "parameter " + e.Key + ": " + e.Reason }

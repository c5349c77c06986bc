// Package toolset holds the static tool registry built at startup and the
// dispatch path that routes tools/call requests to strongly typed handlers.
package toolset

import (
	"context"
	"errors"
	"fmt"

	"github.com/halcyonic/linear-mcp/mcp"
)

// ErrToolNotFound indicates the requested name has no dispatch entry. Wrap
// it with the name via NotFoundError.
var ErrToolNotFound = errors.New("tool not found")

// NotFoundError carries the unknown tool name through the dispatch boundary.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("tool not found: %s", e.Name) }
func (e *NotFoundError) Unwrap() error { return ErrToolNotFound }

// Handler executes one tool invocation. Arguments arrive raw; typed tools
// built with NewTool decode them before the user function runs.
type Handler func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Tool pairs a tool descriptor with its handler: one dispatch entry.
type Tool struct {
	Descriptor mcp.Tool
	Handler    Handler
}

// Registry is the immutable name -> handler mapping plus the descriptor list
// served by tools/list. Built once at startup, read-only thereafter.
type Registry struct {
	tools    []mcp.Tool
	handlers map[string]Handler
}

// New validates and builds the registry. Duplicate names and entries without
// a handler are configuration errors: every listed descriptor must have a
// dispatch entry and vice versa.
func New(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:    make([]mcp.Tool, 0, len(tools)),
		handlers: make(map[string]Handler, len(tools)),
	}
	for _, t := range tools {
		name := t.Descriptor.Name
		if name == "" {
			return nil, errors.New("tool descriptor missing name")
		}
		if _, dup := r.handlers[name]; dup {
			return nil, fmt.Errorf("duplicate tool name: %s", name)
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("tool %s has no handler", name)
		}
		r.tools = append(r.tools, t.Descriptor)
		r.handlers[name] = t.Handler
	}
	return r, nil
}

// Descriptors returns the registered tool descriptors in registration order.
func (r *Registry) Descriptors() []mcp.Tool {
	out := make([]mcp.Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Resolve looks up the dispatch entry for a tool name.
func (r *Registry) Resolve(name string) (Handler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return h, nil
}

// Dispatch resolves and invokes the named tool, forwarding arguments
// unchanged. An unregistered name never reaches a handler.
func (r *Registry) Dispatch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, errors.New("invalid tool request: missing name")
	}
	h, err := r.Resolve(req.Name)
	if err != nil {
		return nil, err
	}
	return h(ctx, req)
}

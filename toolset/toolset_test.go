package toolset

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/halcyonic/linear-mcp/mcp"
)

func staticTool(name string) Tool {
	return Tool{
		Descriptor: mcp.Tool{Name: name, InputSchema: mcp.ToolInputSchema{Type: "object"}},
		Handler: func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return TextResult(name), nil
		},
	}
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	_, err := New(staticTool("a"), staticTool("a"))
	if err == nil || !strings.Contains(err.Error(), "duplicate tool name") {
		t.Fatalf("err = %v, want duplicate name error", err)
	}
}

func TestNewRejectsMissingHandler(t *testing.T) {
	t.Parallel()

	_, err := New(Tool{Descriptor: mcp.Tool{Name: "orphan"}})
	if err == nil || !strings.Contains(err.Error(), "no handler") {
		t.Fatalf("err = %v, want missing handler error", err)
	}
}

func TestNewRejectsMissingName(t *testing.T) {
	t.Parallel()

	_, err := New(Tool{Handler: staticTool("x").Handler})
	if err == nil {
		t.Fatalf("expected error for unnamed tool")
	}
}

func TestDescriptorsStableOrder(t *testing.T) {
	t.Parallel()

	names := []string{"zeta", "alpha", "mid"}
	var tools []Tool
	for _, n := range names {
		tools = append(tools, staticTool(n))
	}
	r, err := New(tools...)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	for trial := 0; trial < 5; trial++ {
		descs := r.Descriptors()
		if len(descs) != len(names) {
			t.Fatalf("descriptors len = %d, want %d", len(descs), len(names))
		}
		for i, d := range descs {
			if d.Name != names[i] {
				t.Fatalf("descriptors[%d] = %q, want %q (registration order)", i, d.Name, names[i])
			}
		}
	}
}

func TestDescriptorsReturnsCopy(t *testing.T) {
	t.Parallel()

	r, err := New(staticTool("a"), staticTool("b"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	descs := r.Descriptors()
	descs[0].Name = "mutated"
	if r.Descriptors()[0].Name != "a" {
		t.Fatalf("registry descriptors were mutated through the returned slice")
	}
}

func TestDispatchUnknownToolPerformsNoInvocation(t *testing.T) {
	t.Parallel()

	invoked := false
	r, err := New(Tool{
		Descriptor: mcp.Tool{Name: "known"},
		Handler: func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			invoked = true
			return TextResult("ok"), nil
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_, err = r.Dispatch(context.Background(), &mcp.CallToolRequest{Name: "does_not_exist"})
	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
	if nfe.Name != "does_not_exist" {
		t.Fatalf("NotFoundError.Name = %q", nfe.Name)
	}
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("err does not unwrap to ErrToolNotFound")
	}
	if invoked {
		t.Fatalf("handler was invoked for an unregistered name")
	}
}

func TestDispatchForwardsArgumentsUnchanged(t *testing.T) {
	t.Parallel()

	args := json.RawMessage(`{"k":"v","n":7}`)
	r, err := New(Tool{
		Descriptor: mcp.Tool{Name: "echo"},
		Handler: func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if string(req.Arguments) != string(args) {
				t.Errorf("arguments = %s, want %s", req.Arguments, args)
			}
			return TextResult("ok"), nil
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := r.Dispatch(context.Background(), &mcp.CallToolRequest{Name: "echo", Arguments: args})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected isError result")
	}
}

func TestDispatchMissingName(t *testing.T) {
	t.Parallel()

	r, err := New(staticTool("a"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := r.Dispatch(context.Background(), &mcp.CallToolRequest{}); err == nil {
		t.Fatalf("expected error for empty tool name")
	}
	if _, err := r.Dispatch(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil request")
	}
}

package toolset

import (
	"encoding/json"
	"fmt"

	"github.com/halcyonic/linear-mcp/mcp"
)

// TextResult builds a single-text-block tool result.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: s}}}
}

// JSONResult marshals v with indentation into a single text block. Values
// that fail to marshal become an isError result.
func JSONResult(v any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Errorf("failed to encode result: %v", err)
	}
	return TextResult(string(b))
}

// Errorf returns an isError tool result with a single formatted text block.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: fmt.Sprintf(format, a...)}},
		IsError: true,
	}
}

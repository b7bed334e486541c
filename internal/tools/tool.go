package tools

import (
	"context"
	"fmt"
)

// Tool is a named capability an agent can call with free text.
// The description is what the agent reads to decide when to call it.
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, input string) (string, error)
}

// ToolInfo is the listing view of a tool. ID is the registry id used to
// select tools whose names collide.
type ToolInfo struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Builtin     bool   `json:"builtin"`
}

// FormatTool renders a tool for display and selection lists.
func FormatTool(t Tool) string {
	return fmt.Sprintf("Name: %s - Description: %s", t.Name(), t.Description())
}

// Describe returns the listing view of t.
func Describe(t Tool) ToolInfo {
	_, builtin := t.(*CodeReader)
	return ToolInfo{Name: t.Name(), Description: t.Description(), Builtin: builtin}
}

package tools

import (
	"sync"
)

// Registry is an append-only, insertion-ordered set of tools.
// Duplicate names are accepted; the position of a tool is its id and never
// changes.
type Registry struct {
	mu    sync.RWMutex
	tools []Tool
}

// Entry is a registered tool together with its registry id.
type Entry struct {
	ID   int
	Tool Tool
}

// NewRegistry builds a registry seeded with the given built-in tools.
func NewRegistry(builtin ...Tool) *Registry {
	return &Registry{tools: append([]Tool(nil), builtin...)}
}

// Register appends t and returns its id.
func (r *Registry) Register(t Tool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = append(r.tools, t)
	return len(r.tools) - 1
}

// List returns a copy of the tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Tool(nil), r.tools...)
}

// Infos returns the listing view of every tool.
func (r *Registry) Infos() []ToolInfo {
	list := r.List()
	out := make([]ToolInfo, 0, len(list))
	for id, t := range list {
		info := Describe(t)
		info.ID = id
		out = append(out, info)
	}
	return out
}

// Select resolves ids in the order given.
func (r *Registry) Select(ids []int) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		if id < 0 || id >= len(r.tools) {
			return nil, Configuration("lookup", "unknown tool id %d", id)
		}
		out = append(out, Entry{ID: id, Tool: r.tools[id]})
	}
	return out, nil
}

// Lookup resolves names in the order given. A name shared by several tools
// is refused; those tools are selected by id.
func (r *Registry) Lookup(names []string) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(names))
	for _, name := range names {
		var matches []int
		for id, t := range r.tools {
			if t.Name() == name {
				matches = append(matches, id)
			}
		}
		switch len(matches) {
		case 0:
			return nil, Configuration("lookup", "unknown tool %q", name)
		case 1:
			out = append(out, Entry{ID: matches[0], Tool: r.tools[matches[0]]})
		default:
			return nil, Configuration("lookup", "tool name %q is shared by ids %v, select by id", name, matches)
		}
	}
	return out, nil
}

// EntryTools returns the tools of entries in order.
func EntryTools(entries []Entry) []Tool {
	out := make([]Tool, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Tool)
	}
	return out
}

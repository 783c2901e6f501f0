// Package coordination exposes the tool-call protocol surface agents use
// to talk to the coordinator: task claiming, file locking, access
// control, usage reporting, and health/zone introspection. Authority for
// every operation lives in the state store; this package is stateless
// request/response plumbing on top of it.
package coordination

import "fmt"

// ToolHandler processes a tool call scoped to one project and connecting
// agent, and returns its result payload. projectID comes from the
// transport (the coordination server is mounted per project), not from
// tool arguments.
type ToolHandler func(projectID, agentID string, params map[string]interface{}) (interface{}, error)

// ParameterDef describes a single named argument a tool accepts.
type ParameterDef struct {
	Type        string
	Description string
	Required    bool
}

// ToolDefinition describes one entry of the tool surface.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]ParameterDef
	Handler     ToolHandler
}

// ToolRegistry holds every registered tool, keyed by name.
type ToolRegistry struct {
	tools map[string]ToolDefinition
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]ToolDefinition)}
}

// Register adds or replaces a tool definition.
func (r *ToolRegistry) Register(tool ToolDefinition) {
	r.tools[tool.Name] = tool
}

// Get returns a tool definition by name.
func (r *ToolRegistry) Get(name string) (ToolDefinition, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List renders every tool as a JSON-schema-shaped description, suitable
// for a tools/list response.
func (r *ToolRegistry) List() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(r.tools))
	for _, tool := range r.tools {
		properties := make(map[string]interface{}, len(tool.Parameters))
		var required []string
		for name, def := range tool.Parameters {
			properties[name] = map[string]interface{}{
				"type":        def.Type,
				"description": def.Description,
			}
			if def.Required {
				required = append(required, name)
			}
		}
		out = append(out, map[string]interface{}{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": map[string]interface{}{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		})
	}
	return out
}

// Execute runs a named tool and always wraps the outcome in the
// content/isError shape required of every tool reply.
func (r *ToolRegistry) Execute(name, projectID, agentID string, params map[string]interface{}) ToolResult {
	tool, ok := r.tools[name]
	if !ok {
		return errorResult(fmt.Errorf("unknown tool: %s", name))
	}
	result, err := tool.Handler(projectID, agentID, params)
	if err != nil {
		return errorResult(err)
	}
	return textResult(result)
}

// ContentBlock is one unit of a ToolResult's payload.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the uniform reply shape for every tool call.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

package coordination

import "encoding/json"

// textResult renders a handler's return value as the tool surface's
// single text content block. A string result (already-rendered markdown,
// e.g. a context bundle) passes through verbatim; anything else is
// marshaled to JSON.
func textResult(v interface{}) ToolResult {
	if s, ok := v.(string); ok {
		return ToolResult{Content: []ContentBlock{{Type: "text", Text: s}}}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(err)
	}
	return ToolResult{Content: []ContentBlock{{Type: "text", Text: string(data)}}}
}

func errorResult(err error) ToolResult {
	return ToolResult{
		Content: []ContentBlock{{Type: "text", Text: err.Error()}},
		IsError: true,
	}
}

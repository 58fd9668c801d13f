package translator

import (
	"strings"

	"copilotx-proxy/pkg/models"
)

// builtInDescription gives synthetic descriptions to Anthropic's built-in
// tool families (computer_*, bash_*, text_editor_*), which carry none of
// their own.
func builtInDescription(name string) string {
	switch {
	case strings.HasPrefix(name, "computer_"):
		return "Control the computer desktop (built-in tool)."
	case strings.HasPrefix(name, "bash_"):
		return "Execute shell commands (built-in tool)."
	case strings.HasPrefix(name, "text_editor_"):
		return "Edit text files (built-in tool)."
	default:
		return ""
	}
}

// ToolsConvert converts Anthropic tool definitions to OpenAI function-tool
// form.
func ToolsConvert(tools []models.ToolDefinition) []any {
	if len(tools) == 0 {
		return nil
	}
	out := make([]any, 0, len(tools))
	for _, t := range tools {
		description := t.Description
		if description == "" {
			description = builtInDescription(t.Name)
		}
		params := t.InputSchema
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		fn := map[string]any{"name": t.Name, "parameters": params}
		if description != "" {
			fn["description"] = description
		}
		out = append(out, map[string]any{"type": "function", "function": fn})
	}
	return out
}

// ToolChoiceConvert converts a parsed Anthropic tool_choice to OpenAI form.
// Unrecognized kinds degrade to "auto".
func ToolChoiceConvert(tc models.ToolChoice) any {
	switch tc.Kind {
	case models.ToolChoiceAuto:
		return "auto"
	case models.ToolChoiceAny:
		return "required"
	case models.ToolChoiceNone:
		return "none"
	case models.ToolChoiceSpecific:
		return map[string]any{"type": "function", "function": map[string]any{"name": tc.Name}}
	default:
		return "auto"
	}
}

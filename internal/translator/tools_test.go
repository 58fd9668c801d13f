package translator

import (
	"reflect"
	"testing"

	"copilotx-proxy/pkg/models"
)

func TestToolsConvert(t *testing.T) {
	tools := []models.ToolDefinition{
		{
			Name:        "read_file",
			Description: "Read a file",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path": map[string]any{"type": "string"}},
			},
		},
		{Name: "bash_20250124"},
	}

	got := ToolsConvert(tools)
	if len(got) != 2 {
		t.Fatalf("converted %d tools, want 2", len(got))
	}

	first := got[0].(map[string]any)
	if first["type"] != "function" {
		t.Errorf("type = %v, want function", first["type"])
	}
	fn := first["function"].(map[string]any)
	if fn["name"] != "read_file" || fn["description"] != "Read a file" {
		t.Errorf("function = %v", fn)
	}

	// Built-in tool gets a synthetic description and a default schema.
	second := got[1].(map[string]any)
	fn2 := second["function"].(map[string]any)
	if fn2["description"] == "" {
		t.Error("built-in tool missing synthetic description")
	}
	wantSchema := map[string]any{"type": "object", "properties": map[string]any{}}
	if !reflect.DeepEqual(fn2["parameters"], wantSchema) {
		t.Errorf("parameters = %v, want default schema", fn2["parameters"])
	}
}

func TestToolsConvertEmpty(t *testing.T) {
	if got := ToolsConvert(nil); got != nil {
		t.Errorf("ToolsConvert(nil) = %v, want nil", got)
	}
}

func TestToolChoiceConvert(t *testing.T) {
	tests := []struct {
		name  string
		input models.ToolChoice
		want  any
	}{
		{"auto", models.ToolChoice{Kind: models.ToolChoiceAuto}, "auto"},
		{"any", models.ToolChoice{Kind: models.ToolChoiceAny}, "required"},
		{"none", models.ToolChoice{Kind: models.ToolChoiceNone}, "none"},
		{
			"specific tool",
			models.ToolChoice{Kind: models.ToolChoiceSpecific, Name: "calc"},
			map[string]any{"type": "function", "function": map[string]any{"name": "calc"}},
		},
		{"unknown kind", models.ToolChoice{Kind: "future"}, "auto"},
		{"zero value", models.ToolChoice{}, "auto"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToolChoiceConvert(tt.input); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ToolChoiceConvert(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

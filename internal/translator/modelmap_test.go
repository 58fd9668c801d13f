package translator

import "testing"

func TestMapModel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"table hit sonnet", "claude-sonnet-4-5-20250929", "claude-sonnet-4.5"},
		{"table hit opus", "claude-opus-4-6", "claude-opus-4.6"},
		{"table hit old haiku", "claude-3-haiku-20240307", "claude-haiku-4.5"},
		{"fuzzy sonnet 4-5", "claude-sonnet-4-5-experimental", "claude-sonnet-4.5"},
		{"fuzzy opus 4.6", "my-claude-opus-4.6-alias", "claude-opus-4.6"},
		{"fuzzy haiku default", "claude-haiku-next", "claude-haiku-4.5"},
		{"fuzzy sonnet default version", "some-sonnet-model", "claude-sonnet-4.5"},
		{"foreign model passthrough", "gpt-4o", "gpt-4o"},
		{"unknown passthrough", "o3-mini", "o3-mini"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapModel(tt.input); got != tt.want {
				t.Errorf("MapModel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

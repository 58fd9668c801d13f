package models

import (
	"encoding/json"
	"testing"
)

func TestSystemPromptUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"bare string", `"be terse"`, "be terse"},
		{"block list", `[{"type":"text","text":"one"},{"type":"text","text":"two"}]`, "one\ntwo"},
		{"non-text blocks skipped", `[{"type":"image"},{"type":"text","text":"kept"}]`, "kept"},
		{"unknown shape", `42`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s SystemPrompt
			if err := json.Unmarshal([]byte(tt.json), &s); err != nil {
				t.Fatal(err)
			}
			if got := s.Joined(); got != tt.want {
				t.Errorf("Joined() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessageContentUnmarshal(t *testing.T) {
	tests := []struct {
		name       string
		json       string
		wantText   string
		wantIsText bool
		wantBlocks int
	}{
		{"flat string", `"hello"`, "hello", true, 0},
		{"null", `null`, "", true, 0},
		{"block list", `[{"type":"text","text":"a"},{"type":"tool_use","id":"t1","name":"f"}]`, "", false, 2},
		{"scalar degrades to printed value", `7`, "7", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c MessageContent
			if err := json.Unmarshal([]byte(tt.json), &c); err != nil {
				t.Fatal(err)
			}
			if c.IsText != tt.wantIsText || c.Text != tt.wantText || len(c.Blocks) != tt.wantBlocks {
				t.Errorf("content = %+v, want text %q isText %v blocks %d",
					c, tt.wantText, tt.wantIsText, tt.wantBlocks)
			}
		})
	}
}

func TestBlockUnmarshal(t *testing.T) {
	var block Block
	err := json.Unmarshal([]byte(`{
		"type": "tool_use", "id": "toolu_1", "name": "calc", "input": {"x": 1}
	}`), &block)
	if err != nil {
		t.Fatal(err)
	}
	if block.Type != BlockToolUse || block.ID != "toolu_1" || block.Name != "calc" {
		t.Errorf("block = %+v", block)
	}
	if string(block.Input) != `{"x": 1}` {
		t.Errorf("raw input = %s", block.Input)
	}

	// A bare string inside a content list parses as a text block.
	if err := json.Unmarshal([]byte(`"just text"`), &block); err != nil {
		t.Fatal(err)
	}
	if block.Type != BlockText || block.Text != "just text" {
		t.Errorf("string shorthand = %+v", block)
	}
}

func TestToolChoiceUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		wantKind ToolChoiceKind
		wantName string
	}{
		{"string auto", `"auto"`, ToolChoiceAuto, ""},
		{"string any", `"any"`, ToolChoiceAny, ""},
		{"object none", `{"type":"none"}`, ToolChoiceNone, ""},
		{"object tool", `{"type":"tool","name":"calc"}`, ToolChoiceSpecific, "calc"},
		{"unknown kind preserved", `{"type":"future"}`, ToolChoiceKind("future"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tc ToolChoice
			if err := json.Unmarshal([]byte(tt.json), &tc); err != nil {
				t.Fatal(err)
			}
			if tc.Kind != tt.wantKind || tc.Name != tt.wantName {
				t.Errorf("tool choice = %+v, want %s/%s", tc, tt.wantKind, tt.wantName)
			}
		})
	}
}

func TestMessagesRequestUnmarshal(t *testing.T) {
	var req MessagesRequest
	err := json.Unmarshal([]byte(`{
		"model": "claude-sonnet-4-5-20250929",
		"max_tokens": 100,
		"stream": true,
		"system": "sys",
		"stop_sequences": ["###"],
		"tools": [{"name": "calc", "input_schema": {"type": "object"}}],
		"tool_choice": {"type": "any"},
		"messages": [
			{"role": "user", "content": "hi"},
			{"role": "assistant", "content": [{"type": "text", "text": "hello"}]}
		]
	}`), &req)
	if err != nil {
		t.Fatal(err)
	}

	if req.Model != "claude-sonnet-4-5-20250929" {
		t.Errorf("model = %q", req.Model)
	}
	if req.MaxTokens == nil || *req.MaxTokens != 100 {
		t.Errorf("max_tokens = %v", req.MaxTokens)
	}
	if !req.IsStream() {
		t.Error("IsStream() = false, want true")
	}
	if req.System.Joined() != "sys" {
		t.Errorf("system = %q", req.System.Joined())
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != "calc" {
		t.Errorf("tools = %+v", req.Tools)
	}
	if req.ToolChoice == nil || req.ToolChoice.Kind != ToolChoiceAny {
		t.Errorf("tool_choice = %+v", req.ToolChoice)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != RoleUser || !req.Messages[0].Content.IsText {
		t.Errorf("messages = %+v", req.Messages)
	}
	if req.Messages[1].Content.IsText || len(req.Messages[1].Content.Blocks) != 1 {
		t.Errorf("messages[1] content = %+v", req.Messages[1].Content)
	}

	// Absent knobs stay nil.
	var minimal MessagesRequest
	if err := json.Unmarshal([]byte(`{"model":"m","messages":[]}`), &minimal); err != nil {
		t.Fatal(err)
	}
	if minimal.Temperature != nil || minimal.Stream != nil || minimal.IsStream() {
		t.Errorf("minimal = %+v", minimal)
	}
}

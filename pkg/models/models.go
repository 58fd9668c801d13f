// Package models holds the wire-level types shared between the credential
// manager, the upstream client, and the protocol translator. Nothing in this
// package talks to the network or the filesystem; it is pure data.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Credentials is the two-layer token record the Credential Manager owns.
//
// GrantToken is long-lived and never leaves the process in a log line or an
// HTTP response. CopilotBearer is short-lived and minted from GrantToken.
// ExpiresAt is seconds since epoch; zero means unknown/expired. BaseURL is
// the dynamic upstream base discovered from the token-mint response; empty
// means "use the compiled-in fallback".
type Credentials struct {
	GrantToken    string `json:"github_token"`
	CopilotBearer string `json:"copilot_token"`
	ExpiresAt     int64  `json:"expires_at"`
	BaseURL       string `json:"api_base_url"`
}

// ModelListEntry is an opaque upstream model descriptor. Only ID is
// guaranteed to be present.
type ModelListEntry struct {
	ID                 string `json:"id"`
	Name               string `json:"name,omitempty"`
	Vendor             string `json:"vendor,omitempty"`
	ModelPickerEnabled *bool  `json:"model_picker_enabled,omitempty"`
}

// PickerEnabled reports whether the entry should survive the
// model_picker_enabled filter (default true when absent).
func (m ModelListEntry) PickerEnabled() bool {
	return m.ModelPickerEnabled == nil || *m.ModelPickerEnabled
}

// MessagesRequest is the parsed Anthropic /v1/messages request body. Scalar
// knobs are pointers so that absent and zero stay distinguishable when the
// request is re-emitted in the OpenAI dialect.
type MessagesRequest struct {
	Model         string           `json:"model"`
	System        SystemPrompt     `json:"system,omitempty"`
	Messages      []Message        `json:"messages"`
	MaxTokens     *int             `json:"max_tokens,omitempty"`
	Temperature   *float64         `json:"temperature,omitempty"`
	TopP          *float64         `json:"top_p,omitempty"`
	Stream        *bool            `json:"stream,omitempty"`
	StopSequences []string         `json:"stop_sequences,omitempty"`
	Tools         []ToolDefinition `json:"tools,omitempty"`
	ToolChoice    *ToolChoice      `json:"tool_choice,omitempty"`
}

// IsStream reports whether the request asked for a streamed response.
func (r MessagesRequest) IsStream() bool {
	return r.Stream != nil && *r.Stream
}

// SystemPrompt accepts either a bare string or a list of text blocks on the
// wire.
type SystemPrompt struct {
	Text   string
	Blocks []Block
}

func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		s.Text = str
		return nil
	}
	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err == nil {
		s.Blocks = blocks
	}
	// Unknown shapes degrade to an empty prompt rather than failing the
	// whole request.
	return nil
}

// Joined flattens the prompt to one string, text blocks joined with
// newlines.
func (s SystemPrompt) Joined() string {
	if s.Text != "" {
		return s.Text
	}
	var parts []string
	for _, b := range s.Blocks {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Role is a conversation turn's role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one conversation turn.
type Message struct {
	Role    Role           `json:"role"`
	Content MessageContent `json:"content"`
}

// MessageContent is the string-or-block-list content union. IsText marks
// the flat-string form (including null and other scalar shapes, which
// degrade to their printed value).
type MessageContent struct {
	Text   string
	IsText bool
	Blocks []Block
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		c.IsText = true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text, c.IsText = s, true
		return nil
	}
	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err == nil {
		c.Blocks = blocks
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err == nil {
		c.Text, c.IsText = fmt.Sprint(v), true
	}
	return nil
}

// BlockType tags the kind of content block carried by a Block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// Block is a tagged union over Anthropic-dialect content block kinds. Only
// the fields relevant to its Type are populated. Input and Content stay raw
// JSON: tool inputs are arbitrary-shaped by contract and tool results are a
// string-or-blocks-or-anything union resolved at conversion time.
type Block struct {
	Type BlockType `json:"type"`

	// Text block.
	Text string `json:"text,omitempty"`

	// Image block.
	Source *ImageSource `json:"source,omitempty"`

	// ToolUse block (assistant-only).
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// ToolResult block (user-only).
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

func (b *Block) UnmarshalJSON(data []byte) error {
	// A bare string inside a content list is shorthand for a text block.
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		b.Type = BlockText
		b.Text = s
		return nil
	}
	type alias Block
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*b = Block(a)
	return nil
}

// ImageSource is either a base64 payload or a remote URL.
type ImageSource struct {
	Type      string `json:"type"` // "base64" or "url"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// ToolDefinition is {name, description, JSON-schema parameters}.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// ToolChoiceKind enumerates the tool_choice shapes.
type ToolChoiceKind string

const (
	ToolChoiceAuto     ToolChoiceKind = "auto"
	ToolChoiceAny      ToolChoiceKind = "any"
	ToolChoiceNone     ToolChoiceKind = "none"
	ToolChoiceSpecific ToolChoiceKind = "tool"
)

// ToolChoice is the parsed Anthropic tool_choice payload, accepting both
// the bare-string and object wire forms. Unknown kinds are preserved
// verbatim and degrade to auto at conversion time.
type ToolChoice struct {
	Kind ToolChoiceKind
	Name string // only set when Kind == ToolChoiceSpecific
}

func (tc *ToolChoice) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		tc.Kind = ToolChoiceKind(s)
		return nil
	}
	var obj struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		tc.Kind = ToolChoiceKind(obj.Type)
		tc.Name = obj.Name
	}
	return nil
}

// FinishReason is the Anthropic-dialect stop reason the translator emits.
// The upstream's OpenAI dialect never signals a stop-sequence hit
// distinctly, so only these three are ever produced.
type FinishReason string

const (
	FinishEndTurn   FinishReason = "end_turn"
	FinishMaxTokens FinishReason = "max_tokens"
	FinishToolUse   FinishReason = "tool_use"
)

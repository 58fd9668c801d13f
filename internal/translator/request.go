// Package translator maps Anthropic Messages bodies, responses, and SSE
// streams to and from the OpenAI Chat Completions dialect, tool-calling and
// multi-modal content included. Inbound Anthropic payloads are parsed into
// the tagged unions in pkg/models; the OpenAI side is built as plain JSON
// maps. Every transform is a pure function; the streaming one is a lazy
// adapter.
package translator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"copilotx-proxy/pkg/models"
)

// AnthropicToOpenAIRequest converts a parsed Anthropic /v1/messages request
// to an OpenAI /chat/completions request body.
func AnthropicToOpenAIRequest(req models.MessagesRequest) map[string]any {
	var messages []map[string]any

	if system := req.System.Joined(); system != "" {
		messages = append(messages, map[string]any{"role": string(models.RoleSystem), "content": system})
	}
	for _, msg := range req.Messages {
		messages = append(messages, convertMessage(msg)...)
	}

	out := map[string]any{
		"model":    MapModel(req.Model),
		"messages": messagesToAny(messages),
	}

	if req.MaxTokens != nil {
		out["max_tokens"] = *req.MaxTokens
	}
	if req.Temperature != nil {
		out["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		out["top_p"] = *req.TopP
	}
	if req.Stream != nil {
		out["stream"] = *req.Stream
	}
	if len(req.StopSequences) > 0 {
		out["stop"] = req.StopSequences
	}
	if converted := ToolsConvert(req.Tools); converted != nil {
		out["tools"] = converted
	}
	if req.ToolChoice != nil {
		out["tool_choice"] = ToolChoiceConvert(*req.ToolChoice)
	}

	return out
}

func messagesToAny(msgs []map[string]any) []any {
	out := make([]any, len(msgs))
	for i, m := range msgs {
		out[i] = m
	}
	return out
}

func convertMessage(msg models.Message) []map[string]any {
	if msg.Content.IsText {
		return []map[string]any{{"role": string(msg.Role), "content": msg.Content.Text}}
	}
	return convertBlockList(msg.Role, msg.Content.Blocks)
}

// convertBlockList walks a content-block list once, classifying into
// text/image parts, tool_use blocks (assistant-only), and tool_result
// blocks (user-only), then emits the appropriate OpenAI message(s).
func convertBlockList(role models.Role, blocks []models.Block) []map[string]any {
	var parts []any // OpenAI content parts (text/image_url)
	var toolUses []models.Block
	var toolResults []models.Block

	for _, block := range blocks {
		switch block.Type {
		case models.BlockText:
			parts = append(parts, map[string]any{"type": "text", "text": block.Text})
		case models.BlockImage:
			parts = append(parts, convertImageBlock(block.Source))
		case models.BlockToolUse:
			toolUses = append(toolUses, block)
		case models.BlockToolResult:
			toolResults = append(toolResults, block)
		}
	}

	if role == models.RoleAssistant && len(toolUses) > 0 {
		return []map[string]any{assistantToolUseMessage(parts, toolUses)}
	}
	if role == models.RoleUser && len(toolResults) > 0 {
		return userToolResultMessages(parts, toolResults)
	}

	return []map[string]any{{"role": string(role), "content": flattenParts(parts)}}
}

func assistantToolUseMessage(parts []any, toolUses []models.Block) map[string]any {
	text := joinText(parts)
	var content any
	if text != "" {
		content = text
	}

	toolCalls := make([]any, 0, len(toolUses))
	for _, tu := range toolUses {
		id := tu.ID
		if id == "" {
			id = "toolu_" + uuid.NewString()
		}
		toolCalls = append(toolCalls, map[string]any{
			"id":   id,
			"type": "function",
			"function": map[string]any{
				"name":      tu.Name,
				"arguments": encodeToolInput(tu.Input),
			},
		})
	}

	return map[string]any{"role": string(models.RoleAssistant), "content": content, "tool_calls": toolCalls}
}

// encodeToolInput compacts a tool_use input to its canonical JSON encoding,
// defaulting to an empty object.
func encodeToolInput(input json.RawMessage) string {
	if len(input) == 0 || string(bytes.TrimSpace(input)) == "null" {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, input); err != nil {
		return "{}"
	}
	return buf.String()
}

func userToolResultMessages(parts []any, toolResults []models.Block) []map[string]any {
	var out []map[string]any
	if len(parts) > 0 {
		out = append(out, map[string]any{"role": string(models.RoleUser), "content": flattenParts(parts)})
	}
	for _, tr := range toolResults {
		content := stringifyToolResultContent(tr.Content)
		if tr.IsError {
			content = "[ERROR] " + content
		}
		out = append(out, map[string]any{
			"role":         string(models.RoleTool),
			"tool_call_id": tr.ToolUseID,
			"content":      content,
		})
	}
	return out
}

// stringifyToolResultContent resolves a tool_result's string-or-blocks-or-
// anything content union to the flat string the OpenAI tool message carries.
func stringifyToolResultContent(raw json.RawMessage) string {
	if len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []models.Block
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Type == models.BlockText && b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	// Arbitrary value: re-encode compactly.
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		if encoded, err := json.Marshal(v); err == nil {
			return string(encoded)
		}
	}
	return string(raw)
}

// convertImageBlock converts an image block's source to OpenAI's image_url
// content part.
func convertImageBlock(source *models.ImageSource) map[string]any {
	mediaType := "image/png"
	var sourceType, data, sourceURL string
	if source != nil {
		if source.MediaType != "" {
			mediaType = source.MediaType
		}
		sourceType, data, sourceURL = source.Type, source.Data, source.URL
	}

	var url string
	switch sourceType {
	case "url":
		url = sourceURL
	default: // "base64" or unspecified
		url = fmt.Sprintf("data:%s;base64,%s", mediaType, data)
	}
	return map[string]any{"type": "image_url", "image_url": map[string]any{"url": url}}
}

func flattenParts(parts []any) any {
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		if p, ok := parts[0].(map[string]any); ok {
			if t, _ := p["type"].(string); t == "text" {
				if txt, ok := p["text"].(string); ok {
					return txt
				}
			}
		}
	}
	return parts
}

func joinText(parts []any) string {
	var texts []string
	for _, raw := range parts {
		p, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := p["type"].(string); t == "text" {
			if txt, ok := p["text"].(string); ok {
				texts = append(texts, txt)
			}
		}
	}
	return strings.Join(texts, "\n")
}

package translator

import (
	"encoding/json"

	"github.com/google/uuid"

	"copilotx-proxy/pkg/models"
)

// OpenAIToAnthropicResponse converts a non-streaming OpenAI chat-completion
// response to Anthropic /v1/messages shape. The upstream may split text and
// tool_calls across separate choices; every choices[i].message is merged,
// with all text blocks (in encounter order) preceding all tool_use blocks.
func OpenAIToAnthropicResponse(openaiResp map[string]any, model string) map[string]any {
	choices, _ := openaiResp["choices"].([]any)

	var textBlocks []map[string]any
	var toolBlocks []map[string]any
	finishReason := ""

	for _, raw := range choices {
		choice, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if fr, _ := choice["finish_reason"].(string); fr != "" {
			finishReason = fr
		}
		message, _ := choice["message"].(map[string]any)
		if message == nil {
			continue
		}
		if text, ok := message["content"].(string); ok && text != "" {
			textBlocks = append(textBlocks, map[string]any{"type": "text", "text": text})
		}
		if toolCalls, ok := message["tool_calls"].([]any); ok {
			for _, rawCall := range toolCalls {
				call, ok := rawCall.(map[string]any)
				if !ok {
					continue
				}
				id, _ := call["id"].(string)
				fn, _ := call["function"].(map[string]any)
				name, _ := fn["name"].(string)
				argsStr, _ := fn["arguments"].(string)
				var input map[string]any
				if err := json.Unmarshal([]byte(argsStr), &input); err != nil {
					input = map[string]any{}
				}
				toolBlocks = append(toolBlocks, map[string]any{"type": "tool_use", "id": id, "name": name, "input": input})
			}
		}
	}

	content := append(textBlocks, toolBlocks...)
	if len(content) == 0 {
		content = []map[string]any{{"type": "text", "text": ""}}
	}

	usage, _ := openaiResp["usage"].(map[string]any)
	inputTokens, outputTokens := 0.0, 0.0
	if usage != nil {
		if v, ok := usage["prompt_tokens"].(float64); ok {
			inputTokens = v
		}
		if v, ok := usage["completion_tokens"].(float64); ok {
			outputTokens = v
		}
	}

	return map[string]any{
		"id":            "msg_" + uuid.NewString(),
		"type":          "message",
		"role":          "assistant",
		"model":         model,
		"content":       contentToAny(content),
		"stop_reason":   mapFinishReason(finishReason),
		"stop_sequence": nil,
		"usage": map[string]any{
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
		},
	}
}

func contentToAny(blocks []map[string]any) []any {
	out := make([]any, len(blocks))
	for i, b := range blocks {
		out[i] = b
	}
	return out
}

// mapFinishReason translates an OpenAI finish_reason to an Anthropic
// stop_reason.
func mapFinishReason(reason string) models.FinishReason {
	switch reason {
	case "length":
		return models.FinishMaxTokens
	case "tool_calls":
		return models.FinishToolUse
	default: // stop, content_filter, anything else
		return models.FinishEndTurn
	}
}

package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"copilotx-proxy/internal/responses"
	"copilotx-proxy/internal/translator"
	"copilotx-proxy/internal/upstream"
	"copilotx-proxy/pkg/models"
)

// streamSSE pipes SSE lines to the client with a flush per line, so deltas
// reach the caller as they arrive.
func streamSSE(w http.ResponseWriter, lines <-chan []byte) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)
	for line := range lines {
		w.Write(line)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// handleChatCompletions serves POST /v1/chat/completions: a pass-through,
// since the upstream natively speaks this dialect.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeOpenAIError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeOpenAIError(w, http.StatusBadRequest, "error reading request body", "invalid_request_error")
		return
	}
	isStream := gjson.GetBytes(body, "stream").Bool()

	resp, err := s.upstream.ChatCompletions(r.Context(), body)
	if err != nil {
		s.writeError(w, err, false)
		return
	}

	if isStream {
		streamSSE(w, upstream.SSELines(r.Context(), resp))
		return
	}
	defer resp.Body.Close()
	w.Header().Set("Content-Type", "application/json")
	io.Copy(w, resp.Body)
}

// handleMessages serves POST /v1/messages: Anthropic dialect translated in
// both directions.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAnthropicError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
		return
	}
	var req models.MessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAnthropicError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request_error")
		return
	}
	model := req.Model
	isStream := req.IsStream()

	s.log.Info().
		Str("model", model).
		Bool("stream", isStream).
		Msg("anthropic request")

	openaiReq := translator.AnthropicToOpenAIRequest(req)
	payload, err := json.Marshal(openaiReq)
	if err != nil {
		writeAnthropicError(w, http.StatusInternalServerError, err.Error(), "api_error")
		return
	}

	resp, err := s.upstream.ChatCompletions(r.Context(), payload)
	if err != nil {
		s.writeError(w, err, true)
		return
	}

	if isStream {
		lines := upstream.SSELines(r.Context(), resp)
		streamSSE(w, translator.OpenAIStreamToAnthropic(r.Context(), lines, model))
		return
	}

	defer resp.Body.Close()
	var openaiResp map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&openaiResp); err != nil {
		writeAnthropicError(w, http.StatusBadGateway, "invalid upstream response: "+err.Error(), "upstream_error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(translator.OpenAIToAnthropicResponse(openaiResp, model))
}

// handleResponses serves POST /v1/responses: body pre-processing, upstream
// call, and the id-synchronizing stream rewriter.
func (s *Server) handleResponses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeOpenAIError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeOpenAIError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request_error")
		return
	}

	delete(body, "service_tier")
	vision := hasVisionInput(body)
	initiator := "user"
	if hasAgentInitiator(body) {
		initiator = "agent"
	}
	patchApplyPatchTool(body)
	isStream, _ := body["stream"].(bool)

	payload, err := json.Marshal(body)
	if err != nil {
		writeOpenAIError(w, http.StatusInternalServerError, err.Error(), "api_error")
		return
	}

	resp, err := s.upstream.Responses(r.Context(), payload, vision, initiator)
	if err != nil {
		s.writeError(w, err, false)
		return
	}

	if isStream {
		lines := upstream.SSELines(r.Context(), resp)
		streamSSE(w, responses.Rewrite(r.Context(), lines))
		return
	}
	defer resp.Body.Close()
	w.Header().Set("Content-Type", "application/json")
	io.Copy(w, resp.Body)
}

// hasVisionInput reports whether any input item's content contains an image
// part, which requires the copilot-vision-request header upstream.
func hasVisionInput(body map[string]any) bool {
	input, _ := body["input"].([]any)
	for _, rawItem := range input {
		item, ok := rawItem.(map[string]any)
		if !ok {
			continue
		}
		content, ok := item["content"].([]any)
		if !ok {
			continue
		}
		for _, rawPart := range content {
			part, ok := rawPart.(map[string]any)
			if !ok {
				continue
			}
			switch t, _ := part["type"].(string); t {
			case "input_image", "image", "image_url":
				return true
			}
		}
	}
	return false
}

// hasAgentInitiator reports whether the last input item marks the turn as
// agent-initiated rather than a human turn.
func hasAgentInitiator(body map[string]any) bool {
	input, _ := body["input"].([]any)
	if len(input) == 0 {
		return false
	}
	last, ok := input[len(input)-1].(map[string]any)
	if !ok {
		return false
	}
	if role, _ := last["role"].(string); role == "assistant" {
		return true
	}
	switch t, _ := last["type"].(string); t {
	case "function_call", "function_call_output", "reasoning":
		return true
	}
	return false
}

// patchApplyPatchTool rewrites a custom-type apply_patch tool declaration to
// the function form the upstream accepts, in place.
func patchApplyPatchTool(body map[string]any) {
	tools, _ := body["tools"].([]any)
	for _, rawTool := range tools {
		tool, ok := rawTool.(map[string]any)
		if !ok {
			continue
		}
		toolType, _ := tool["type"].(string)
		name, _ := tool["name"].(string)
		if toolType != "custom" || name != "apply_patch" {
			continue
		}
		tool["type"] = "function"
		tool["description"] = "Use the `apply_patch` tool to edit files"
		tool["parameters"] = map[string]any{
			"type": "object",
			"properties": map[string]any{
				"input": map[string]any{
					"type":        "string",
					"description": "The entire contents of the apply_patch command",
				},
			},
			"required": []any{"input"},
		}
		tool["strict"] = false
	}
}

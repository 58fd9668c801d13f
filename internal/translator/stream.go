package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"copilotx-proxy/pkg/models"
)

// toolTracker carries the per-tool-call state the streaming translator needs:
// the Anthropic block index allocated for this OpenAI tool_calls index, plus
// the id/name resolved so far (late fragments may fill them in).
type toolTracker struct {
	blockIndex int
	id         string
	name       string
}

// streamState is the mutable per-stream state of the OpenAI→Anthropic SSE
// translation.
type streamState struct {
	msgID            string
	model            string
	sentMessageStart bool
	textBlockIndex   int // -1 until a text block is opened
	trackers         map[int]*toolTracker
	trackerOrder     []int // OpenAI tool indices in allocation order
	nextBlockIndex   int
	finishReason     string
	outputTokens     int
}

// OpenAIStreamToAnthropic adapts a stream of OpenAI chat-completion SSE
// lines into Anthropic Messages SSE events. Lazy: it holds only the
// tool-call trackers, never the stream. The input channel ending (or a
// data: [DONE] line) is the termination condition; ctx cancellation stops
// emission immediately.
//
// Block indices are dense and assigned in emission order: the text block, if
// any, gets the next free index at the moment text first arrives, and each
// distinct tool_calls index gets the next free block index when first seen.
// All opened blocks are closed after the input is exhausted, text first,
// then tool blocks in allocation order.
func OpenAIStreamToAnthropic(ctx context.Context, lines <-chan []byte, model string) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)

		st := &streamState{
			msgID:          "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24],
			model:          model,
			textBlockIndex: -1,
			trackers:       map[int]*toolTracker{},
		}

		emit := func(event []byte) bool {
			select {
			case out <- event:
				return true
			case <-ctx.Done():
				return false
			}
		}

	loop:
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-lines:
				if !ok {
					break loop
				}
				data, isData := dataPayload(line)
				if !isData {
					continue
				}
				if data == "[DONE]" {
					break loop
				}
				var chunk map[string]any
				if err := json.Unmarshal([]byte(data), &chunk); err != nil {
					continue
				}
				for _, event := range st.consume(chunk) {
					if !emit(event) {
						return
					}
				}
			}
		}

		for _, event := range st.finish() {
			if !emit(event) {
				return
			}
		}
	}()
	return out
}

// dataPayload strips the "data: " prefix from an SSE line, reporting whether
// the line was a data line at all.
func dataPayload(line []byte) (string, bool) {
	s := strings.TrimRight(string(line), "\r\n")
	if !strings.HasPrefix(s, "data: ") {
		return "", false
	}
	return s[len("data: "):], true
}

// consume translates one decoded OpenAI chunk into zero or more Anthropic
// SSE events.
func (st *streamState) consume(chunk map[string]any) [][]byte {
	var events [][]byte

	if !st.sentMessageStart {
		st.sentMessageStart = true
		events = append(events, sseEvent("message_start", map[string]any{
			"type": "message_start",
			"message": map[string]any{
				"id":            st.msgID,
				"type":          "message",
				"role":          "assistant",
				"model":         st.model,
				"content":       []any{},
				"stop_reason":   nil,
				"stop_sequence": nil,
				"usage":         map[string]any{"input_tokens": 0, "output_tokens": 0},
			},
		}))
	}

	choices, _ := chunk["choices"].([]any)
	for _, rawChoice := range choices {
		choice, ok := rawChoice.(map[string]any)
		if !ok {
			continue
		}
		if delta, ok := choice["delta"].(map[string]any); ok {
			events = append(events, st.consumeDelta(delta)...)
		}
		if fr, _ := choice["finish_reason"].(string); fr != "" {
			st.finishReason = fr
		}
	}

	if usage, ok := chunk["usage"].(map[string]any); ok {
		if v, ok := usage["completion_tokens"].(float64); ok {
			st.outputTokens = int(v)
		}
	}

	return events
}

func (st *streamState) consumeDelta(delta map[string]any) [][]byte {
	var events [][]byte

	if content, _ := delta["content"].(string); content != "" {
		if st.textBlockIndex < 0 {
			st.textBlockIndex = st.nextBlockIndex
			st.nextBlockIndex++
			events = append(events, sseEvent("content_block_start", map[string]any{
				"type":          "content_block_start",
				"index":         st.textBlockIndex,
				"content_block": map[string]any{"type": "text", "text": ""},
			}))
		}
		events = append(events, sseEvent("content_block_delta", map[string]any{
			"type":  "content_block_delta",
			"index": st.textBlockIndex,
			"delta": map[string]any{"type": "text_delta", "text": content},
		}))
	}

	toolCalls, _ := delta["tool_calls"].([]any)
	for _, rawCall := range toolCalls {
		call, ok := rawCall.(map[string]any)
		if !ok {
			continue
		}
		idx := 0
		if v, ok := call["index"].(float64); ok {
			idx = int(v)
		}
		fn, _ := call["function"].(map[string]any)
		id, _ := call["id"].(string)
		name, _ := fn["name"].(string)

		tracker, seen := st.trackers[idx]
		if !seen {
			if id == "" {
				id = "toolu_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
			}
			tracker = &toolTracker{blockIndex: st.nextBlockIndex, id: id, name: name}
			st.nextBlockIndex++
			st.trackers[idx] = tracker
			st.trackerOrder = append(st.trackerOrder, idx)
			events = append(events, sseEvent("content_block_start", map[string]any{
				"type":  "content_block_start",
				"index": tracker.blockIndex,
				"content_block": map[string]any{
					"type":  "tool_use",
					"id":    tracker.id,
					"name":  tracker.name,
					"input": map[string]any{},
				},
			}))
		} else {
			// Late id/name fragments update the tracker without
			// re-emitting a start.
			if id != "" {
				tracker.id = id
			}
			if name != "" {
				tracker.name = name
			}
		}

		if args, _ := fn["arguments"].(string); args != "" {
			events = append(events, sseEvent("content_block_delta", map[string]any{
				"type":  "content_block_delta",
				"index": tracker.blockIndex,
				"delta": map[string]any{"type": "input_json_delta", "partial_json": args},
			}))
		}
	}

	return events
}

// finish closes every opened block and emits the terminal message_delta /
// message_stop pair.
func (st *streamState) finish() [][]byte {
	var events [][]byte

	if st.textBlockIndex >= 0 {
		events = append(events, sseEvent("content_block_stop", map[string]any{
			"type":  "content_block_stop",
			"index": st.textBlockIndex,
		}))
	}
	for _, idx := range st.trackerOrder {
		events = append(events, sseEvent("content_block_stop", map[string]any{
			"type":  "content_block_stop",
			"index": st.trackers[idx].blockIndex,
		}))
	}

	stopReason := models.FinishEndTurn
	switch st.finishReason {
	case "tool_calls":
		stopReason = models.FinishToolUse
	case "length":
		stopReason = models.FinishMaxTokens
	}
	events = append(events, sseEvent("message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": stopReason, "stop_sequence": nil},
		"usage": map[string]any{"output_tokens": st.outputTokens},
	}))
	events = append(events, sseEvent("message_stop", map[string]any{"type": "message_stop"}))

	return events
}

// sseEvent formats one Anthropic SSE event frame.
func sseEvent(eventType string, data map[string]any) []byte {
	encoded, err := json.Marshal(data)
	if err != nil {
		encoded = []byte("{}")
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, encoded))
}

// Package responses implements the Responses-API stream rewriter.
//
// GitHub Copilot's Responses endpoint emits different item ids for the same
// output item in response.output_item.added versus response.output_item.done
// events, which breaks strict clients (the Vercel AI SDK among them). The
// rewriter assigns a stable id per output_index at the added event and
// patches every later event carrying that output_index to agree with it.
package responses

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// eventTypes is the known enumeration used to classify payloads with a fast
// substring probe before any field extraction.
var eventTypes = []string{
	"response.output_item.added",
	"response.output_item.done",
	"response.output_text.delta",
	"response.output_text.done",
	"response.function_call_arguments.delta",
	"response.function_call_arguments.done",
	"response.reasoning_summary_text.delta",
	"response.reasoning_summary_text.done",
	"response.created",
	"response.completed",
	"response.incomplete",
	"response.failed",
	"error",
}

// eventType probes data for a known event type without decoding the payload.
func eventType(data string) string {
	for _, et := range eventTypes {
		if strings.Contains(data, `"type":"`+et+`"`) {
			return et
		}
	}
	return ""
}

// IDTracker maps output_index to the stable item id chosen at the added
// event. Single-stream scope; one tracker per stream, discarded with it.
type IDTracker struct {
	ids     map[int64]string
	counter int
	now     func() time.Time
}

// NewIDTracker returns an empty tracker.
func NewIDTracker() *IDTracker {
	return &IDTracker{ids: map[int64]string{}, now: time.Now}
}

func (t *IDTracker) mintID(outputIndex int64) string {
	t.counter++
	return fmt.Sprintf("oi_%d_%x%04x", outputIndex, t.now().UnixMicro(), t.counter)
}

// FixData rewrites one SSE data payload (without the "data: " prefix).
// Unparsable payloads and payloads without an output_index pass through
// untouched.
func (t *IDTracker) FixData(data []byte) []byte {
	if !gjson.ValidBytes(data) {
		return data
	}
	outputIndex := gjson.GetBytes(data, "output_index")
	if !outputIndex.Exists() {
		return data
	}
	idx := outputIndex.Int()

	switch eventType(string(data)) {
	case "response.output_item.added":
		id := gjson.GetBytes(data, "item.id").String()
		if id == "" {
			id = t.mintID(idx)
			if patched, err := sjson.SetBytes(data, "item.id", id); err == nil {
				data = patched
			}
		}
		t.ids[idx] = id
		return data
	case "response.output_item.done":
		if id, ok := t.ids[idx]; ok {
			if patched, err := sjson.SetBytes(data, "item.id", id); err == nil {
				data = patched
			}
		}
		return data
	default:
		if id, ok := t.ids[idx]; ok {
			if patched, err := sjson.SetBytes(data, "item_id", id); err == nil {
				data = patched
			}
		}
		return data
	}
}

// Rewrite wraps a raw SSE line stream with id synchronization. Non-data
// lines and the [DONE] marker pass through verbatim; events are emitted in
// strict arrival order. A final blank line is emitted on normal termination.
func Rewrite(ctx context.Context, lines <-chan []byte) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		tracker := NewIDTracker()

		emit := func(line []byte) bool {
			select {
			case out <- line:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-lines:
				if !ok {
					emit([]byte("\n"))
					return
				}
				line := strings.TrimRight(string(raw), "\n")
				if line == "" {
					if !emit([]byte("\n")) {
						return
					}
					continue
				}
				if !strings.HasPrefix(line, "data: ") {
					if !emit([]byte(line + "\n")) {
						return
					}
					continue
				}
				data := line[len("data: "):]
				if data == "[DONE]" {
					if !emit([]byte(line + "\n")) {
						return
					}
					continue
				}
				fixed := tracker.FixData([]byte(data))
				if !emit([]byte("data: " + string(fixed) + "\n")) {
					return
				}
			}
		}
	}()
	return out
}

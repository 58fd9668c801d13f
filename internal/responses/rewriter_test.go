package responses

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

// runRewrite feeds lines through Rewrite and returns the emitted lines
// (trailing newlines stripped, final blank terminator dropped).
func runRewrite(t *testing.T, lines []string) []string {
	t.Helper()
	in := make(chan []byte)
	go func() {
		defer close(in)
		for _, line := range lines {
			in <- []byte(line + "\n")
		}
	}()

	var out []string
	for line := range Rewrite(context.Background(), in) {
		out = append(out, strings.TrimRight(string(line), "\n"))
	}
	if len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func TestRewriteMintsAndPropagatesID(t *testing.T) {
	out := runRewrite(t, []string{
		`data: {"type":"response.output_item.added","output_index":0,"item":{"type":"message"}}`,
		`data: {"type":"response.output_text.delta","output_index":0,"delta":"hi"}`,
		`data: {"type":"response.output_item.done","output_index":0,"item":{"id":"upstream-different","type":"message"}}`,
	})
	if len(out) != 3 {
		t.Fatalf("emitted %d lines, want 3", len(out))
	}

	added := strings.TrimPrefix(out[0], "data: ")
	minted := gjson.Get(added, "item.id").String()
	if !strings.HasPrefix(minted, "oi_0_") {
		t.Fatalf("minted id = %q, want oi_0_ prefix", minted)
	}

	delta := strings.TrimPrefix(out[1], "data: ")
	if got := gjson.Get(delta, "item_id").String(); got != minted {
		t.Errorf("delta item_id = %q, want %q", got, minted)
	}

	done := strings.TrimPrefix(out[2], "data: ")
	if got := gjson.Get(done, "item.id").String(); got != minted {
		t.Errorf("done item.id = %q, want %q", got, minted)
	}
}

func TestRewriteKeepsUpstreamID(t *testing.T) {
	out := runRewrite(t, []string{
		`data: {"type":"response.output_item.added","output_index":0,"item":{"id":"item_abc","type":"message"}}`,
		`data: {"type":"response.function_call_arguments.delta","output_index":0,"item_id":"wrong","delta":"{"}`,
		`data: {"type":"response.output_item.done","output_index":0,"item":{"id":"item_xyz","type":"message"}}`,
	})

	added := strings.TrimPrefix(out[0], "data: ")
	if got := gjson.Get(added, "item.id").String(); got != "item_abc" {
		t.Errorf("added item.id = %q, want item_abc", got)
	}
	delta := strings.TrimPrefix(out[1], "data: ")
	if got := gjson.Get(delta, "item_id").String(); got != "item_abc" {
		t.Errorf("delta item_id = %q, want item_abc", got)
	}
	done := strings.TrimPrefix(out[2], "data: ")
	if got := gjson.Get(done, "item.id").String(); got != "item_abc" {
		t.Errorf("done item.id = %q, want item_abc", got)
	}
}

func TestRewriteIndependentOutputIndices(t *testing.T) {
	out := runRewrite(t, []string{
		`data: {"type":"response.output_item.added","output_index":0,"item":{}}`,
		`data: {"type":"response.output_item.added","output_index":1,"item":{}}`,
	})

	id0 := gjson.Get(strings.TrimPrefix(out[0], "data: "), "item.id").String()
	id1 := gjson.Get(strings.TrimPrefix(out[1], "data: "), "item.id").String()
	if id0 == id1 {
		t.Errorf("indices 0 and 1 got the same id %q", id0)
	}
	if !strings.HasPrefix(id1, "oi_1_") {
		t.Errorf("id for index 1 = %q, want oi_1_ prefix", id1)
	}
}

func TestRewritePassthrough(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"non-data line", `event: response.output_text.delta`},
		{"done marker", `data: [DONE]`},
		{"invalid json", `data: {broken`},
		{"no output_index", `data: {"type":"response.created","response":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := runRewrite(t, []string{tt.line})
			if len(out) != 1 || out[0] != tt.line {
				t.Errorf("got %v, want [%q]", out, tt.line)
			}
		})
	}
}

func TestRewriteEmitsFinalBlankLine(t *testing.T) {
	in := make(chan []byte)
	close(in)
	var out []string
	for line := range Rewrite(context.Background(), in) {
		out = append(out, string(line))
	}
	if len(out) != 1 || out[0] != "\n" {
		t.Errorf("terminator = %v, want single blank line", out)
	}
}

func TestIDTrackerMintFormat(t *testing.T) {
	tracker := NewIDTracker()
	tracker.now = func() time.Time { return time.UnixMicro(0x123abc) }

	fixed := tracker.FixData([]byte(`{"type":"response.output_item.added","output_index":3,"item":{}}`))
	id := gjson.GetBytes(fixed, "item.id").String()
	if id != "oi_3_123abc0001" {
		t.Errorf("minted id = %q, want oi_3_123abc0001", id)
	}
}

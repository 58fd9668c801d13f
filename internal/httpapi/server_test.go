package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"copilotx-proxy/internal/auth"
	"copilotx-proxy/internal/logging"
	"copilotx-proxy/pkg/models"
)

// fakeUpstream records what the handlers send and plays back canned
// responses.
type fakeUpstream struct {
	models    []models.ModelListEntry
	modelsErr error

	chatBody []byte
	chatResp string
	chatErr  error

	responsesBody      []byte
	responsesVision    bool
	responsesInitiator string
	responsesResp      string
}

func (f *fakeUpstream) ListModels(ctx context.Context) ([]models.ModelListEntry, error) {
	return f.models, f.modelsErr
}

func (f *fakeUpstream) ChatCompletions(ctx context.Context, body json.RawMessage) (*http.Response, error) {
	f.chatBody = body
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(f.chatResp)),
	}, nil
}

func (f *fakeUpstream) Responses(ctx context.Context, body json.RawMessage, vision bool, initiator string) (*http.Response, error) {
	f.responsesBody = body
	f.responsesVision = vision
	f.responsesInitiator = initiator
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(f.responsesResp)),
	}, nil
}

type fakeCreds struct{ status auth.Status }

func (f fakeCreds) Status() auth.Status { return f.status }

func newTestServer(up *fakeUpstream, apiKey string) *Server {
	creds := fakeCreds{status: auth.Status{Authenticated: true, TokenValid: true, TokenExpiresIn: 900}}
	return New(up, creds, logging.New(os.Stderr, false), apiKey, "0.0.0-test")
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(&fakeUpstream{}, "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if gjson.Get(body, "status").String() != "ok" {
		t.Errorf("status field = %q", gjson.Get(body, "status").String())
	}
	if !gjson.Get(body, "authenticated").Bool() || !gjson.Get(body, "token_valid").Bool() {
		t.Errorf("health = %s", body)
	}
	if gjson.Get(body, "token_expires_in").Int() != 900 {
		t.Errorf("token_expires_in = %s", body)
	}
}

func TestHandleListModelsFiltersPickerDisabled(t *testing.T) {
	disabled := false
	up := &fakeUpstream{models: []models.ModelListEntry{
		{ID: "claude-sonnet-4.5", Vendor: "Anthropic"},
		{ID: "hidden-model", ModelPickerEnabled: &disabled},
		{ID: "gpt-4o"},
	}}
	srv := newTestServer(up, "")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))

	body := rec.Body.String()
	data := gjson.Get(body, "data").Array()
	if len(data) != 2 {
		t.Fatalf("data length = %d, want 2 (picker-disabled filtered)", len(data))
	}
	if data[0].Get("id").String() != "claude-sonnet-4.5" ||
		data[0].Get("owned_by").String() != "Anthropic" {
		t.Errorf("data[0] = %s", data[0].Raw)
	}
	if data[1].Get("owned_by").String() != "github-copilot" {
		t.Errorf("default owned_by = %s", data[1].Raw)
	}
}

func TestHandleChatCompletionsPassthrough(t *testing.T) {
	up := &fakeUpstream{chatResp: `{"id":"chatcmpl-1","choices":[]}`}
	srv := newTestServer(up, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"gpt-4o","messages":[]}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != `{"id":"chatcmpl-1","choices":[]}` {
		t.Errorf("body = %s", rec.Body.String())
	}
	if string(up.chatBody) != `{"model":"gpt-4o","messages":[]}` {
		t.Errorf("upstream body = %s", up.chatBody)
	}
}

func TestHandleMessagesNonStream(t *testing.T) {
	up := &fakeUpstream{chatResp: `{
		"choices": [{"message": {"content": "pong"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 1, "completion_tokens": 2}
	}`}
	srv := newTestServer(up, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{
		"model": "claude-3-haiku-20240307",
		"max_tokens": 8,
		"messages": [{"role": "user", "content": "ping"}]
	}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// The forward translation applied the model map.
	if got := gjson.GetBytes(up.chatBody, "model").String(); got != "claude-haiku-4.5" {
		t.Errorf("upstream model = %q, want claude-haiku-4.5", got)
	}

	body := rec.Body.String()
	if gjson.Get(body, "role").String() != "assistant" {
		t.Errorf("role = %s", body)
	}
	if gjson.Get(body, "content.0.text").String() != "pong" {
		t.Errorf("content = %s", body)
	}
	if gjson.Get(body, "stop_reason").String() != "end_turn" {
		t.Errorf("stop_reason = %s", body)
	}
	// The response reports the client's own model name, not the mapped one.
	if gjson.Get(body, "model").String() != "claude-3-haiku-20240307" {
		t.Errorf("response model = %s, want the client's own name", gjson.Get(body, "model").String())
	}
}

func TestHandleMessagesStream(t *testing.T) {
	up := &fakeUpstream{chatResp: "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n" +
		"data: [DONE]\n"}
	srv := newTestServer(up, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{
		"model": "claude-sonnet-4-5-20250929",
		"stream": true,
		"messages": [{"role": "user", "content": "hi"}]
	}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	body := rec.Body.String()
	for _, event := range []string{"message_start", "content_block_start", "content_block_delta", "content_block_stop", "message_delta", "message_stop"} {
		if !strings.Contains(body, "event: "+event) {
			t.Errorf("stream missing event %s:\n%s", event, body)
		}
	}
}

func TestHandleMessagesUpstreamAuthError(t *testing.T) {
	up := &fakeUpstream{chatErr: auth.ErrNotAuthenticated}
	srv := newTestServer(up, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/messages",
		strings.NewReader(`{"model":"m","messages":[]}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	// Anthropic-shaped envelope on the Anthropic route.
	body := rec.Body.String()
	if gjson.Get(body, "type").String() != "error" {
		t.Errorf("envelope = %s, want Anthropic shape", body)
	}
}

func TestHandleResponsesPreprocessing(t *testing.T) {
	up := &fakeUpstream{responsesResp: `{}`}
	srv := newTestServer(up, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/responses", strings.NewReader(`{
		"model": "gpt-5",
		"service_tier": "priority",
		"input": [
			{"role": "user", "content": [{"type": "input_image", "image_url": "data:..."}]},
			{"type": "function_call_output", "call_id": "c1", "output": "done"}
		],
		"tools": [{"type": "custom", "name": "apply_patch"}]
	}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !up.responsesVision {
		t.Error("vision not detected from input_image part")
	}
	if up.responsesInitiator != "agent" {
		t.Errorf("initiator = %q, want agent (last item is function_call_output)", up.responsesInitiator)
	}
	if gjson.GetBytes(up.responsesBody, "service_tier").Exists() {
		t.Error("service_tier not removed")
	}
	tool := gjson.GetBytes(up.responsesBody, "tools.0")
	if tool.Get("type").String() != "function" {
		t.Errorf("apply_patch type = %q, want function", tool.Get("type").String())
	}
	if !tool.Get("parameters.properties.input").Exists() {
		t.Errorf("apply_patch parameters = %s", tool.Raw)
	}
	if tool.Get("strict").Type != gjson.False {
		t.Errorf("apply_patch strict = %s, want false", tool.Get("strict").Raw)
	}
}

func TestHandleResponsesUserInitiator(t *testing.T) {
	up := &fakeUpstream{responsesResp: `{}`}
	srv := newTestServer(up, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/responses", strings.NewReader(`{
		"input": [{"role": "user", "content": "hello"}]
	}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if up.responsesInitiator != "user" {
		t.Errorf("initiator = %q, want user", up.responsesInitiator)
	}
	if up.responsesVision {
		t.Error("vision detected on text-only input")
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		remoteAddr string
		header     map[string]string
		wantStatus int
	}{
		{
			name:       "loopback bypasses",
			path:       "/v1/models",
			remoteAddr: "127.0.0.1:51000",
			wantStatus: http.StatusOK,
		},
		{
			name:       "public path bypasses",
			path:       "/health",
			remoteAddr: "203.0.113.9:443",
			wantStatus: http.StatusOK,
		},
		{
			name:       "remote without key rejected",
			path:       "/v1/models",
			remoteAddr: "203.0.113.9:443",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "remote with bearer",
			path:       "/v1/models",
			remoteAddr: "203.0.113.9:443",
			header:     map[string]string{"Authorization": "Bearer sekrit"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "remote with x-api-key",
			path:       "/v1/models",
			remoteAddr: "203.0.113.9:443",
			header:     map[string]string{"x-api-key": "sekrit"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "remote with api-key",
			path:       "/v1/models",
			remoteAddr: "203.0.113.9:443",
			header:     map[string]string{"api-key": "sekrit"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "remote with wrong key rejected",
			path:       "/v1/models",
			remoteAddr: "203.0.113.9:443",
			header:     map[string]string{"x-api-key": "wrong"},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakeUpstream{}, "sekrit")
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(&fakeUpstream{}, "")
	req := httptest.NewRequest(http.MethodOptions, "/v1/messages", nil)
	req.Header.Set("Origin", "http://localhost:1111")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:1111" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

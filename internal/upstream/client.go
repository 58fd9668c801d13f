// Package upstream is the client for GitHub Copilot's API: a single long-lived
// HTTP session wrapping GitHub Copilot's chat/completions, responses, and
// models endpoints.
package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/sjson"

	"copilotx-proxy/internal/config"
	"copilotx-proxy/pkg/models"
)

// BearerSource supplies the current bearer/base URL pair, read afresh on
// every call (internal/auth.Manager satisfies this).
type BearerSource interface {
	EnsureBearer(ctx context.Context) (bearer string, baseURL string, err error)
}

// Client is the single shared HTTP session to the upstream.
type Client struct {
	http  *http.Client
	creds BearerSource
	log   zerolog.Logger

	modelsMu       sync.Mutex
	modelsCache    []models.ModelListEntry
	modelsCachedAt time.Time
	modelsTTL      time.Duration
	now            func() time.Time
}

// NewClient builds a Client around one shared *http.Client; every proxied
// request multiplexes over its connection pool.
func NewClient(creds BearerSource, log zerolog.Logger) *Client {
	return &Client{
		http:      &http.Client{Timeout: config.RequestTimeoutSeconds * time.Second},
		creds:     creds,
		log:       log,
		modelsTTL: config.ModelsCacheTTLSeconds * time.Second,
		now:       time.Now,
	}
}

// impersonationHeaders is the one table of fixed headers the upstream
// vendor expects. The values drift with editor releases; update them here
// only.
func impersonationHeaders(bearer string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+bearer)
	h.Set("Content-Type", "application/json")
	h.Set("Editor-Version", config.EditorVersion)
	h.Set("Editor-Plugin-Version", config.EditorPluginVersion)
	h.Set("User-Agent", config.UserAgent)
	h.Set("Copilot-Integration-Id", config.IntegrationID)
	h.Set("X-GitHub-Api-Version", config.GitHubAPIVersion)
	h.Set("OpenAI-Intent", "conversation-agent")
	h.Set("X-Request-ID", uuid.New().String())
	return h
}

// UpstreamError wraps a non-2xx response from a data endpoint. Body holds
// up to the first 500 bytes for envelope wrapping.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d", e.StatusCode)
}

// ListModels fetches and caches the model list for config.ModelsCacheTTLSeconds.
func (c *Client) ListModels(ctx context.Context) ([]models.ModelListEntry, error) {
	c.modelsMu.Lock()
	if c.modelsCache != nil && c.now().Sub(c.modelsCachedAt) < c.modelsTTL {
		cached := c.modelsCache
		c.modelsMu.Unlock()
		return cached, nil
	}
	c.modelsMu.Unlock()

	bearer, base, err := c.creds.EnsureBearer(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header = impersonationHeaders(bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		c.invalidateModelsCache()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.invalidateModelsCache()
		return nil, readUpstreamError(resp)
	}

	var parsed struct {
		Data []models.ModelListEntry `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.invalidateModelsCache()
		return nil, fmt.Errorf("decoding models response: %w", err)
	}

	c.modelsMu.Lock()
	c.modelsCache = parsed.Data
	c.modelsCachedAt = c.now()
	c.modelsMu.Unlock()

	return parsed.Data, nil
}

func (c *Client) invalidateModelsCache() {
	c.modelsMu.Lock()
	c.modelsCache = nil
	c.modelsMu.Unlock()
}

// ChatCompletions posts to {base}/chat/completions. The response body is
// returned unread; streaming callers iterate it with SSELines, others
// decode it whole.
func (c *Client) ChatCompletions(ctx context.Context, body json.RawMessage) (*http.Response, error) {
	return c.post(ctx, "/chat/completions", body, nil)
}

// Responses posts to {base}/responses with the extra request shaping the
// upstream needs: service_tier stripped, X-Initiator set, and
// copilot-vision-request when the request carries image input.
func (c *Client) Responses(ctx context.Context, body json.RawMessage, vision bool, initiator string) (*http.Response, error) {
	if stripped, err := sjson.DeleteBytes(body, "service_tier"); err == nil {
		body = stripped
	}
	extra := http.Header{}
	extra.Set("X-Initiator", initiator)
	if vision {
		extra.Set("Copilot-Vision-Request", "true")
	}
	return c.post(ctx, "/responses", body, extra)
}

func (c *Client) post(ctx context.Context, path string, body json.RawMessage, extra http.Header) (*http.Response, error) {
	bearer, base, err := c.creds.EnsureBearer(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header = impersonationHeaders(bearer)
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, readUpstreamError(resp)
	}
	return resp, nil
}

func readUpstreamError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
	return &UpstreamError{StatusCode: resp.StatusCode, Body: body}
}

// SSELines adapts an HTTP response body into a lazy, forward-only sequence
// of complete SSE lines, each terminated by exactly one '\n'. It emits a
// final empty line on normal termination and releases the underlying
// connection immediately when ctx is cancelled.
func SSELines(ctx context.Context, resp *http.Response) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		// Closing the body from a watcher unblocks any in-flight read the
		// moment the consumer cancels.
		watchDone := make(chan struct{})
		defer close(watchDone)
		go func() {
			select {
			case <-ctx.Done():
				resp.Body.Close()
			case <-watchDone:
			}
		}()

		reader := bufio.NewReaderSize(resp.Body, 64*1024)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line, err := reader.ReadString('\n')
			if len(line) > 0 {
				trimmed := strings.TrimRight(line, "\n")
				select {
				case out <- []byte(trimmed + "\n"):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					return
				}
				select {
				case out <- []byte("\n"):
				case <-ctx.Done():
				}
				return
			}
		}
	}()
	return out
}

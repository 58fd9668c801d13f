// Package httpapi is the HTTP surface of the proxy: the OpenAI
// chat-completions, OpenAI Responses, and Anthropic Messages routes, plus
// model listing, health, and the caller-authentication middleware.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"copilotx-proxy/internal/auth"
	"copilotx-proxy/pkg/models"
)

// Upstream is the slice of the upstream client the handlers use
// (internal/upstream.Client satisfies it).
type Upstream interface {
	ListModels(ctx context.Context) ([]models.ModelListEntry, error)
	ChatCompletions(ctx context.Context, body json.RawMessage) (*http.Response, error)
	Responses(ctx context.Context, body json.RawMessage, vision bool, initiator string) (*http.Response, error)
}

// CredentialStatus reports authentication state for GET /health
// (internal/auth.Manager satisfies it).
type CredentialStatus interface {
	Status() auth.Status
}

// Server wires the routes to the credential manager and upstream client.
type Server struct {
	upstream Upstream
	creds    CredentialStatus
	log      zerolog.Logger
	apiKey   string
	version  string
}

// New builds a Server. apiKey may be empty, which disables the caller
// authentication gate entirely.
func New(up Upstream, creds CredentialStatus, log zerolog.Logger, apiKey, version string) *Server {
	return &Server{upstream: up, creds: creds, log: log, apiKey: apiKey, version: version}
}

// Handler returns the full middleware-wrapped route tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/messages", s.handleMessages)
	mux.HandleFunc("/v1/responses", s.handleResponses)
	mux.HandleFunc("/v1/models", s.handleListModels)
	mux.HandleFunc("/health", s.handleHealth)
	return withCORS(s.withAPIKey(mux))
}

// handleHealth serves GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.creds.Status()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":           "ok",
		"version":          s.version,
		"authenticated":    status.Authenticated,
		"token_valid":      status.TokenValid,
		"token_expires_in": status.TokenExpiresIn,
	})
}

// handleListModels serves GET /v1/models: the cached upstream list filtered
// by model_picker_enabled, reshaped to an OpenAI model list.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	entries, err := s.upstream.ListModels(r.Context())
	if err != nil {
		s.writeError(w, err, false)
		return
	}

	data := make([]map[string]any, 0, len(entries))
	for _, m := range entries {
		if !m.PickerEnabled() {
			continue
		}
		ownedBy := m.Vendor
		if ownedBy == "" {
			ownedBy = "github-copilot"
		}
		data = append(data, map[string]any{
			"id":       m.ID,
			"object":   "model",
			"owned_by": ownedBy,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
}

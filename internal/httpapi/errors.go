package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tidwall/gjson"

	"copilotx-proxy/internal/auth"
	"copilotx-proxy/internal/upstream"
)

// writeOpenAIError writes an OpenAI-shaped error envelope.
func writeOpenAIError(w http.ResponseWriter, status int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    errType,
			"param":   nil,
			"code":    nil,
		},
	})
}

// writeAnthropicError writes an Anthropic-shaped error envelope.
func writeAnthropicError(w http.ResponseWriter, status int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"type": "error",
		"error": map[string]any{
			"type":    errType,
			"message": message,
		},
	})
}

// writeError maps the error taxonomy to HTTP responses. anthropic selects
// the envelope shape: Anthropic-shaped on /v1/messages, OpenAI-shaped
// elsewhere.
func (s *Server) writeError(w http.ResponseWriter, err error, anthropic bool) {
	write := writeOpenAIError
	if anthropic {
		write = writeAnthropicError
	}

	switch {
	case errors.Is(err, auth.ErrNotAuthenticated), errors.Is(err, auth.ErrGrantRevoked):
		write(w, http.StatusUnauthorized, err.Error(), "authentication_error")
		return
	case errors.Is(err, auth.ErrSubscriptionMissing):
		write(w, http.StatusForbidden, err.Error(), "permission_error")
		return
	}

	var upErr *upstream.UpstreamError
	if errors.As(err, &upErr) {
		s.log.Warn().Int("status", upErr.StatusCode).Msg("upstream error")
		if json.Valid(upErr.Body) {
			if anthropic {
				message := gjson.GetBytes(upErr.Body, "error.message").String()
				if message == "" {
					message = string(upErr.Body)
				}
				write(w, upErr.StatusCode, message, "upstream_error")
				return
			}
			// Forward the upstream's own envelope verbatim.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(upErr.StatusCode)
			w.Write(upErr.Body)
			return
		}
		write(w, upErr.StatusCode, string(upErr.Body), "upstream_error")
		return
	}

	var mintErr *auth.UpstreamError
	if errors.As(err, &mintErr) {
		write(w, http.StatusBadGateway, mintErr.Error(), "upstream_error")
		return
	}

	s.log.Error().Err(err).Msg("request failed")
	write(w, http.StatusBadGateway, err.Error(), "upstream_error")
}

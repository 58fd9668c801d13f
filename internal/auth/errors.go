package auth

import (
	"errors"
	"strconv"
)

// Sentinel errors for the credential lifecycle. Callers at the HTTP edge
// map these to status codes; see internal/httpapi.
var (
	// ErrNotAuthenticated means no grant token has ever been saved.
	ErrNotAuthenticated = errors.New("not authenticated: run `copilotx auth login`")
	// ErrGrantRevoked means the upstream rejected the grant token (401).
	ErrGrantRevoked = errors.New("github token revoked or expired: re-login required")
	// ErrSubscriptionMissing means the upstream rejected for lack of a
	// Copilot subscription (403).
	ErrSubscriptionMissing = errors.New("github copilot is not enabled for this account")
)

// UpstreamError wraps a non-2xx, non-401/403 response from the token-mint
// endpoint. The caller decides how to surface it.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return "copilot token endpoint returned " + strconv.Itoa(e.StatusCode) + ": " + e.Body
}

// Package auth implements the credential manager: the two-layer token
// lifecycle that turns a long-lived GitHub grant token into a short-lived
// Copilot bearer, refreshed transparently and safely under concurrent
// request load.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"copilotx-proxy/internal/config"
	"copilotx-proxy/pkg/models"
)

// Manager owns the single Credentials record for the process. EnsureBearer
// is the hot path crossed by every proxied request and is safe for
// concurrent callers: a single-writer record guarded by a condition
// variable, so at most one upstream mint is in flight per expiry event and
// every other caller blocks on that single outcome.
type Manager struct {
	mu   sync.Mutex
	cond *sync.Cond

	creds      *models.Credentials // nil until a grant token has been loaded
	refreshing bool
	refreshErr error // outcome of the most recently completed refresh

	store  *Storage
	client *http.Client
	log    zerolog.Logger

	refreshBuffer time.Duration
	tokenURL      string
	baseFallback  string
	now           func() time.Time
}

// NewManager constructs a Manager backed by store, loading any persisted
// credentials immediately (a persistence read failure is non-fatal: the
// manager simply starts unauthenticated).
func NewManager(store *Storage, log zerolog.Logger) *Manager {
	m := &Manager{
		store:         store,
		client:        &http.Client{Timeout: config.RequestTimeoutSeconds * time.Second},
		log:           log,
		refreshBuffer: config.RefreshBufferSeconds * time.Second,
		tokenURL:      config.CopilotTokenURL,
		baseFallback:  config.CopilotBaseFallback,
		now:           time.Now,
	}
	m.cond = sync.NewCond(&m.mu)
	if creds, err := store.Load(); err != nil {
		log.Warn().Err(err).Msg("failed to load persisted credentials")
	} else {
		m.creds = creds
	}
	return m
}

// SaveGrant stores a freshly obtained grant token (from device flow or
// --token) and clears any stale bearer, forcing the next EnsureBearer call
// to mint a fresh one.
func (m *Manager) SaveGrant(grantToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	creds := models.Credentials{GrantToken: grantToken}
	m.creds = &creds
	return m.store.Save(creds)
}

// Logout deletes the persisted credentials and clears in-memory state.
func (m *Manager) Logout() (bool, error) {
	m.mu.Lock()
	m.creds = nil
	m.mu.Unlock()
	return m.store.Delete()
}

// Status is a snapshot of authentication state, used by `auth status` and
// GET /health.
type Status struct {
	Authenticated  bool
	TokenValid     bool
	TokenExpiresIn int64
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return Status{}
	}
	expiresIn := m.creds.ExpiresAt - m.now().Unix()
	return Status{
		Authenticated:  true,
		TokenValid:     m.bearerUsableLocked(),
		TokenExpiresIn: expiresIn,
	}
}

// bearerUsableLocked reports whether the current bearer is non-empty and
// has enough life left past the refresh buffer. Caller must hold mu.
func (m *Manager) bearerUsableLocked() bool {
	if m.creds == nil || m.creds.CopilotBearer == "" {
		return false
	}
	return m.creds.ExpiresAt > m.now().Unix()+int64(m.refreshBuffer.Seconds())
}

// EnsureBearer returns a usable bearer and base URL, refreshing if
// necessary. If a refresh is already in flight the caller blocks until it
// completes and shares its outcome rather than starting a redundant
// upstream exchange.
func (m *Manager) EnsureBearer(ctx context.Context) (bearer string, baseURL string, err error) {
	m.mu.Lock()
	if m.creds == nil {
		m.mu.Unlock()
		return "", "", ErrNotAuthenticated
	}

	for {
		if m.bearerUsableLocked() {
			bearer, baseURL = m.creds.CopilotBearer, m.effectiveBaseLocked()
			m.mu.Unlock()
			return bearer, baseURL, nil
		}
		if !m.refreshing {
			m.refreshing = true
			grantToken := m.creds.GrantToken
			m.mu.Unlock()

			newBearer, expiresAt, newBase, fetchErr := m.fetchBearer(ctx, grantToken)

			m.mu.Lock()
			m.refreshing = false
			if fetchErr == nil {
				m.creds.CopilotBearer = newBearer
				m.creds.ExpiresAt = expiresAt
				if newBase != "" {
					m.creds.BaseURL = newBase
				}
				if saveErr := m.store.Save(*m.creds); saveErr != nil {
					// Persistence failure is non-fatal; the in-memory
					// record keeps serving this session.
					m.log.Warn().Err(saveErr).Msg("failed to persist refreshed credentials")
				}
			}
			m.refreshErr = fetchErr
			m.cond.Broadcast()

			if fetchErr != nil {
				m.mu.Unlock()
				return "", "", fetchErr
			}
			bearer, baseURL = m.creds.CopilotBearer, m.effectiveBaseLocked()
			m.mu.Unlock()
			return bearer, baseURL, nil
		}
		// Someone else is refreshing; block on that single outcome.
		m.cond.Wait()
		if m.refreshErr != nil {
			err := m.refreshErr
			m.mu.Unlock()
			return "", "", err
		}
	}
}

func (m *Manager) effectiveBaseLocked() string {
	if m.creds.BaseURL != "" {
		return m.creds.BaseURL
	}
	return m.baseFallback
}

// tokenMintResponse is the upstream's bearer-minting payload.
type tokenMintResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	Endpoints struct {
		API string `json:"api"`
	} `json:"endpoints"`
}

// fetchBearer performs the GitHub Copilot token-mint exchange.
func (m *Manager) fetchBearer(ctx context.Context, grantToken string) (bearer string, expiresAt int64, baseURL string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.tokenURL, nil)
	if err != nil {
		return "", 0, "", err
	}
	req.Header.Set("Authorization", "token "+grantToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Editor-Version", config.EditorVersion)
	req.Header.Set("Editor-Plugin-Version", config.EditorPluginVersion)
	req.Header.Set("User-Agent", config.UserAgent)
	req.Header.Set("Copilot-Integration-Id", config.IntegrationID)
	req.Header.Set("X-GitHub-Api-Version", config.GitHubAPIVersion)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", 0, "", fmt.Errorf("copilot token request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return "", 0, "", ErrGrantRevoked
	case http.StatusForbidden:
		return "", 0, "", ErrSubscriptionMissing
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return "", 0, "", &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed tokenMintResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", 0, "", fmt.Errorf("decoding copilot token response: %w", err)
	}
	return parsed.Token, parsed.ExpiresAt, parsed.Endpoints.API, nil
}

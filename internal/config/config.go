// Package config holds runtime configuration: a .env file discovered by
// walking parent directories, then environment variables, then compiled-in
// defaults. Flags (wired by cmd/copilotx) take precedence over all of it.
package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"copilotx-proxy/internal/logging"
)

// Version is the proxy's own version, reported by GET /health and the CLI.
const Version = "0.4.0"

const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 24680
	PortScanAttempts      = 20
	RequestTimeoutSeconds = 120
	RefreshBufferSeconds  = 60
	ModelsCacheTTLSeconds = 300
	DeviceCodePollSeconds = 5
	DeviceCodeTimeoutSecs = 900

	GitHubClientID      = "Iv1.b507a08c87ecfe98"
	GitHubScope         = "read:user"
	DeviceCodeURL       = "https://github.com/login/device/code"
	AccessTokenURL      = "https://github.com/login/oauth/access_token"
	CopilotTokenURL     = "https://api.github.com/copilot_internal/v2/token"
	CopilotBaseFallback = "https://api.githubcopilot.com"

	EditorVersion       = "vscode/1.104.3"
	EditorPluginVersion = "copilot-chat/0.26.7"
	UserAgent           = "GitHubCopilotChat/0.26.7"
	IntegrationID       = "vscode-chat"
	GitHubAPIVersion    = "2025-04-01"
)

// LoadDotEnv walks up from the working directory looking for a .env file
// and loads it into the process environment. Missing .env is not an error.
func LoadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for {
		candidate := filepath.Join(dir, ".env")
		if _, statErr := os.Stat(candidate); statErr == nil {
			if loadErr := godotenv.Load(candidate); loadErr != nil {
				logging.Default.Warn().Err(loadErr).Str("path", candidate).Msg("failed to load .env")
			}
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// HomeDir returns the state directory (<home>/.copilotx), creating it with
// owner-only permissions on POSIX systems if it doesn't already exist.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".copilotx")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func GetEnvWithDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

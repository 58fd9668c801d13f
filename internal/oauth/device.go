// Package oauth implements GitHub's OAuth Device Flow (RFC 8628). It is a
// thin HTTP exchange; the interactive prompt (displaying the user code)
// lives in cmd/copilotx.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"copilotx-proxy/internal/config"
)

// DeviceCode is the response to the device-code initiation request.
type DeviceCode struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// RequestDeviceCode starts the device flow.
func RequestDeviceCode(ctx context.Context, client *http.Client) (*DeviceCode, error) {
	form := url.Values{
		"client_id": {config.GitHubClientID},
		"scope":     {config.GitHubScope},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.DeviceCodeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("device code request: %w", err)
	}
	defer resp.Body.Close()

	var dc DeviceCode
	if err := json.NewDecoder(resp.Body).Decode(&dc); err != nil {
		return nil, fmt.Errorf("decoding device code response: %w", err)
	}
	return &dc, nil
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	Error       string `json:"error"`
}

// PollForAccessToken polls the token endpoint until the user authorizes,
// the device code expires, or timeout elapses. Terminal failures surface as
// *oauth2.RetrieveError carrying the endpoint's error code.
func PollForAccessToken(ctx context.Context, client *http.Client, deviceCode string, interval time.Duration, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		if time.Now().After(deadline) {
			return "", &oauth2.RetrieveError{ErrorCode: "expired_token"}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}

		form := url.Values{
			"client_id":   {config.GitHubClientID},
			"device_code": {deviceCode},
			"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.AccessTokenURL, strings.NewReader(form.Encode()))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("access token poll: %w", err)
		}
		var parsed accessTokenResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if decodeErr != nil {
			return "", fmt.Errorf("decoding access token response: %w", decodeErr)
		}

		switch parsed.Error {
		case "":
			if parsed.AccessToken != "" {
				return parsed.AccessToken, nil
			}
			return "", &oauth2.RetrieveError{ErrorCode: "empty_access_token"}
		case "authorization_pending":
			continue
		case "slow_down":
			interval += 5 * time.Second
			continue
		case "expired_token", "access_denied":
			return "", &oauth2.RetrieveError{ErrorCode: parsed.Error}
		default:
			return "", &oauth2.RetrieveError{ErrorCode: parsed.Error}
		}
	}
}

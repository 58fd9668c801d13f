package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"copilotx-proxy/internal/config"
	"copilotx-proxy/internal/oauth"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication management",
	}
	cmd.AddCommand(newAuthLoginCmd(), newAuthStatusCmd(), newAuthLogoutCmd())
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with GitHub Copilot",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}

			grantToken := token
			if grantToken == "" {
				grantToken = os.Getenv("GITHUB_TOKEN")
			}
			if grantToken != "" {
				fmt.Println("Using provided GitHub token...")
			} else {
				grantToken, err = deviceFlowLogin(cmd.Context())
				if err != nil {
					return fmt.Errorf("device flow login: %w", err)
				}
			}

			if err := manager.SaveGrant(grantToken); err != nil {
				return fmt.Errorf("saving credentials: %w", err)
			}

			// Verify by minting a Copilot bearer immediately.
			if _, _, err := manager.EnsureBearer(cmd.Context()); err != nil {
				return fmt.Errorf("copilot token exchange failed: %w", err)
			}

			status := manager.Status()
			fmt.Println("Successfully authenticated with GitHub Copilot.")
			fmt.Printf("Copilot token expires in %d minutes\n", status.TokenExpiresIn/60)
			return nil
		},
	}
	cmd.Flags().StringVarP(&token, "token", "t", "", "GitHub token (skips the OAuth device flow)")
	return cmd
}

// deviceFlowLogin runs the interactive device-code flow: print the user
// code, then poll until the user authorizes or the code expires.
func deviceFlowLogin(ctx context.Context) (string, error) {
	client := &http.Client{Timeout: 30 * time.Second}

	dc, err := oauth.RequestDeviceCode(ctx, client)
	if err != nil {
		return "", err
	}

	fmt.Println()
	fmt.Printf("First, copy your one-time code: %s\n", dc.UserCode)
	fmt.Printf("Then visit: %s\n", dc.VerificationURI)
	fmt.Println()
	fmt.Println("Waiting for authorization...")

	interval := time.Duration(dc.Interval) * time.Second
	if interval == 0 {
		interval = config.DeviceCodePollSeconds * time.Second
	}
	accessToken, err := oauth.PollForAccessToken(ctx, client, dc.DeviceCode, interval, config.DeviceCodeTimeoutSecs*time.Second)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			switch retrieveErr.ErrorCode {
			case "expired_token":
				return "", errors.New("device code expired before authorization")
			case "access_denied":
				return "", errors.New("authorization was denied")
			}
		}
		return "", err
	}
	return accessToken, nil
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show current authentication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}
			status := manager.Status()
			if !status.Authenticated {
				fmt.Println("Not authenticated. Run: copilotx auth login")
				os.Exit(1)
			}
			fmt.Println("Authenticated")
			if status.TokenValid {
				fmt.Printf("Copilot token valid (%dm %ds remaining)\n",
					status.TokenExpiresIn/60, status.TokenExpiresIn%60)
			} else {
				fmt.Println("Copilot token expired (will auto-refresh on next request)")
			}
			return nil
		},
	}
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}
			removed, err := manager.Logout()
			if err != nil {
				return err
			}
			if removed {
				fmt.Println("Credentials removed")
			} else {
				fmt.Println("No credentials found")
			}
			return nil
		},
	}
}

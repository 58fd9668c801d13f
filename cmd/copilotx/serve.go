package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"copilotx-proxy/internal/config"
	"copilotx-proxy/internal/httpapi"
	"copilotx-proxy/internal/logging"
	"copilotx-proxy/internal/upstream"
)

func newServeCmd(debug *bool) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local API proxy server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(os.Stderr, *debug)

			manager, err := newManager()
			if err != nil {
				return err
			}
			if !manager.Status().Authenticated {
				return errors.New("not authenticated: run `copilotx auth login`")
			}

			// Pre-validate: mint a bearer before binding anything.
			if _, _, err := manager.EnsureBearer(cmd.Context()); err != nil {
				return err
			}

			// With an explicit --port, bind strictly; otherwise scan for a
			// free port starting at the default.
			if cmd.Flags().Changed("port") {
				if err := probePort(host, port); err != nil {
					return fmt.Errorf("port %d is already in use; free it or omit --port to auto-select", port)
				}
			} else {
				chosen, err := findAvailablePort(host, port)
				if err != nil {
					return err
				}
				if chosen != port {
					log.Warn().Int("requested", port).Int("using", chosen).Msg("port in use, using fallback")
				}
				port = chosen
			}

			client := upstream.NewClient(manager, log)
			apiKey := os.Getenv("COPILOTX_API_KEY")
			api := httpapi.New(client, manager, log, apiKey, config.Version)

			stateDir, err := config.HomeDir()
			if err != nil {
				return err
			}
			serverFile := filepath.Join(stateDir, "server.json")
			if err := writeServerInfo(serverFile, host, port); err != nil {
				log.Warn().Err(err).Msg("failed to write server.json")
			}
			defer os.Remove(serverFile)

			status := manager.Status()
			log.Info().
				Str("version", config.Version).
				Int64("token_expires_in", status.TokenExpiresIn).
				Msg("copilotx starting")
			if host != "127.0.0.1" && apiKey == "" {
				log.Warn().Msg("remote mode without COPILOTX_API_KEY: anyone can reach your Copilot subscription")
			}
			log.Info().Str("openai", fmt.Sprintf("http://%s:%d/v1/chat/completions", host, port)).
				Str("responses", fmt.Sprintf("http://%s:%d/v1/responses", host, port)).
				Str("anthropic", fmt.Sprintf("http://%s:%d/v1/messages", host, port)).
				Msg("listening")

			srv := &http.Server{
				Addr:    net.JoinHostPort(host, fmt.Sprint(port)),
				Handler: api.Handler(),
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&host, "host", config.DefaultHost, "bind address")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "bind port")
	return cmd
}

// probePort checks that host:port is bindable right now.
func probePort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return err
	}
	return ln.Close()
}

// findAvailablePort scans sequentially from preferred, falling back to an
// OS-assigned port when the whole range is taken.
func findAvailablePort(host string, preferred int) (int, error) {
	for offset := 0; offset < config.PortScanAttempts; offset++ {
		port := preferred + offset
		if probePort(host, port) == nil {
			return port, nil
		}
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// serverInfo is the port-discovery record other tools read.
type serverInfo struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	PID       int    `json:"pid"`
	StartedAt string `json:"started_at"`
	BaseURL   string `json:"base_url"`
}

func writeServerInfo(path, host string, port int) error {
	info := serverInfo{
		Host:      host,
		Port:      port,
		PID:       os.Getpid(),
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		BaseURL:   fmt.Sprintf("http://%s:%d", host, port),
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

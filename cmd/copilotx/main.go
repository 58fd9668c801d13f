// Command copilotx is the CLI driver: authentication management, model
// listing, and the serve loop for the local proxy.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"copilotx-proxy/internal/auth"
	"copilotx-proxy/internal/config"
	"copilotx-proxy/internal/logging"
)

func main() {
	config.LoadDotEnv()

	root := &cobra.Command{
		Use:           "copilotx",
		Short:         "Local GitHub Copilot API proxy",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var debug bool
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(newAuthCmd(), newModelsCmd(), newServeCmd(&debug))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newManager builds the credential manager rooted at ~/.copilotx.
func newManager() (*auth.Manager, error) {
	stateDir, err := config.HomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving state directory: %w", err)
	}
	return auth.NewManager(auth.NewStorage(stateDir), logging.Default), nil
}

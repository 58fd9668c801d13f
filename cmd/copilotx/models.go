package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"copilotx-proxy/internal/logging"
	"copilotx-proxy/internal/upstream"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List available Copilot models",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}

			client := upstream.NewClient(manager, logging.Default)
			entries, err := client.ListModels(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetching models: %w", err)
			}

			if len(entries) == 0 {
				fmt.Println("No models available")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL ID\tNAME\tVENDOR")
			count := 0
			for _, m := range entries {
				if !m.PickerEnabled() {
					continue
				}
				name, vendor := m.Name, m.Vendor
				if name == "" {
					name = "-"
				}
				if vendor == "" {
					vendor = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, name, vendor)
				count++
			}
			w.Flush()
			fmt.Printf("\nTotal: %d models\n", count)
			return nil
		},
	}
}

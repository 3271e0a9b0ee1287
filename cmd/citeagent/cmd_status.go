package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Spectating101/cite-agent-sub002/internal/backend"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe backend availability",
	Long: `Probe the backend health endpoint. A failed probe is cached for the
configured recheck interval so a dead backend is not hammered.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newBackendClient()
		probeGate := backend.NewProbeGate(cfg.GetProbeRecheck())

		err := probeGate.Check(cmd.Context(), client.Health)
		if err != nil {
			fmt.Printf("Backend %s is unreachable: %v\n", cfg.Backend.BaseURL, err)
			return nil
		}
		fmt.Printf("Backend %s is healthy.\n", cfg.Backend.BaseURL)
		return nil
	},
}

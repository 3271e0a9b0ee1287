package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Spectating101/cite-agent-sub002/internal/usage"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show today's token spend",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := newSessionManager(newBackendClient())
		session, err := manager.GetSession()
		if err != nil {
			return err
		}
		if session == nil {
			return fmt.Errorf("not logged in; run \"citeagent login\" first")
		}

		ledger, err := usage.NewStore(cfg.Usage.DatabasePath)
		if err != nil {
			return err
		}
		defer ledger.Close()

		totals, err := ledger.Today(session.AccountID)
		if err != nil {
			return err
		}

		fmt.Printf("Usage for %s on %s:\n", session.Email, totals.Day)
		fmt.Printf("  Queries: %d\n", totals.Queries)
		if session.DailyTokenLimit > 0 {
			fmt.Printf("  Tokens:  %d of %d\n", totals.Tokens, session.DailyTokenLimit)
		} else {
			fmt.Printf("  Tokens:  %d\n", totals.Tokens)
		}
		return nil
	},
}

// citeagent is a conversational research assistant CLI. It answers
// questions by planning tool invocations (literature search, financial
// lookups, dataset analysis, shell) against a remote backend, with an
// offline fallback for authentication.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Spectating101/cite-agent-sub002/internal/auth"
	"github.com/Spectating101/cite-agent-sub002/internal/backend"
	"github.com/Spectating101/cite-agent-sub002/internal/config"
	"github.com/Spectating101/cite-agent-sub002/internal/logging"
)

var (
	configPath string
	debug      bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "citeagent",
	Short: "cite-agent - conversational research assistant",
	Long: `cite-agent answers research questions by planning and executing tool
invocations: academic literature search, financial data lookups, dataset
analysis, and shell commands. Multi-part questions are decomposed into
ordered steps; results are synthesized into one answer.

Log in first with "citeagent login". When the backend is unreachable,
previously registered users can keep working offline.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if debug {
			cfg.Debug = true
		}
		if err := logging.Initialize(cfg.Debug); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(usageCmd)
}

// newBackendClient builds the HTTP client from config.
func newBackendClient() *backend.Client {
	return backend.NewClient(cfg.Backend.BaseURL, cfg.GetToolTimeout(), cfg.GetChatTimeout())
}

// newSessionManager builds the session manager from config.
func newSessionManager(client *backend.Client) *auth.Manager {
	return auth.NewManager(client, auth.ManagerOptions{
		CredentialsDir: cfg.Auth.CredentialsDir,
		DefaultTTL:     time.Duration(cfg.Auth.DefaultSessionDays) * 24 * time.Hour,
		DailyOverride:  cfg.Auth.DailyTokenLimit,
		LoginSchedule:  cfg.LoginRetrySchedule(),
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

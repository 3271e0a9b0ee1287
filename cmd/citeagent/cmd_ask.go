package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Spectating101/cite-agent-sub002/internal/backend"
	"github.com/Spectating101/cite-agent-sub002/internal/gate"
	"github.com/Spectating101/cite-agent-sub002/internal/logging"
	"github.com/Spectating101/cite-agent-sub002/internal/orchestrator"
	"github.com/Spectating101/cite-agent-sub002/internal/tools"
	"github.com/Spectating101/cite-agent-sub002/internal/tools/chat"
	"github.com/Spectating101/cite-agent-sub002/internal/tools/data"
	"github.com/Spectating101/cite-agent-sub002/internal/tools/finance"
	"github.com/Spectating101/cite-agent-sub002/internal/tools/research"
	"github.com/Spectating101/cite-agent-sub002/internal/tools/shell"
	"github.com/Spectating101/cite-agent-sub002/internal/usage"
)

var showTrace bool

func init() {
	askCmd.Flags().BoolVar(&showTrace, "trace", false, "print the executed step trace")
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question",
	Long: `Ask a question. Multi-part questions ("load sample.csv, compute the
mean, then tell me if it's above 50") are decomposed into ordered steps.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := newBackendClient()
		manager := newSessionManager(client)

		session, err := manager.GetSession()
		if err != nil {
			return err
		}
		if session == nil {
			return fmt.Errorf("not logged in; run \"citeagent login\" first")
		}

		tokenFn := func() string {
			if s, err := manager.GetSession(); err == nil && s != nil {
				return s.AuthToken
			}
			return ""
		}

		registry, err := buildRegistry(ctx, client, tokenFn, session.HasTempKey(), session.TempAPIKey)
		if err != nil {
			return err
		}

		ledger, err := usage.NewStore(cfg.Usage.DatabasePath)
		if err != nil {
			return err
		}
		defer ledger.Close()

		orch := orchestrator.New(
			registry,
			manager,
			backend.NewRetrier(cfg.RetrySchedule()),
			gate.New(cfg.Gate.MinAnswerChars),
			ledger,
			orchestrator.Options{
				StepBudget:    cfg.Orchestrator.StepBudget,
				HistoryWindow: cfg.Orchestrator.HistoryWindow,
				MaxConcurrent: cfg.Orchestrator.MaxConcurrentPlans,
			},
		)

		conv := orchestrator.NewConversation(cfg.Orchestrator.MaxTurns)
		start := time.Now()
		result, err := orch.Answer(ctx, conv, question)
		if err != nil {
			// A partial result may still carry a useful apology.
			if result != nil && result.Answer != "" {
				fmt.Println(result.Answer)
			}
			return err
		}

		fmt.Println(result.Answer)

		if showTrace {
			fmt.Fprintf(os.Stderr, "\n--- trace (%d steps, %s) ---\n",
				len(result.Trace.Steps), time.Since(start).Round(time.Millisecond))
			for _, step := range result.Trace.Steps {
				status := "ok"
				if step.Err != "" {
					status = "failed: " + step.Err
					if step.Recovered {
						status += " (recovered)"
					}
				}
				fmt.Fprintf(os.Stderr, "%d. %s [%dms] %s\n",
					step.Index, step.Tool, step.Duration, status)
			}
		}
		return nil
	},
}

// buildRegistry wires every capability. The direct provider is attached
// only when the session carries a usable temp key and function calling
// is enabled.
func buildRegistry(ctx context.Context, client *backend.Client, tokenFn func() string, hasTempKey bool, tempKey string) (*tools.Registry, error) {
	registry := tools.NewRegistry()

	if err := shell.RegisterAll(registry); err != nil {
		return nil, err
	}
	if err := research.RegisterAll(registry, client, research.TokenFunc(tokenFn)); err != nil {
		return nil, err
	}
	if err := finance.RegisterAll(registry, client, finance.TokenFunc(tokenFn)); err != nil {
		return nil, err
	}
	if err := data.RegisterAll(registry); err != nil {
		return nil, err
	}

	var direct chat.Completer
	if cfg.Backend.FunctionCalling && hasTempKey {
		provider, err := backend.NewDirectProvider(ctx, tempKey, "")
		if err != nil {
			logging.L().Warn("direct provider unavailable, using backend chat", zap.Error(err))
		} else {
			direct = provider
		}
	}
	if err := chat.RegisterAll(registry, client, chat.TokenFunc(tokenFn), direct); err != nil {
		return nil, err
	}

	return registry, nil
}

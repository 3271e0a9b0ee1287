// Package orchestrator turns a user question into an executed plan and
// a synthesized answer. It owns the request state machine: classify,
// plan, execute each step through the retry wrapper, aggregate, and
// pass the result through the quality gate.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Spectating101/cite-agent-sub002/internal/auth"
	"github.com/Spectating101/cite-agent-sub002/internal/backend"
	"github.com/Spectating101/cite-agent-sub002/internal/gate"
	"github.com/Spectating101/cite-agent-sub002/internal/logging"
	"github.com/Spectating101/cite-agent-sub002/internal/tools"
	"github.com/Spectating101/cite-agent-sub002/internal/usage"
)

// State tracks where a request is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateClassifying
	StatePlanning
	StateExecuting
	StateAggregating
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateClassifying:
		return "classifying"
	case StatePlanning:
		return "planning"
	case StateExecuting:
		return "executing"
	case StateAggregating:
		return "aggregating"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// StepRecord is the trace entry for one executed step. The trace is the
// ground truth for what actually ran; answer text is never parsed to
// reconstruct it.
type StepRecord struct {
	Index     int
	Tool      string
	Text      string
	Err       string
	Recovered bool
	Duration  int64 // milliseconds
}

// Trace records the executed steps of one request.
type Trace struct {
	Steps []StepRecord
}

// Result is the outcome of one orchestrated request.
type Result struct {
	Answer    string
	State     State
	Trace     Trace
	Truncated bool
	Category  string
}

// Options configures an Orchestrator.
type Options struct {
	StepBudget    int
	HistoryWindow int
	MaxConcurrent int
}

// Orchestrator coordinates session, tools, retries, usage, and gating
// for each request.
type Orchestrator struct {
	registry *tools.Registry
	sessions *auth.Manager
	retrier  *backend.Retrier
	gate     *gate.Gate
	ledger   *usage.Store // optional

	stepBudget    int
	historyWindow int
	maxConcurrent int
	log           *zap.Logger
}

// New creates an orchestrator. ledger may be nil when usage tracking is
// disabled.
func New(registry *tools.Registry, sessions *auth.Manager, retrier *backend.Retrier, g *gate.Gate, ledger *usage.Store, opts Options) *Orchestrator {
	if opts.StepBudget <= 0 {
		opts.StepBudget = 5
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 6
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	return &Orchestrator{
		registry:      registry,
		sessions:      sessions,
		retrier:       retrier,
		gate:          g,
		ledger:        ledger,
		stepBudget:    opts.StepBudget,
		historyWindow: opts.HistoryWindow,
		maxConcurrent: opts.MaxConcurrent,
		log:           logging.Orchestrator(),
	}
}

// Answer runs the full state machine for one question on a conversation.
func (o *Orchestrator) Answer(ctx context.Context, conv *Conversation, question string) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	if !conv.acquire() {
		return nil, fmt.Errorf("%w: %s", ErrConversationBusy, conv.ID)
	}
	defer conv.release()

	session, err := o.sessions.GetSession()
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoSession
	}

	estimate := estimateTokens(question)
	if o.ledger != nil {
		if err := o.ledger.CheckQuota(session.AccountID, estimate, session.DailyTokenLimit); err != nil {
			return nil, err
		}
	}

	result := &Result{State: StateClassifying}
	cls := Classify(question, conv.Recent(o.historyWindow))
	result.Category = cls.Category

	result.State = StatePlanning
	plan := BuildPlan(cls, o.stepBudget)
	result.Truncated = plan.Truncated
	o.log.Debug("planned request",
		zap.String("conversation", conv.ID),
		zap.Int("steps", len(plan.Steps)),
		zap.Bool("truncated", plan.Truncated),
		zap.String("category", cls.Category))

	result.State = StateExecuting
	outputs := make([]*tools.ToolResult, 0, len(plan.Steps))
	reauthed := false

	for _, step := range plan.Steps {
		// Cancellation is honored at step boundaries only; a running
		// step finishes before the flag is observed.
		if err := ctx.Err(); err != nil {
			result.State = StateAborted
			return result, err
		}

		args := resolveRefs(step.Args, outputs)
		stepResult, err := o.executeStep(ctx, step, args, &reauthed)
		record := StepRecord{Index: step.Index, Tool: step.Tool}
		if stepResult != nil {
			record.Text = stepResult.Text
			record.Duration = stepResult.Duration.Milliseconds()
		}
		if err != nil {
			record.Err = err.Error()
		}

		if err != nil {
			recoverable := stepResult != nil && stepResult.OnFailure == tools.FailContinue &&
				!errors.Is(err, tools.ErrToolNotFound)
			if recoverable {
				record.Recovered = true
				result.Trace.Steps = append(result.Trace.Steps, record)
				outputs = append(outputs, stepResult)
				o.log.Warn("step failed, continuing",
					zap.Int("step", step.Index),
					zap.String("tool", step.Tool),
					zap.Error(err))
				continue
			}

			result.Trace.Steps = append(result.Trace.Steps, record)
			result.State = StateAborted
			if errors.Is(err, backend.ErrBackendUnavailable) {
				result.Answer = "I'm sorry - the research backend is unreachable right now, so I can't answer that without making something up. Please try again in a little while."
			}
			return result, err
		}

		result.Trace.Steps = append(result.Trace.Steps, record)
		outputs = append(outputs, stepResult)
	}

	result.State = StateAggregating
	answer := aggregate(cls, plan, result.Trace)

	clean, verdict := o.gate.Filter(answer, cls.Category)
	if verdict == gate.Regenerate {
		// One regeneration: re-aggregate with full step detail.
		o.log.Debug("answer below floor, regenerating once")
		clean, _ = o.gate.Filter(aggregateVerbose(cls, plan, result.Trace), cls.Category)
	}
	result.Answer = clean

	if o.ledger != nil {
		spent := estimate + estimateTokens(result.Answer)
		if err := o.ledger.Record(session.AccountID, spent); err != nil {
			o.log.Warn("failed to record usage", zap.Error(err))
		}
	}

	conv.AddTurn("user", question)
	conv.AddTurn("assistant", result.Answer)

	result.State = StateDone
	return result, nil
}

// executeStep runs one tool invocation through the retry wrapper, with
// a single re-authentication on session expiry per request.
func (o *Orchestrator) executeStep(ctx context.Context, step Step, args map[string]any, reauthed *bool) (*tools.ToolResult, error) {
	var result *tools.ToolResult
	call := func(ctx context.Context) error {
		var err error
		result, err = o.registry.Execute(ctx, step.Tool, args)
		return err
	}

	err := o.retrier.Call(ctx, call)
	if err != nil && errors.Is(err, backend.ErrUnauthorized) && !*reauthed {
		*reauthed = true
		o.log.Info("session rejected mid-plan, attempting refresh")
		if o.sessions.Refresh(ctx) {
			err = o.retrier.Call(ctx, call)
		} else {
			return result, fmt.Errorf("%w: token refresh failed", auth.ErrSessionExpired)
		}
	}
	return result, err
}

// resolveRefs substitutes "$stepN" references with prior step outputs.
// An arg that is exactly a reference receives the typed payload; a
// reference embedded in a longer string is replaced by rendered text.
func resolveRefs(args map[string]any, outputs []*tools.ToolResult) map[string]any {
	resolved := make(map[string]any, len(args))
	for key, value := range args {
		s, ok := value.(string)
		if !ok {
			resolved[key] = value
			continue
		}
		if n, exact := parseStepRef(s); exact {
			if out := stepOutput(outputs, n); out != nil {
				if out.Payload != nil {
					resolved[key] = out.Payload
				} else {
					resolved[key] = out.Text
				}
				continue
			}
		}
		resolved[key] = replaceStepRefs(s, outputs)
	}
	return resolved
}

func parseStepRef(s string) (int, bool) {
	if !strings.HasPrefix(s, "$step") {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(s, "$step%d", &n); err != nil {
		return 0, false
	}
	return n, fmt.Sprintf("$step%d", n) == s
}

func replaceStepRefs(s string, outputs []*tools.ToolResult) string {
	for i := len(outputs); i >= 1; i-- {
		ref := fmt.Sprintf("$step%d", i)
		if strings.Contains(s, ref) {
			text := ""
			if out := stepOutput(outputs, i); out != nil {
				text = out.Text
			}
			s = strings.ReplaceAll(s, ref, text)
		}
	}
	return s
}

func stepOutput(outputs []*tools.ToolResult, n int) *tools.ToolResult {
	if n < 1 || n > len(outputs) {
		return nil
	}
	return outputs[n-1]
}

// aggregate composes the final answer. The last successful step leads;
// multi-step answers acknowledge intermediate findings; truncation is
// disclosed.
func aggregate(cls Classification, plan *Plan, trace Trace) string {
	var sb strings.Builder

	final := lastSuccess(trace)
	if final != nil {
		sb.WriteString(final.Text)
	}

	if cls.Kind == MultiStep {
		var intermediate []string
		for _, record := range trace.Steps {
			if final != nil && record.Index == final.Index {
				continue
			}
			if record.Err != "" || record.Text == "" {
				continue
			}
			intermediate = append(intermediate, fmt.Sprintf("- %s: %s",
				record.Tool, firstLine(record.Text)))
		}
		if len(intermediate) > 0 {
			sb.WriteString("\n\nAlong the way:\n")
			sb.WriteString(strings.Join(intermediate, "\n"))
		}
	}

	for _, record := range trace.Steps {
		if record.Recovered {
			fmt.Fprintf(&sb, "\n\n(The %s step failed and was skipped: %s)",
				record.Tool, record.Err)
		}
	}

	if plan.Truncated {
		sb.WriteString("\n\nNote: your request had more parts than I can run in one plan; the remaining parts were not executed. Ask them separately and I'll pick up from here.")
	}

	return strings.TrimSpace(sb.String())
}

// aggregateVerbose is the regeneration path: every successful step's
// full text, in order.
func aggregateVerbose(cls Classification, plan *Plan, trace Trace) string {
	var sb strings.Builder
	for _, record := range trace.Steps {
		if record.Err != "" || record.Text == "" {
			continue
		}
		fmt.Fprintf(&sb, "Step %d (%s): %s\n\n", record.Index, record.Tool, record.Text)
	}
	if plan.Truncated {
		sb.WriteString("Note: your request had more parts than I can run in one plan; the remaining parts were not executed.")
	}
	return strings.TrimSpace(sb.String())
}

func lastSuccess(trace Trace) *StepRecord {
	for i := len(trace.Steps) - 1; i >= 0; i-- {
		if trace.Steps[i].Err == "" && trace.Steps[i].Text != "" {
			return &trace.Steps[i]
		}
	}
	return nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// estimateTokens is the rough chars/4 heuristic used for quota math.
func estimateTokens(text string) int64 {
	return int64(len(text)/4 + 1)
}

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Spectating101/cite-agent-sub002/internal/auth"
	"github.com/Spectating101/cite-agent-sub002/internal/backend"
	"github.com/Spectating101/cite-agent-sub002/internal/gate"
	"github.com/Spectating101/cite-agent-sub002/internal/tools"
	"github.com/Spectating101/cite-agent-sub002/internal/tools/data"
	"github.com/Spectating101/cite-agent-sub002/internal/usage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// opencensus (pulled in by google.golang.org/genai) starts a
		// package-level worker goroutine in init that never exits.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

type fixture struct {
	orch     *Orchestrator
	registry *tools.Registry
	manager  *auth.Manager
	dir      string
}

// newFixture builds an orchestrator over a temp credentials dir with a
// valid session on disk. backendURL may be a dead address for tests
// that never touch the network.
func newFixture(t *testing.T, backendURL string) *fixture {
	t.Helper()
	dir := t.TempDir()

	session := &auth.Session{
		Email:     "kim@example.com",
		AuthToken: "tok",
		AccountID: "acct-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := auth.NewCredentialStore(dir).Save(session); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	client := backend.NewClient(backendURL, time.Second, time.Second)
	manager := auth.NewManager(client, auth.ManagerOptions{
		CredentialsDir: dir,
		LoginSchedule:  []time.Duration{time.Millisecond},
	})

	registry := tools.NewRegistry()
	if err := data.RegisterAll(registry); err != nil {
		t.Fatalf("register data tools: %v", err)
	}

	retrier := backend.NewRetrier([]time.Duration{time.Millisecond})
	retrier.Sleep = func(ctx context.Context, d time.Duration) error { return nil }

	f := &fixture{
		registry: registry,
		manager:  manager,
		dir:      dir,
	}
	f.orch = New(registry, manager, retrier, gate.New(nil), nil, Options{})
	return f
}

// registerChat installs a canned chat_completion tool and returns its
// call counter.
func registerChat(t *testing.T, registry *tools.Registry, reply string) *atomic.Int32 {
	t.Helper()
	var calls atomic.Int32
	registry.MustRegister(&tools.Tool{
		Name:     "chat_completion",
		Category: tools.CategoryChat,
		Execute: func(ctx context.Context, args map[string]any) (tools.Payload, error) {
			calls.Add(1)
			return tools.Text{Value: reply}, nil
		},
		Schema: tools.ToolSchema{Required: []string{"prompt"}},
	})
	return &calls
}

func writeScoresCSV(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "sample.csv")
	if err := os.WriteFile(path, []byte("name,score\nalpha,40\nbeta,55\ngamma,90\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnswerDatasetPipeline(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1")
	csv := writeScoresCSV(t, f.dir)

	conv := NewConversation(50)
	question := fmt.Sprintf("Load %s, compute the mean, then tell me if it's above 50", csv)
	result, err := f.orch.Answer(context.Background(), conv, question)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if result.State != StateDone {
		t.Errorf("State = %v, want Done", result.State)
	}

	// The trace, not the answer text, proves the multi-step execution.
	if len(result.Trace.Steps) != 3 {
		t.Fatalf("trace steps = %d, want 3", len(result.Trace.Steps))
	}
	wantTools := []string{"load_dataset", "analyze_dataset", "compare_values"}
	for i, record := range result.Trace.Steps {
		if record.Tool != wantTools[i] {
			t.Errorf("step %d tool = %s, want %s", i+1, record.Tool, wantTools[i])
		}
		if record.Err != "" {
			t.Errorf("step %d failed: %s", i+1, record.Err)
		}
	}

	if !strings.Contains(result.Answer, "61.67") {
		t.Errorf("answer does not reference the mean: %q", result.Answer)
	}
	if !strings.Contains(result.Answer, "above") {
		t.Errorf("answer does not reference the comparison: %q", result.Answer)
	}
	if result.Truncated {
		t.Error("three-step plan wrongly truncated")
	}
	if conv.Len() != 2 {
		t.Errorf("conversation turns = %d, want question+answer", conv.Len())
	}
}

func TestAnswerSingleStepChat(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1")
	calls := registerChat(t, f.registry, "Rayleigh scattering favors shorter wavelengths.")

	result, err := f.orch.Answer(context.Background(), NewConversation(50), "Why is the sky blue?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if len(result.Trace.Steps) != 1 {
		t.Errorf("trace steps = %d, want 1", len(result.Trace.Steps))
	}
	if calls.Load() != 1 {
		t.Errorf("chat calls = %d, want 1", calls.Load())
	}
	if !strings.Contains(result.Answer, "Rayleigh") {
		t.Errorf("answer = %q", result.Answer)
	}
}

func TestAnswerEmptyQuestion(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1")
	_, err := f.orch.Answer(context.Background(), NewConversation(50), "   ")
	if !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("err = %v, want ErrEmptyQuestion", err)
	}
}

func TestAnswerNoSession(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1")
	if err := f.manager.Logout(); err != nil {
		t.Fatal(err)
	}
	_, err := f.orch.Answer(context.Background(), NewConversation(50), "hello")
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
}

func TestAnswerQuotaExceeded(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1")

	// Session with a tiny daily limit, and a ledger that already has
	// spend against it.
	session := &auth.Session{
		Email:           "kim@example.com",
		AuthToken:       "tok",
		AccountID:       "acct-1",
		DailyTokenLimit: 100,
		ExpiresAt:       time.Now().Add(time.Hour),
	}
	if err := auth.NewCredentialStore(f.dir).Save(session); err != nil {
		t.Fatal(err)
	}
	ledger, err := usage.NewStore(filepath.Join(f.dir, "usage.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer ledger.Close()
	if err := ledger.Record("acct-1", 99); err != nil {
		t.Fatal(err)
	}

	retrier := backend.NewRetrier([]time.Duration{time.Millisecond})
	retrier.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	orch := New(f.registry, f.manager, retrier, gate.New(nil), ledger, Options{})

	_, err = orch.Answer(context.Background(), NewConversation(50), "Why is the sky blue?")
	if !errors.Is(err, usage.ErrQuotaExceeded) {
		t.Errorf("err = %v, want ErrQuotaExceeded", err)
	}
}

func TestAnswerCancelledBeforeFirstStep(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1")
	registerChat(t, f.registry, "unused")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.orch.Answer(ctx, NewConversation(50), "Why is the sky blue?")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if result.State != StateAborted {
		t.Errorf("State = %v, want Aborted", result.State)
	}
	if len(result.Trace.Steps) != 0 {
		t.Errorf("cancelled request executed %d steps", len(result.Trace.Steps))
	}
}

func TestAnswerTruncatedAtBudget(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1")
	calls := registerChat(t, f.registry, "A summary sentence that clears the length floor.")

	question := "1. summarize alpha 2. summarize beta 3. summarize gamma 4. summarize delta 5. summarize epsilon 6. summarize zeta 7. summarize eta"
	result, err := f.orch.Answer(context.Background(), NewConversation(50), question)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !result.Truncated {
		t.Fatal("overflowing request not flagged Truncated")
	}
	if len(result.Trace.Steps) != 5 {
		t.Errorf("trace steps = %d, want budget cap of 5", len(result.Trace.Steps))
	}
	// Dropped steps are dropped, not executed.
	if calls.Load() != 5 {
		t.Errorf("tool calls = %d, want 5", calls.Load())
	}
	if !strings.Contains(result.Answer, "not executed") {
		t.Errorf("truncated answer lacks disclosure: %q", result.Answer)
	}
}

func TestAnswerRecoverableFailureContinues(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1")
	registerChat(t, f.registry, "The findings, in short, are that cats remain popular.")
	f.registry.MustRegister(&tools.Tool{
		Name:      "web_search",
		Category:  tools.CategoryResearch,
		OnFailure: tools.FailContinue,
		Execute: func(ctx context.Context, args map[string]any) (tools.Payload, error) {
			return nil, errors.New("search backend down")
		},
		Schema: tools.ToolSchema{Required: []string{"query"}},
	})

	result, err := f.orch.Answer(context.Background(), NewConversation(50),
		"Search the web for cats, then summarize the findings")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if result.State != StateDone {
		t.Errorf("State = %v, want Done", result.State)
	}
	if len(result.Trace.Steps) != 2 {
		t.Fatalf("trace steps = %d, want 2", len(result.Trace.Steps))
	}
	if !result.Trace.Steps[0].Recovered {
		t.Error("failed recoverable step not marked Recovered")
	}
	if !strings.Contains(result.Answer, "skipped") {
		t.Errorf("answer does not disclose the skipped step: %q", result.Answer)
	}
}

func TestAnswerAbortsOnFatalToolFailure(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1")

	result, err := f.orch.Answer(context.Background(), NewConversation(50),
		"Load absent.csv, then compute the mean")
	if err == nil {
		t.Fatal("expected error for missing dataset")
	}
	if result.State != StateAborted {
		t.Errorf("State = %v, want Aborted", result.State)
	}
	if len(result.Trace.Steps) != 1 {
		t.Errorf("trace steps = %d, want 1 (no steps after the failure)", len(result.Trace.Steps))
	}
}

func TestAnswerBackendUnavailableApology(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1")
	f.registry.MustRegister(&tools.Tool{
		Name:     "academic_search",
		Category: tools.CategoryResearch,
		Execute: func(ctx context.Context, args map[string]any) (tools.Payload, error) {
			return nil, fmt.Errorf("%w after 4 attempts", backend.ErrBackendUnavailable)
		},
		Schema: tools.ToolSchema{Required: []string{"query"}},
	})

	result, err := f.orch.Answer(context.Background(), NewConversation(50), "Find papers on cats")
	if !errors.Is(err, backend.ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable", err)
	}
	if result.State != StateAborted {
		t.Errorf("State = %v, want Aborted", result.State)
	}
	if !strings.Contains(result.Answer, "sorry") {
		t.Errorf("no apology in answer: %q", result.Answer)
	}
	// No fabricated findings.
	if strings.Contains(result.Answer, "paper") && strings.Contains(result.Answer, "found") {
		t.Errorf("answer fabricates data: %q", result.Answer)
	}
}

func TestAnswerReauthenticatesOnceOnExpiry(t *testing.T) {
	refreshes := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			refreshes++
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "tok-new",
				"user_id":      "acct-1",
				"expires_at":   time.Now().Add(time.Hour).Unix(),
			})
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL)
	var calls atomic.Int32
	f.registry.MustRegister(&tools.Tool{
		Name:     "chat_completion",
		Category: tools.CategoryChat,
		Execute: func(ctx context.Context, args map[string]any) (tools.Payload, error) {
			if calls.Add(1) == 1 {
				return nil, fmt.Errorf("%w: token expired", backend.ErrUnauthorized)
			}
			return tools.Text{Value: "An answer produced after re-authentication."}, nil
		},
		Schema: tools.ToolSchema{Required: []string{"prompt"}},
	})

	result, err := f.orch.Answer(context.Background(), NewConversation(50), "Why is the sky blue?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if result.State != StateDone {
		t.Errorf("State = %v, want Done", result.State)
	}
	if refreshes != 1 {
		t.Errorf("refresh calls = %d, want exactly 1", refreshes)
	}
	if calls.Load() != 2 {
		t.Errorf("tool calls = %d, want 2 (fail, then retry after refresh)", calls.Load())
	}

	session, err := f.manager.GetSession()
	if err != nil || session == nil {
		t.Fatalf("GetSession after refresh: %v, %v", session, err)
	}
	if session.AuthToken != "tok-new" {
		t.Errorf("AuthToken = %q, want refreshed token", session.AuthToken)
	}
}

func TestAnswerExpiryWithFailedRefresh(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1")
	f.registry.MustRegister(&tools.Tool{
		Name:     "chat_completion",
		Category: tools.CategoryChat,
		Execute: func(ctx context.Context, args map[string]any) (tools.Payload, error) {
			return nil, fmt.Errorf("%w: token expired", backend.ErrUnauthorized)
		},
		Schema: tools.ToolSchema{Required: []string{"prompt"}},
	})

	_, err := f.orch.Answer(context.Background(), NewConversation(50), "Why is the sky blue?")
	if !errors.Is(err, auth.ErrSessionExpired) {
		t.Errorf("err = %v, want ErrSessionExpired", err)
	}
}

func TestAnswerRegeneratesThinResponseOnce(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1")
	registerChat(t, f.registry, "ok")

	retrier := backend.NewRetrier([]time.Duration{time.Millisecond})
	retrier.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	strict := gate.New(map[string]int{"general": 1000})
	orch := New(f.registry, f.manager, retrier, strict, nil, Options{})

	result, err := orch.Answer(context.Background(), NewConversation(50), "Why is the sky blue?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	// The regenerated form carries per-step detail.
	if !strings.Contains(result.Answer, "Step 1") {
		t.Errorf("regenerated answer = %q", result.Answer)
	}
}

func TestAnswerConversationBusy(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1")
	conv := NewConversation(50)
	if !conv.acquire() {
		t.Fatal("setup acquire failed")
	}
	defer conv.release()

	_, err := f.orch.Answer(context.Background(), conv, "hello")
	if !errors.Is(err, ErrConversationBusy) {
		t.Errorf("err = %v, want ErrConversationBusy", err)
	}
}

func TestAnswerBatchIndependentConversations(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1")
	registerChat(t, f.registry, "A perfectly serviceable answer to the question.")

	requests := []BatchRequest{
		{Conversation: NewConversation(50), Question: "Why is the sky blue?"},
		{Conversation: NewConversation(50), Question: "Why is grass green?"},
		{Conversation: NewConversation(50), Question: "Why is snow white?"},
	}
	results := f.orch.AnswerBatch(context.Background(), requests)

	if len(results) != len(requests) {
		t.Fatalf("results = %d, want %d", len(results), len(requests))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Errorf("request %d failed: %v", i, r.Err)
			continue
		}
		if r.Result.State != StateDone {
			t.Errorf("request %d state = %v", i, r.Result.State)
		}
	}
	for i, req := range requests {
		if req.Conversation.Len() != 2 {
			t.Errorf("conversation %d turns = %d, want 2", i, req.Conversation.Len())
		}
	}
}

// Package tools provides the capability registry for the assistant.
//
// Each capability (shell execution, file I/O, academic search, financial
// lookup, dataset analysis) is a standalone Tool registered here. The
// orchestrator selects tools by name when executing a plan and consumes
// their typed payloads rather than re-parsing rendered text.
package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Spectating101/cite-agent-sub002/internal/backend"
)

// ToolCategory classifies tools for capability-based plan construction.
type ToolCategory string

const (
	// CategoryShell covers command execution and file I/O.
	CategoryShell ToolCategory = "/shell"

	// CategoryResearch covers academic and web search.
	CategoryResearch ToolCategory = "/research"

	// CategoryFinance covers financial data lookups.
	CategoryFinance ToolCategory = "/finance"

	// CategoryData covers dataset load and analysis.
	CategoryData ToolCategory = "/data"

	// CategoryChat covers model-backed synthesis.
	CategoryChat ToolCategory = "/chat"

	// CategoryGeneral is for tools usable in any plan.
	CategoryGeneral ToolCategory = "/general"
)

// FailureMode declares how the orchestrator reacts when this tool fails
// mid-plan. The mode is a property of the tool, not of the plan.
type FailureMode int

const (
	// FailAbort stops the plan; remaining steps are not executed.
	FailAbort FailureMode = iota

	// FailContinue records the failure and lets the plan proceed. Used
	// for enrichment steps whose absence still permits a useful answer.
	FailContinue
)

// Payload is the typed result of a tool execution. Concrete types carry
// structured data so downstream consumers never parse rendered text.
type Payload interface {
	// Render produces the human-readable form of the payload.
	Render() string

	payload()
}

// Text is a plain-text payload for tools without richer structure.
type Text struct {
	Value string
}

func (t Text) Render() string { return t.Value }
func (Text) payload()         {}

// PaperList carries academic search results.
type PaperList struct {
	Query  string
	Papers []backend.Paper
}

func (p PaperList) Render() string {
	if len(p.Papers) == 0 {
		return fmt.Sprintf("No papers found for %q.", p.Query)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d papers for %q:\n", len(p.Papers), p.Query)
	for i, paper := range p.Papers {
		fmt.Fprintf(&sb, "%d. %s", i+1, paper.Title)
		if len(paper.Authors) > 0 {
			fmt.Fprintf(&sb, " - %s", strings.Join(paper.Authors, ", "))
		}
		if paper.Year > 0 {
			fmt.Fprintf(&sb, " (%d)", paper.Year)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
func (PaperList) payload() {}

// FinancialSeries carries a financial metric series.
type FinancialSeries struct {
	Series *backend.Series
}

func (f FinancialSeries) Render() string {
	s := f.Series
	if s == nil || len(s.Points) == 0 {
		return "No data points returned."
	}
	latest := s.Points[len(s.Points)-1]
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s: latest %g (%s), %d points", s.Symbol, s.Metric,
		latest.Value, latest.Date, len(s.Points))
	return sb.String()
}
func (FinancialSeries) payload() {}

// FileContent carries the contents of a read file.
type FileContent struct {
	Path    string
	Content string
}

func (f FileContent) Render() string { return f.Content }
func (FileContent) payload()         {}

// ShellOutput carries the result of a command execution.
type ShellOutput struct {
	Command  string
	Output   string
	ExitCode int
}

func (s ShellOutput) Render() string { return s.Output }
func (ShellOutput) payload()         {}

// DatasetSummary carries a loaded dataset: column names, row count, and
// the numeric columns parsed for analysis.
type DatasetSummary struct {
	Path    string
	Rows    int
	Columns []string

	// Numeric maps column name to its parsed values. Non-numeric
	// columns are absent.
	Numeric map[string][]float64
}

func (d DatasetSummary) Render() string {
	return fmt.Sprintf("Loaded %s: %d rows, columns [%s]",
		d.Path, d.Rows, strings.Join(d.Columns, ", "))
}
func (DatasetSummary) payload() {}

// Property describes a single parameter for argument validation and
// model-side tool schemas.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// ToolSchema defines the expected arguments for a tool.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
type ExecuteFunc func(ctx context.Context, args map[string]any) (Payload, error)

// Tool defines a registered capability.
type Tool struct {
	// Name is the unique identifier used by plans.
	Name string

	// Description explains what the tool does.
	Description string

	// Category classifies the tool.
	Category ToolCategory

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema

	// Priority is used when multiple tools in a category match.
	// Higher priority tools are preferred (default 50).
	Priority int

	// OnFailure declares whether a failure aborts the plan or the plan
	// continues without this step's output.
	OnFailure FailureMode
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// ToolResult wraps the result of a tool execution with metadata.
type ToolResult struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// Payload is the typed result; nil when the tool failed.
	Payload Payload

	// Text is the rendered form of the payload.
	Text string

	// Err is set if the tool failed.
	Err error

	// Duration is how long execution took.
	Duration time.Duration

	// OnFailure copies the tool's declared failure mode so plan
	// execution does not need a registry lookup.
	OnFailure FailureMode
}

// IsSuccess returns true if the tool executed without error.
func (r *ToolResult) IsSuccess() bool {
	return r.Err == nil
}

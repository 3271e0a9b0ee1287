package orchestrator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Step is one planned tool invocation. Args may reference a prior step's
// output as "$stepN" (1-based); references are resolved at execution.
type Step struct {
	Index       int
	Tool        string
	Args        map[string]any
	Description string
}

// Plan is an ordered sequence of steps derived from a classification.
type Plan struct {
	Steps []Step

	// Truncated is set when the step budget dropped trailing segments.
	// Dropped segments are never executed.
	Truncated bool
}

var (
	csvPathPattern   = regexp.MustCompile(`[\w./~-]+\.csv`)
	thresholdPattern = regexp.MustCompile(`(?i)(?:above|below|over|under|greater than|less than|at least|exceeds?)\s+\$?(-?\d+(?:\.\d+)?)`)
	backtickPattern  = regexp.MustCompile("`([^`]+)`")
	tickerPattern    = regexp.MustCompile(`\b[A-Z]{2,5}\b`)
	quotedPattern    = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
)

// BuildPlan maps each classified segment onto a tool invocation, capped
// at the step budget.
func BuildPlan(c Classification, budget int) *Plan {
	if budget <= 0 {
		budget = 5
	}

	plan := &Plan{}
	for i, segment := range c.Segments {
		if len(plan.Steps) >= budget {
			plan.Truncated = true
			break
		}
		step := planStep(segment, i, plan.Steps)
		step.Index = len(plan.Steps) + 1
		plan.Steps = append(plan.Steps, step)
	}
	return plan
}

// planStep picks the tool and arguments for one segment. prior carries
// the already-planned steps so follow-up segments can reference them.
func planStep(segment string, position int, prior []Step) Step {
	lower := strings.ToLower(segment)

	if csv := csvPathPattern.FindString(segment); csv != "" && containsAny(lower, "load", "open", "read") {
		return Step{
			Tool:        "load_dataset",
			Args:        map[string]any{"path": csv},
			Description: segment,
		}
	}

	if stat := statCue(lower); stat != "" {
		args := map[string]any{"stat": stat}
		if csv := csvPathPattern.FindString(segment); csv != "" {
			args["path"] = csv
		} else if ref := lastStepOf(prior, "load_dataset"); ref > 0 {
			args["dataset"] = fmt.Sprintf("$step%d", ref)
		}
		if col := columnCue(segment); col != "" {
			args["column"] = col
		}
		return Step{Tool: "analyze_dataset", Args: args, Description: segment}
	}

	if m := thresholdPattern.FindStringSubmatch(segment); m != nil {
		threshold, _ := strconv.ParseFloat(m[1], 64)
		op := "above"
		if containsAny(lower, "below", "under", "less than") {
			op = "below"
		}
		args := map[string]any{"threshold": threshold, "op": op}
		if ref := len(prior); ref > 0 {
			args["value"] = fmt.Sprintf("$step%d", ref)
		} else {
			args["value"] = segment
		}
		return Step{Tool: "compare_values", Args: args, Description: segment}
	}

	if containsAny(lower, "paper", "literature", "studies", "study on", "citation", "published") {
		return Step{
			Tool:        "academic_search",
			Args:        map[string]any{"query": searchQuery(segment)},
			Description: segment,
		}
	}

	if containsAny(lower, "search the web", "web search", "look up online") {
		return Step{
			Tool:        "web_search",
			Args:        map[string]any{"query": searchQuery(segment)},
			Description: segment,
		}
	}

	if metric := financeMetric(lower); metric != "" {
		args := map[string]any{"metric": metric}
		if sym := tickerPattern.FindString(segment); sym != "" {
			args["symbol"] = sym
		}
		return Step{Tool: "financial_series", Args: args, Description: segment}
	}

	if cmd := commandCue(segment, lower); cmd != "" {
		return Step{
			Tool:        "run_command",
			Args:        map[string]any{"command": cmd},
			Description: segment,
		}
	}

	if containsAny(lower, "list the files", "list files", "list the directory", "what's in the directory") {
		path := "."
		if m := backtickPattern.FindStringSubmatch(segment); m != nil {
			path = m[1]
		}
		return Step{Tool: "list_dir", Args: map[string]any{"path": path}, Description: segment}
	}

	if containsAny(lower, "read the file", "show the file", "contents of") {
		if m := backtickPattern.FindStringSubmatch(segment); m != nil {
			return Step{Tool: "read_file", Args: map[string]any{"path": m[1]}, Description: segment}
		}
	}

	// Everything else is synthesized. Prior results are woven into the
	// prompt so follow-up segments see what came before.
	prompt := segment
	if ref := len(prior); ref > 0 {
		prompt = fmt.Sprintf("Given this earlier result: $step%d\n\n%s", ref, segment)
	}
	return Step{Tool: "chat_completion", Args: map[string]any{"prompt": prompt}, Description: segment}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func statCue(lower string) string {
	switch {
	case strings.Contains(lower, "median"):
		return "median"
	case strings.Contains(lower, "stdev"), strings.Contains(lower, "standard deviation"):
		return "stdev"
	case strings.Contains(lower, "mean"), strings.Contains(lower, "average"):
		return "mean"
	}
	return ""
}

// columnCue extracts "the mean of X" style column names.
var columnOfPattern = regexp.MustCompile(`(?i)(?:mean|median|stdev|standard deviation|average)\s+of\s+(?:the\s+)?(\w+)`)

func columnCue(segment string) string {
	if m := columnOfPattern.FindStringSubmatch(segment); m != nil {
		col := strings.ToLower(m[1])
		if col != "the" && col != "it" && col != "them" {
			return col
		}
	}
	return ""
}

func financeMetric(lower string) string {
	switch {
	case strings.Contains(lower, "revenue"):
		return "revenue"
	case strings.Contains(lower, "stock price"), strings.Contains(lower, "share price"):
		return "close"
	case strings.Contains(lower, "exchange rate"):
		return "rate"
	case strings.Contains(lower, "earnings"):
		return "earnings"
	}
	return ""
}

func commandCue(segment, lower string) string {
	if !containsAny(lower, "run ", "execute ") {
		return ""
	}
	if m := backtickPattern.FindStringSubmatch(segment); m != nil {
		return m[1]
	}
	return ""
}

// searchQuery strips question scaffolding, preferring a quoted phrase.
func searchQuery(segment string) string {
	if m := quotedPattern.FindStringSubmatch(segment); m != nil {
		if m[1] != "" {
			return m[1]
		}
		return m[2]
	}
	query := segment
	for _, prefix := range []string{
		"find papers on ", "find papers about ", "search for papers on ",
		"search the web for ", "find literature on ", "look up ",
	} {
		if idx := strings.Index(strings.ToLower(query), prefix); idx >= 0 {
			query = query[idx+len(prefix):]
			break
		}
	}
	return strings.TrimSpace(query)
}

// lastStepOf returns the 1-based index of the most recent planned step
// using the given tool, or 0.
func lastStepOf(steps []Step, tool string) int {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Tool == tool {
			return steps[i].Index
		}
	}
	return 0
}

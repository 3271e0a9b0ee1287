package orchestrator

import (
	"regexp"
	"strings"
)

// QuestionKind distinguishes single-step from multi-step requests.
type QuestionKind int

const (
	// SingleStep questions resolve with one tool invocation.
	SingleStep QuestionKind = iota

	// MultiStep questions decompose into an ordered sequence.
	MultiStep
)

// Classification is the deterministic judgement of a question. It is a
// pure function of (question, history); no model call is involved.
type Classification struct {
	Kind QuestionKind

	// Segments are the ordered sub-requests of a multi-step question.
	// A single-step question has exactly one segment.
	Segments []string

	// Category labels the dominant capability for gate thresholds.
	Category string
}

// Sequencing connectors that split a question into ordered segments.
// Matched at clause boundaries, lowercase.
var connectorPattern = regexp.MustCompile(
	`(?i)(?:,\s+and\s+then\s+|,\s+then\s+|\s+and\s+then\s+|\s+then\s+|,?\s*after\s+that,?\s+|,?\s*finally,?\s+|,?\s*next,?\s+)`)

// Numbered lists ("1. do x 2. do y") also mark an ordered sequence.
var numberedItemPattern = regexp.MustCompile(`(?m)(?:^|\s)(\d+)[.)]\s+`)

// Classify inspects a question and recent history and decides whether it
// is a single request or an ordered multi-step one. Deterministic: the
// same (question, history) pair always yields the same classification.
func Classify(question string, history []string) Classification {
	question = strings.TrimSpace(question)

	segments := splitSegments(question)

	kind := SingleStep
	if len(segments) > 1 {
		kind = MultiStep
	}

	return Classification{
		Kind:     kind,
		Segments: segments,
		Category: categorize(question, history),
	}
}

// splitSegments carves an ordered question into its sub-requests.
func splitSegments(question string) []string {
	var parts []string

	if locs := numberedItemPattern.FindAllStringIndex(question, -1); len(locs) >= 2 {
		// Numbered list: the text between markers is one segment each.
		for i, loc := range locs {
			start := loc[1]
			end := len(question)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			parts = append(parts, question[start:end])
		}
	} else {
		parts = connectorPattern.Split(question, -1)
	}

	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		for _, sub := range splitImperativeClauses(p) {
			sub = strings.Trim(strings.TrimSpace(sub), ".,;")
			if sub != "" {
				segments = append(segments, sub)
			}
		}
	}
	if len(segments) == 0 {
		segments = []string{question}
	}
	return segments
}

// Imperative verbs that open a new sub-request after a comma, as in
// "load sample.csv, compute the mean".
var imperativeVerbs = []string{
	"load", "compute", "calculate", "compare", "check", "tell",
	"find", "search", "fetch", "get", "run", "list", "read",
	"write", "summarize", "look",
}

// splitImperativeClauses splits "do x, do y" chains where each comma is
// followed by a known imperative verb.
func splitImperativeClauses(s string) []string {
	parts := strings.Split(s, ",")
	if len(parts) == 1 {
		return parts
	}

	var out []string
	current := parts[0]
	for _, part := range parts[1:] {
		if startsWithImperative(part) {
			out = append(out, current)
			current = part
		} else {
			current += "," + part
		}
	}
	return append(out, current)
}

func startsWithImperative(clause string) bool {
	first := strings.ToLower(strings.TrimSpace(clause))
	for _, verb := range imperativeVerbs {
		if strings.HasPrefix(first, verb+" ") {
			return true
		}
	}
	return false
}

// Capability cues, checked in priority order.
var categoryCues = []struct {
	category string
	cues     []string
}{
	{"data", []string{".csv", "dataset", "the mean", "the median", "stdev", "standard deviation", "average of"}},
	{"finance", []string{"revenue", "stock price", "share price", "ticker", "exchange rate", "earnings", "quarterly"}},
	{"research", []string{"paper", "papers", "literature", "study", "studies", "citation", "published", "search the web", "look up"}},
	{"shell", []string{"run the command", "execute", "list the files", "directory", "read the file", "write a file"}},
}

// categorize labels the dominant capability of a question. The current
// question wins; history breaks ties for bare follow-ups ("and the
// median?").
func categorize(question string, history []string) string {
	if c := matchCategory(question); c != "" {
		return c
	}
	for i := len(history) - 1; i >= 0; i-- {
		if c := matchCategory(history[i]); c != "" {
			return c
		}
	}
	return "general"
}

func matchCategory(text string) string {
	lower := strings.ToLower(text)
	for _, entry := range categoryCues {
		for _, cue := range entry.cues {
			if strings.Contains(lower, cue) {
				return entry.category
			}
		}
	}
	return ""
}

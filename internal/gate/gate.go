// Package gate filters raw model output before it reaches the user.
//
// Model responses sometimes leak tool-invocation JSON, planning
// narration, or terminal control sequences. The gate strips those and
// enforces a minimum answer length per question category, surfacing at
// most one regeneration request to the orchestrator.
package gate

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/Spectating101/cite-agent-sub002/internal/logging"
)

// Verdict is the gate's judgement of a cleaned response.
type Verdict int

const (
	// Pass means the cleaned response can be shown to the user.
	Pass Verdict = iota

	// Regenerate means the response is too thin after cleaning and the
	// orchestrator should request one regeneration.
	Regenerate
)

// Gate holds per-category minimum answer lengths.
type Gate struct {
	minChars map[string]int
	log      *zap.Logger
}

// defaultMinChars applies when a category has no configured floor.
const defaultMinChars = 20

// New creates a gate. minChars maps question category to the minimum
// acceptable answer length in characters.
func New(minChars map[string]int) *Gate {
	if minChars == nil {
		minChars = map[string]int{}
	}
	return &Gate{minChars: minChars, log: logging.Gate()}
}

// Filter cleans raw model output and judges whether it is substantial
// enough for the question category.
func (g *Gate) Filter(raw, category string) (string, Verdict) {
	clean := Clean(raw)

	floor, ok := g.minChars[category]
	if !ok {
		floor = defaultMinChars
	}
	if len(clean) < floor {
		g.log.Debug("response below length floor",
			zap.String("category", category),
			zap.Int("length", len(clean)),
			zap.Int("floor", floor))
		return clean, Regenerate
	}
	return clean, Pass
}

var (
	ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

	// Fenced code blocks that contain a tool invocation.
	fencedToolPattern = regexp.MustCompile("(?s)```[a-zA-Z]*\n?[^`]*\"tool\"[^`]*```")

	narrationPrefixes = []string{
		"we need to",
		"let's try",
		"let me",
		"i will now",
		"i'll now",
		"first, i will",
		"next, i will",
		"now i will",
		"i am going to",
	}
)

// Clean strips tool-invocation JSON, planning narration, ANSI escape
// sequences, and control characters from raw model output.
func Clean(raw string) string {
	s := fencedToolPattern.ReplaceAllString(raw, "")
	s = stripToolJSON(s)
	s = ansiPattern.ReplaceAllString(s, "")
	s = stripControlChars(s)
	s = stripNarration(s)
	s = collapseBlankLines(s)
	return strings.TrimSpace(s)
}

// stripToolJSON removes balanced JSON objects that begin with a "tool"
// key, wherever they appear in the text.
func stripToolJSON(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '{' && looksLikeToolCall(s[i:]) {
			end := matchBrace(s, i)
			if end > i {
				i = end
				continue
			}
		}
		sb.WriteByte(s[i])
		i++
	}
	return sb.String()
}

// looksLikeToolCall reports whether the text starting at an opening
// brace opens a {"tool": ...} object, tolerating whitespace.
func looksLikeToolCall(s string) bool {
	rest := strings.TrimLeft(s[1:], " \t\n")
	return strings.HasPrefix(rest, `"tool"`)
}

// matchBrace returns the index one past the brace matching s[start],
// honoring JSON string escapes. Returns start when unbalanced.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return start
}

// stripControlChars drops control characters except newline and tab.
func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// stripNarration drops lines that open with planning narration.
func stripNarration(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		lower := strings.ToLower(strings.TrimSpace(line))
		narration := false
		for _, prefix := range narrationPrefixes {
			if strings.HasPrefix(lower, prefix) {
				narration = true
				break
			}
		}
		if !narration {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
			out = append(out, "")
			continue
		}
		blank = 0
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

package gate

import (
	"strings"
	"testing"
)

func TestCleanStripsEmbeddedToolJSON(t *testing.T) {
	raw := `The directory listing shows three files. {"tool": "shell", "cmd": "ls"} Those are the relevant ones.`
	clean := Clean(raw)

	if strings.Contains(clean, `{"tool"`) {
		t.Errorf("tool JSON survived: %q", clean)
	}
	if strings.Contains(clean, `"cmd"`) {
		t.Errorf("tool arguments survived: %q", clean)
	}
	if !strings.Contains(clean, "three files") || !strings.Contains(clean, "relevant ones") {
		t.Errorf("surrounding prose damaged: %q", clean)
	}
}

func TestCleanStripsNestedToolJSON(t *testing.T) {
	raw := `Answer: {"tool": "analyze", "args": {"column": "score", "opts": {"stat": "mean"}}} done.`
	clean := Clean(raw)
	if strings.Contains(clean, "tool") || strings.Contains(clean, "{") {
		t.Errorf("nested tool JSON survived: %q", clean)
	}
}

func TestCleanKeepsOrdinaryJSON(t *testing.T) {
	raw := `The config is {"debug": true} as shipped.`
	clean := Clean(raw)
	if !strings.Contains(clean, `{"debug": true}`) {
		t.Errorf("ordinary JSON was stripped: %q", clean)
	}
}

func TestCleanStripsFencedToolBlock(t *testing.T) {
	raw := "Here is the result.\n```json\n{\"tool\": \"shell\", \"cmd\": \"ls\"}\n```\nAll done."
	clean := Clean(raw)
	if strings.Contains(clean, "tool") || strings.Contains(clean, "```") {
		t.Errorf("fenced tool block survived: %q", clean)
	}
	if !strings.Contains(clean, "All done.") {
		t.Errorf("prose after block lost: %q", clean)
	}
}

func TestCleanStripsNarrationLines(t *testing.T) {
	raw := "We need to check the dataset first.\nThe mean score is 61.67.\nLet's try comparing it against 50.\nIt is above the threshold."
	clean := Clean(raw)
	if strings.Contains(clean, "We need to") || strings.Contains(clean, "Let's try") {
		t.Errorf("narration survived: %q", clean)
	}
	if !strings.Contains(clean, "mean score is 61.67") || !strings.Contains(clean, "above the threshold") {
		t.Errorf("substance lost: %q", clean)
	}
}

func TestCleanStripsANSIAndControlChars(t *testing.T) {
	raw := "\x1b[1mBold claim\x1b[0m with a bell\x07 and\ttab."
	clean := Clean(raw)
	if strings.Contains(clean, "\x1b") || strings.Contains(clean, "\x07") {
		t.Errorf("control sequences survived: %q", clean)
	}
	if clean != "Bold claim with a bell and\ttab." {
		t.Errorf("clean = %q", clean)
	}
}

func TestCleanCollapsesBlankRuns(t *testing.T) {
	raw := "First paragraph.\n\n\n\nSecond paragraph."
	clean := Clean(raw)
	if strings.Contains(clean, "\n\n\n") {
		t.Errorf("blank run survived: %q", clean)
	}
}

func TestFilterLengthFloor(t *testing.T) {
	g := New(map[string]int{"research": 80})

	clean, verdict := g.Filter("Too short.", "research")
	if verdict != Regenerate {
		t.Errorf("verdict = %v, want Regenerate", verdict)
	}
	if clean != "Too short." {
		t.Errorf("clean = %q", clean)
	}

	long := strings.Repeat("A substantial sentence about the findings. ", 4)
	if _, verdict := g.Filter(long, "research"); verdict != Pass {
		t.Errorf("verdict = %v, want Pass", verdict)
	}
}

func TestFilterUnknownCategoryUsesDefaultFloor(t *testing.T) {
	g := New(nil)
	if _, verdict := g.Filter("ok", "unknown"); verdict != Regenerate {
		t.Errorf("two chars should be below the default floor")
	}
	if _, verdict := g.Filter("This answer is long enough to pass.", "unknown"); verdict != Pass {
		t.Errorf("verdict = %v, want Pass", verdict)
	}
}

func TestFilterGatesToolLeakScenario(t *testing.T) {
	g := New(nil)
	raw := `Sure - the listing follows. {"tool": "shell", "cmd": "ls"} The directory contains sample.csv and notes.txt.`
	clean, verdict := g.Filter(raw, "general")
	if verdict != Pass {
		t.Fatalf("verdict = %v, want Pass", verdict)
	}
	if strings.Contains(clean, `{"tool"`) {
		t.Errorf("gated output leaks tool JSON: %q", clean)
	}
	if strings.ContainsAny(clean, "{}") {
		t.Errorf("gated output contains JSON-shaped substring: %q", clean)
	}
}

package research

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Spectating101/cite-agent-sub002/internal/backend"
	"github.com/Spectating101/cite-agent-sub002/internal/tools"
)

const sampleResultsPage = `<html><body>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.org%2Fpaper">Example Paper Page</a>
  <a class="result__snippet" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.org%2Fpaper">A snippet about the paper.</a>
</div>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="https://example.com/direct">Direct Result</a>
</div>
</body></html>`

func TestParseSearchResults(t *testing.T) {
	results, err := parseSearchResults(sampleResultsPage, 10)
	if err != nil {
		t.Fatalf("parseSearchResults: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Title != "Example Paper Page" {
		t.Errorf("Title = %q", results[0].Title)
	}
	if results[0].URL != "https://example.org/paper" {
		t.Errorf("redirect not unwrapped: %q", results[0].URL)
	}
	if results[0].Snippet != "A snippet about the paper." {
		t.Errorf("Snippet = %q", results[0].Snippet)
	}
	if results[1].URL != "https://example.com/direct" {
		t.Errorf("direct URL mangled: %q", results[1].URL)
	}
}

func TestParseSearchResultsRespectsLimit(t *testing.T) {
	results, err := parseSearchResults(sampleResultsPage, 1)
	if err != nil {
		t.Fatalf("parseSearchResults: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestCleanRedirectURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://example.com/x", "https://example.com/x"},
		{"//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fy", "https://example.com/y"},
		{"//duckduckgo.com/l/?other=1", "//duckduckgo.com/l/?other=1"},
	}
	for _, tc := range cases {
		if got := cleanRedirectURL(tc.in); got != tc.want {
			t.Errorf("cleanRedirectURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAcademicSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want Bearer tok", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"papers": []map[string]any{
				{"title": "Attention Is All You Need", "authors": []string{"Vaswani"}, "year": 2017},
			},
		})
	}))
	defer srv.Close()

	client := backend.NewClient(srv.URL, 5*time.Second, 5*time.Second)
	tool := AcademicSearchTool(client, func() string { return "tok" })

	payload, err := tool.Execute(context.Background(), map[string]any{"query": "transformers"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	list, ok := payload.(tools.PaperList)
	if !ok {
		t.Fatalf("payload = %#v, want PaperList", payload)
	}
	if len(list.Papers) != 1 || list.Papers[0].Year != 2017 {
		t.Errorf("Papers = %#v", list.Papers)
	}
	rendered := list.Render()
	if !strings.Contains(rendered, "Attention Is All You Need - Vaswani (2017)") {
		t.Errorf("Render = %q", rendered)
	}
	for _, r := range rendered {
		if r > 127 {
			t.Errorf("Render contains non-ASCII rune %q", r)
		}
	}
}

func TestAcademicSearchEmptyQuery(t *testing.T) {
	client := backend.NewClient("http://127.0.0.1:1", time.Second, time.Second)
	tool := AcademicSearchTool(client, func() string { return "tok" })
	if _, err := tool.Execute(context.Background(), map[string]any{"query": ""}); err == nil {
		t.Fatal("expected error for empty query")
	}
}

package research

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/Spectating101/cite-agent-sub002/internal/logging"
	"github.com/Spectating101/cite-agent-sub002/internal/tools"
)

// SearchResult represents a single web search result.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearchTool returns a tool for searching the web via the DuckDuckGo
// HTML interface.
func WebSearchTool() *tools.Tool {
	return &tools.Tool{
		Name:        "web_search",
		Description: "Search the web for information using DuckDuckGo",
		Category:    tools.CategoryResearch,
		Priority:    70,
		OnFailure:   tools.FailContinue,
		Execute:     executeWebSearch,
		Schema: tools.ToolSchema{
			Required: []string{"query"},
			Properties: map[string]tools.Property{
				"query": {
					Type:        "string",
					Description: "The search query",
				},
				"max_results": {
					Type:        "integer",
					Description: "Maximum number of results to return (default: 10)",
					Default:     10,
				},
			},
		},
	}
}

func executeWebSearch(ctx context.Context, args map[string]any) (tools.Payload, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	maxResults := 10
	switch mr := args["max_results"].(type) {
	case int:
		if mr > 0 {
			maxResults = mr
		}
	case float64:
		if mr > 0 {
			maxResults = int(mr)
		}
	}
	if maxResults > 30 {
		maxResults = 30
	}

	logging.Tools().Debug("web_search",
		zap.String("query", query), zap.Int("max_results", maxResults))

	results, err := searchDuckDuckGo(ctx, query, maxResults)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		return tools.Text{Value: "No results found for: " + query}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results for %q:\n", len(results), query)
	for i, result := range results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, result.Title, result.URL)
		if result.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", result.Snippet)
		}
	}
	return tools.Text{Value: strings.TrimRight(sb.String(), "\n")}, nil
}

// searchDuckDuckGo performs a search using the DuckDuckGo HTML interface.
func searchDuckDuckGo(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	searchURL := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(query)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return parseSearchResults(string(body), maxResults)
}

// parseSearchResults extracts search results from DuckDuckGo HTML.
// Result blocks are divs with class "result results_links ...".
func parseSearchResults(htmlContent string, maxResults int) ([]SearchResult, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var results []SearchResult

	var findResults func(*html.Node)
	findResults = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}

		if n.Type == html.ElementNode && n.Data == "div" {
			class := getAttrValue(n, "class")
			if strings.Contains(class, "result") && strings.Contains(class, "results_links") {
				result := extractResult(n)
				if result.URL != "" && result.Title != "" {
					results = append(results, result)
				}
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findResults(c)
		}
	}

	findResults(doc)

	if len(results) == 0 {
		logging.Tools().Debug("web_search parse found no result blocks")
	}
	return results, nil
}

// extractResult extracts a single search result from a result div.
func extractResult(n *html.Node) SearchResult {
	var result SearchResult

	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			class := getAttrValue(n, "class")
			if strings.Contains(class, "result__a") {
				result.URL = cleanRedirectURL(getAttrValue(n, "href"))
				result.Title = getTextContent(n)
			} else if strings.Contains(class, "result__snippet") {
				result.Snippet = getTextContent(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}

	extract(n)
	return result
}

// cleanRedirectURL unwraps DuckDuckGo's redirect links.
func cleanRedirectURL(raw string) string {
	if !strings.Contains(raw, "duckduckgo.com/l/?uddg=") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return raw
}

func getAttrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func getTextContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

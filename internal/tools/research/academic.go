package research

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Spectating101/cite-agent-sub002/internal/backend"
	"github.com/Spectating101/cite-agent-sub002/internal/logging"
	"github.com/Spectating101/cite-agent-sub002/internal/tools"
)

// TokenFunc supplies the bearer token for backend-authenticated tools.
type TokenFunc func() string

// AcademicSearchTool returns a tool that queries the backend's academic
// paper index.
func AcademicSearchTool(client *backend.Client, token TokenFunc) *tools.Tool {
	return &tools.Tool{
		Name:        "academic_search",
		Description: "Search academic literature for papers matching a query",
		Category:    tools.CategoryResearch,
		Priority:    80,
		OnFailure:   tools.FailAbort,
		Execute: func(ctx context.Context, args map[string]any) (tools.Payload, error) {
			return executeAcademicSearch(ctx, client, token, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"query"},
			Properties: map[string]tools.Property{
				"query": {
					Type:        "string",
					Description: "The literature search query",
				},
				"limit": {
					Type:        "integer",
					Description: "Maximum number of papers to return (default: 10)",
					Default:     10,
				},
			},
		},
	}
}

func executeAcademicSearch(ctx context.Context, client *backend.Client, token TokenFunc, args map[string]any) (tools.Payload, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	limit := 10
	switch l := args["limit"].(type) {
	case int:
		if l > 0 {
			limit = l
		}
	case float64:
		if l > 0 {
			limit = int(l)
		}
	}

	logging.Tools().Debug("academic_search",
		zap.String("query", query), zap.Int("limit", limit))

	papers, err := client.SearchPapers(ctx, token(), query, limit)
	if err != nil {
		return nil, fmt.Errorf("academic search: %w", err)
	}
	return tools.PaperList{Query: query, Papers: papers}, nil
}

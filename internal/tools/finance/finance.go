// Package finance provides financial data lookup tools.
package finance

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

// SeriesLookupTool returns a tool that fetches a financial metric series
// for a symbol from the backend.
func SeriesLookupTool(client *backend.Client, token TokenFunc) *tools.Tool {
	return &tools.Tool{
		Name:        "financial_series",
		Description: "Fetch a financial data series (revenue, price, FX rate) for a symbol",
		Category:    tools.CategoryFinance,
		Priority:    80,
		OnFailure:   tools.FailAbort,
		Execute: func(ctx context.Context, args map[string]any) (tools.Payload, error) {
			return executeSeriesLookup(ctx, client, token, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"symbol", "metric"},
			Properties: map[string]tools.Property{
				"symbol": {
					Type:        "string",
					Description: "Ticker or series symbol, e.g. AAPL or EURUSD",
				},
				"metric": {
					Type:        "string",
					Description: "Metric name, e.g. revenue, close, rate",
				},
			},
		},
	}
}

func executeSeriesLookup(ctx context.Context, client *backend.Client, token TokenFunc, args map[string]any) (tools.Payload, error) {
	symbol, _ := args["symbol"].(string)
	metric, _ := args["metric"].(string)
	if symbol == "" || metric == "" {
		return nil, fmt.Errorf("symbol and metric are required")
	}

	logging.Tools().Debug("financial_series",
		zap.String("symbol", symbol), zap.String("metric", metric))

	series, err := client.FinancialSeries(ctx, token(), symbol, metric)
	if err != nil {
		return nil, fmt.Errorf("financial series %s/%s: %w", symbol, metric, err)
	}
	return tools.FinancialSeries{Series: series}, nil
}

// RegisterAll registers the finance tools with the given registry.
func RegisterAll(registry *tools.Registry, client *backend.Client, token TokenFunc) error {
	return registry.Register(SeriesLookupTool(client, token))
}

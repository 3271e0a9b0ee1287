// Package data provides dataset load, analysis, and comparison tools.
//
// Tools:
//   - load_dataset: parse a CSV file into a dataset summary
//   - analyze_dataset: compute mean/median/stdev over a column
//   - compare_values: compare a numeric value against a threshold
package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/Spectating101/cite-agent-sub002/internal/logging"
	"github.com/Spectating101/cite-agent-sub002/internal/tools"
)

// LoadDatasetTool returns a tool that parses a CSV file.
func LoadDatasetTool() *tools.Tool {
	return &tools.Tool{
		Name:        "load_dataset",
		Description: "Load a CSV dataset and summarize its columns",
		Category:    tools.CategoryData,
		Priority:    70,
		OnFailure:   tools.FailAbort,
		Execute:     executeLoadDataset,
		Schema: tools.ToolSchema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "Path of the CSV file to load",
				},
			},
		},
	}
}

func executeLoadDataset(ctx context.Context, args map[string]any) (tools.Payload, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}

	summary, err := loadCSV(path)
	if err != nil {
		return nil, err
	}
	logging.Tools().Debug("load_dataset",
		zap.String("path", path), zap.Int("rows", summary.Rows))
	return *summary, nil
}

// loadCSV parses a header-row CSV into a DatasetSummary. Columns whose
// every value parses as a float become numeric columns.
func loadCSV(path string) (*tools.DatasetSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("load %s: empty file", path)
	}

	header := records[0]
	rows := records[1:]

	numeric := make(map[string][]float64)
	for col, name := range header {
		values := make([]float64, 0, len(rows))
		ok := true
		for _, row := range rows {
			if col >= len(row) {
				ok = false
				break
			}
			v, err := strconv.ParseFloat(row[col], 64)
			if err != nil {
				ok = false
				break
			}
			values = append(values, v)
		}
		if ok && len(values) > 0 {
			numeric[name] = values
		}
	}

	return &tools.DatasetSummary{
		Path:    path,
		Rows:    len(rows),
		Columns: header,
		Numeric: numeric,
	}, nil
}

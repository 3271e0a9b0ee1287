package data

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"

	"github.com/Spectating101/cite-agent-sub002/internal/tools"
)

// AnalyzeDatasetTool returns a tool that computes a statistic over a
// dataset column. The dataset argument accepts the payload of a prior
// load_dataset step; a path argument loads the file directly.
func AnalyzeDatasetTool() *tools.Tool {
	return &tools.Tool{
		Name:        "analyze_dataset",
		Description: "Compute mean, median, or stdev over a numeric dataset column",
		Category:    tools.CategoryData,
		Priority:    65,
		OnFailure:   tools.FailAbort,
		Execute:     executeAnalyzeDataset,
		Schema: tools.ToolSchema{
			Required: []string{},
			Properties: map[string]tools.Property{
				"dataset": {
					Type:        "object",
					Description: "A previously loaded dataset",
				},
				"path": {
					Type:        "string",
					Description: "CSV path to load when no dataset is given",
				},
				"column": {
					Type:        "string",
					Description: "Column to analyze (default: first numeric column)",
				},
				"stat": {
					Type:        "string",
					Description: "Statistic to compute",
					Default:     "mean",
					Enum:        []any{"mean", "median", "stdev"},
				},
			},
		},
	}
}

func executeAnalyzeDataset(ctx context.Context, args map[string]any) (tools.Payload, error) {
	summary, err := resolveDataset(args)
	if err != nil {
		return nil, err
	}

	column, _ := args["column"].(string)
	if column == "" {
		column = firstNumericColumn(summary)
	}
	values, ok := summary.Numeric[column]
	if !ok || len(values) == 0 {
		return nil, fmt.Errorf("no numeric column %q in %s", column, summary.Path)
	}

	stat, _ := args["stat"].(string)
	if stat == "" {
		stat = "mean"
	}

	var result float64
	switch stat {
	case "mean":
		result = mean(values)
	case "median":
		result = median(values)
	case "stdev":
		result = stdev(values)
	default:
		return nil, fmt.Errorf("unknown statistic %q", stat)
	}

	return tools.Text{
		Value: fmt.Sprintf("%s(%s) = %.2f over %d rows", stat, column, result, len(values)),
	}, nil
}

func resolveDataset(args map[string]any) (*tools.DatasetSummary, error) {
	switch ds := args["dataset"].(type) {
	case tools.DatasetSummary:
		return &ds, nil
	case *tools.DatasetSummary:
		return ds, nil
	}
	if path, _ := args["path"].(string); path != "" {
		return loadCSV(path)
	}
	return nil, fmt.Errorf("dataset or path is required")
}

// firstNumericColumn picks the first header column with numeric values,
// preserving file order.
func firstNumericColumn(s *tools.DatasetSummary) string {
	for _, name := range s.Columns {
		if _, ok := s.Numeric[name]; ok {
			return name
		}
	}
	return ""
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// CompareValuesTool returns a tool that compares a numeric value against
// a threshold. The value argument tolerates prose from a prior step; the
// first number found is used.
func CompareValuesTool() *tools.Tool {
	return &tools.Tool{
		Name:        "compare_values",
		Description: "Compare a numeric value against a threshold",
		Category:    tools.CategoryData,
		Priority:    60,
		OnFailure:   tools.FailAbort,
		Execute:     executeCompareValues,
		Schema: tools.ToolSchema{
			Required: []string{"value", "threshold"},
			Properties: map[string]tools.Property{
				"value": {
					Type:        "string",
					Description: "The value to compare, or text containing it",
				},
				"threshold": {
					Type:        "number",
					Description: "The threshold to compare against",
				},
				"op": {
					Type:        "string",
					Description: "Comparison direction",
					Default:     "above",
					Enum:        []any{"above", "below"},
				},
			},
		},
	}
}

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

func executeCompareValues(ctx context.Context, args map[string]any) (tools.Payload, error) {
	value, err := extractNumber(args["value"])
	if err != nil {
		return nil, err
	}
	threshold, err := extractNumber(args["threshold"])
	if err != nil {
		return nil, err
	}

	op, _ := args["op"].(string)
	if op == "" {
		op = "above"
	}

	var holds bool
	switch op {
	case "above":
		holds = value > threshold
	case "below":
		holds = value < threshold
	default:
		return nil, fmt.Errorf("unknown comparison %q", op)
	}

	verdict := "No"
	relation := "is not " + op
	if holds {
		verdict = "Yes"
		relation = "is " + op
	}
	return tools.Text{
		Value: fmt.Sprintf("%s: %.2f %s %.2f", verdict, value, relation, threshold),
	}, nil
}

// extractNumber accepts a float, an int, a tool payload, or text
// containing a number. Payloads are read through their rendered text so
// a piped step result like "mean(score) = 61.67 over 3 rows" works.
func extractNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case tools.Payload:
		return extractNumber(n.Render())
	case string:
		match := numberPattern.FindString(n)
		if match == "" {
			return 0, fmt.Errorf("no number found in %q", n)
		}
		return strconv.ParseFloat(match, 64)
	}
	return 0, fmt.Errorf("cannot interpret %T as a number", v)
}

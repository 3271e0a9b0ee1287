package data

import (
	"github.com/Spectating101/cite-agent-sub002/internal/tools"
)

// RegisterAll registers the dataset tools with the given registry.
func RegisterAll(registry *tools.Registry) error {
	allTools := []*tools.Tool{
		LoadDatasetTool(),
		AnalyzeDatasetTool(),
		CompareValuesTool(),
	}

	for _, tool := range allTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}

	return nil
}

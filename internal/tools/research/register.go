package research

import (
	"github.com/Spectating101/cite-agent-sub002/internal/backend"
	"github.com/Spectating101/cite-agent-sub002/internal/tools"
)

// RegisterAll registers the research tools with the given registry.
func RegisterAll(registry *tools.Registry, client *backend.Client, token TokenFunc) error {
	allTools := []*tools.Tool{
		AcademicSearchTool(client, token),
		WebSearchTool(),
	}

	for _, tool := range allTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}

	return nil
}

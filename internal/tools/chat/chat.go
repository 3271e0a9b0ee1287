// Package chat provides the model-backed synthesis tool.
package chat

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

// Completer generates a text completion for a prompt. Satisfied by
// backend.DirectProvider for provider-direct sessions.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompletionTool returns the synthesis tool. When direct is non-nil the
// completion goes straight to the model provider; otherwise it is
// proxied through the backend's chat endpoint.
func CompletionTool(client *backend.Client, token TokenFunc, direct Completer) *tools.Tool {
	return &tools.Tool{
		Name:        "chat_completion",
		Description: "Synthesize a text answer from a prompt",
		Category:    tools.CategoryChat,
		Priority:    50,
		OnFailure:   tools.FailAbort,
		Execute: func(ctx context.Context, args map[string]any) (tools.Payload, error) {
			return executeCompletion(ctx, client, token, direct, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"prompt"},
			Properties: map[string]tools.Property{
				"prompt": {
					Type:        "string",
					Description: "The prompt to complete",
				},
			},
		},
	}
}

func executeCompletion(ctx context.Context, client *backend.Client, token TokenFunc, direct Completer, args map[string]any) (tools.Payload, error) {
	prompt, _ := args["prompt"].(string)
	if prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	log := logging.Tools()
	if direct != nil {
		log.Debug("chat_completion via direct provider")
		text, err := direct.Complete(ctx, prompt)
		if err == nil {
			return tools.Text{Value: text}, nil
		}
		// The temp key may have been revoked; the backend path still works.
		log.Warn("direct completion failed, falling back to backend", zap.Error(err))
	}

	text, err := client.ChatCompletion(ctx, token(), prompt)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	return tools.Text{Value: text}, nil
}

// RegisterAll registers the chat tools with the given registry.
func RegisterAll(registry *tools.Registry, client *backend.Client, token TokenFunc, direct Completer) error {
	return registry.Register(CompletionTool(client, token, direct))
}

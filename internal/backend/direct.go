package backend

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultDirectModel = "gemini-2.0-flash"

// DirectProvider completes prompts against the model provider directly,
// using a temporary API key issued by the backend at login. It bypasses
// the backend's chat endpoint when the session carries a usable key.
type DirectProvider struct {
	client *genai.Client
	model  string
}

// NewDirectProvider creates a provider-direct completion client.
func NewDirectProvider(ctx context.Context, apiKey, model string) (*DirectProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("direct provider: api key is required")
	}
	if model == "" {
		model = defaultDirectModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("direct provider: %w", err)
	}
	return &DirectProvider{client: client, model: model}, nil
}

// Complete generates a text completion for the prompt.
func (p *DirectProvider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("direct completion: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("direct completion: empty response")
	}
	return text, nil
}

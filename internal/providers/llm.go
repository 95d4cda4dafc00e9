// Package providers implements the external collaborator contracts the
// pipeline consumes: quant score models, the policy-verdict model, the
// reasoning roles (bull, bear, judge, panel member) and the portfolio
// snapshot service.
package providers

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Completer is the minimal chat-completion surface the reasoning roles
// are built on.
type Completer interface {
	Name() string
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OpenAIClient implements Completer using an OpenAI-compatible API.
type OpenAIClient struct {
	name   string
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAI-compatible client. name labels
// the upstream source in logs and errors (e.g. "openai-primary").
func NewOpenAIClient(name, apiKey, baseURL, model string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{
		name:   name,
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Name returns the upstream source label.
func (c *OpenAIClient) Name() string {
	return c.name
}

// CompleteWithSystem sends a prompt with system message to the LLM.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s completion failed: %w", c.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from %s", c.name)
	}
	return resp.Choices[0].Message.Content, nil
}

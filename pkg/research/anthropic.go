package research

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

const defaultAnthropicModel = "claude-haiku-4-5-20251001"

const researchSystemPrompt = `You are a sales research assistant. Given a person's
name, company, and optional LinkedIn URL, write a concise research brief covering
their role, background, and likely priorities. Plain text only.`

// anthropicClient implements Client using the official anthropic-sdk-go.
type anthropicClient struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

// AnthropicOption configures the Anthropic-backed client.
type AnthropicOption func(*anthropicClient)

// WithModel overrides the default model.
func WithModel(model string) AnthropicOption {
	return func(c *anthropicClient) {
		c.model = model
	}
}

// WithMaxTokens overrides the response token cap.
func WithMaxTokens(n int64) AnthropicOption {
	return func(c *anthropicClient) {
		c.maxTokens = n
	}
}

// NewAnthropicClient creates a research client backed by the Anthropic API.
func NewAnthropicClient(apiKey string, opts ...AnthropicOption) Client {
	c := &anthropicClient{
		client:    sdk.NewClient(option.WithAPIKey(apiKey)),
		model:     defaultAnthropicModel,
		maxTokens: 1024,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *anthropicClient) Research(ctx context.Context, req Request) (string, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Research this contact:\n\nName: %s\n", req.PersonName)
	if req.Company != "" {
		fmt.Fprintf(&prompt, "Company: %s\n", req.Company)
	}
	if req.LinkedInURL != "" {
		fmt.Fprintf(&prompt, "LinkedIn: %s\n", req.LinkedInURL)
	}

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []sdk.TextBlockParam{
			{Text: researchSystemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt.String())),
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "research: anthropic create message")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", eris.New("research: anthropic returned no text content")
	}
	return out, nil
}

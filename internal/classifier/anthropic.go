package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicModel = "claude-3-5-sonnet-20241022"

// AnthropicClassifier backs the classifier adapter with the Anthropic API.
type AnthropicClassifier struct {
	client *anthropic.Client
}

// NewAnthropicClassifier creates a new Anthropic-backed classifier.
func NewAnthropicClassifier(apiKey string) (*AnthropicClassifier, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	return &AnthropicClassifier{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

// Classify produces a verdict for a message.
func (c *AnthropicClassifier) Classify(ctx context.Context, authorID, messageText, documentText, windowSummary string) (Action, error) {
	if windowSummary == "" {
		windowSummary = "(no recent messages)"
	}

	prompt := fmt.Sprintf(classifyPrompt, documentText, windowSummary, authorID, messageText)
	out, err := c.complete(ctx, prompt, 256)
	if err != nil {
		return Pass, err
	}
	return ParseVerdict(out), nil
}

// IsContinuation reports whether a message continues the summarized thread.
func (c *AnthropicClassifier) IsContinuation(ctx context.Context, messageText, threadSummary string) (bool, error) {
	prompt := fmt.Sprintf(continuationPrompt, threadSummary, messageText)
	out, err := c.complete(ctx, prompt, 8)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(out)), "YES"), nil
}

// SummarizeForCompaction compresses a decision log.
func (c *AnthropicClassifier) SummarizeForCompaction(ctx context.Context, decisionLog string) (string, error) {
	prompt := fmt.Sprintf(compactionPrompt, decisionLog)
	return c.complete(ctx, prompt, 2048)
}

func (c *AnthropicClassifier) complete(ctx context.Context, prompt string, maxTokens int64) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(anthropicModel),
		MaxTokens: anthropic.F(maxTokens),
		Messages: anthropic.F([]anthropic.MessageParam{{
			Role: anthropic.F(anthropic.MessageParamRoleUser),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(prompt),
				},
			}),
		}}),
	})
	if err != nil {
		return "", err
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}
	return strings.TrimSpace(content), nil
}

package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const openAIModel = "gpt-4o"

// OpenAIClassifier backs the classifier adapter with the OpenAI API.
type OpenAIClassifier struct {
	client *openai.Client
}

// NewOpenAIClassifier creates a new OpenAI-backed classifier.
func NewOpenAIClassifier(apiKey string) (*OpenAIClassifier, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	return &OpenAIClassifier{client: openai.NewClient(apiKey)}, nil
}

// Classify produces a verdict for a message.
func (c *OpenAIClassifier) Classify(ctx context.Context, authorID, messageText, documentText, windowSummary string) (Action, error) {
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
func (c *OpenAIClassifier) IsContinuation(ctx context.Context, messageText, threadSummary string) (bool, error) {
	prompt := fmt.Sprintf(continuationPrompt, threadSummary, messageText)
	out, err := c.complete(ctx, prompt, 8)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(out)), "YES"), nil
}

// SummarizeForCompaction compresses a decision log.
func (c *OpenAIClassifier) SummarizeForCompaction(ctx context.Context, decisionLog string) (string, error) {
	prompt := fmt.Sprintf(compactionPrompt, decisionLog)
	return c.complete(ctx, prompt, 2048)
}

func (c *OpenAIClassifier) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     openAIModel,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}},
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

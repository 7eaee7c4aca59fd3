// Package classifier defines the alignment classifier adapter: the narrow
// interface the engine uses to turn a message plus context into a
// structured verdict. Implementations call an external model; the engine
// treats them as untrusted, possibly-slow oracles.
package classifier

import (
	"context"
	"errors"
)

// ActionType is the classifier's structured verdict on a message.
type ActionType string

const (
	ActionPass     ActionType = "PASS"
	ActionRoute    ActionType = "ROUTE"
	ActionUpdate   ActionType = "UPDATE"
	ActionQuestion ActionType = "QUESTION"
	ActionMisalign ActionType = "MISALIGN"
)

// Action is a parsed classifier verdict.
type Action struct {
	Type     ActionType
	Category string

	// Text is the verdict content: the proposed change for UPDATE, the
	// clarification for QUESTION, the summary for ROUTE and MISALIGN.
	Text string

	// Target is the person a ROUTE verdict addresses.
	Target string
}

// Pass is the zero verdict: stay silent.
var Pass = Action{Type: ActionPass}

// Classifier is the adapter consumed by the engine. All calls are pure
// request/response; a failure degrades per the engine's fallback policy
// rather than propagating to users.
type Classifier interface {
	// Classify produces a verdict for a message given the current ground
	// truth document and the thread window summary.
	Classify(ctx context.Context, authorID, messageText, documentText, windowSummary string) (Action, error)

	// IsContinuation reports whether a message continues the conversation
	// summarized by threadSummary.
	IsContinuation(ctx context.Context, messageText, threadSummary string) (bool, error)

	// SummarizeForCompaction compresses a decision log into a shorter
	// summary. Only the decision log is passed; objective and directory
	// sections are never summarized.
	SummarizeForCompaction(ctx context.Context, decisionLog string) (string, error)
}

// ErrUnavailable is returned by the Unavailable classifier.
var ErrUnavailable = errors.New("classifier unavailable")

// Unavailable is a classifier with no backing provider. Every call fails,
// which the engine degrades to PASS and the thread manager to
// fast-path-only decisions.
type Unavailable struct{}

// Classify always fails.
func (Unavailable) Classify(ctx context.Context, authorID, messageText, documentText, windowSummary string) (Action, error) {
	return Pass, ErrUnavailable
}

// IsContinuation always fails.
func (Unavailable) IsContinuation(ctx context.Context, messageText, threadSummary string) (bool, error) {
	return false, ErrUnavailable
}

// SummarizeForCompaction always fails.
func (Unavailable) SummarizeForCompaction(ctx context.Context, decisionLog string) (string, error) {
	return "", ErrUnavailable
}

// Provider is the type of LLM provider backing the classifier.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// New creates a classifier backed by the given provider.
func New(provider Provider, apiKey string) (Classifier, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIClassifier(apiKey)
	default:
		return NewAnthropicClassifier(apiKey)
	}
}

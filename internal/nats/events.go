package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/groundcrew-ai/alignment-engine/internal/model"
	"github.com/groundcrew-ai/alignment-engine/pkg/logger"
)

const (
	// StreamName is the name of the channel events stream.
	StreamName = "CHANNEL_EVENTS"

	// SubjectPrefix is the prefix for all channel subjects.
	SubjectPrefix = "chat"
)

// MessageSubject is where the transport publishes inbound messages.
func MessageSubject(channelID string) string {
	return fmt.Sprintf("%s.%s.msg.in", SubjectPrefix, channelID)
}

// ReactionSubject is where the transport publishes reaction events.
func ReactionSubject(channelID string) string {
	return fmt.Sprintf("%s.%s.reaction", SubjectPrefix, channelID)
}

// OutboundSubject is where the engine publishes posts for delivery.
func OutboundSubject(channelID string) string {
	return fmt.Sprintf("%s.%s.msg.out", SubjectPrefix, channelID)
}

// Bridge owns the events stream, the outbound poster and the inbound
// consumer.
type Bridge struct {
	client *Client
	logger *logger.Logger
}

// NewBridge creates a transport bridge.
func NewBridge(client *Client, log *logger.Logger) *Bridge {
	return &Bridge{client: client, logger: log}
}

// EnsureStream ensures the channel events stream exists.
func (b *Bridge) EnsureStream(ctx context.Context) error {
	js := b.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Inbound chat events and outbound engine posts",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// OutboundPost is the payload published for the transport to deliver.
type OutboundPost struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Post publishes an outbound message and returns its ID, which the
// transport echoes as the thread pointer for replies and reactions.
func (b *Bridge) Post(ctx context.Context, channelID, threadID, text string) (string, error) {
	post := OutboundPost{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ChannelID: channelID,
		ThreadID:  threadID,
		Text:      text,
		CreatedAt: time.Now(),
	}

	data, err := json.Marshal(post)
	if err != nil {
		return "", fmt.Errorf("failed to marshal outbound post: %w", err)
	}

	if _, err := b.client.JetStream().Publish(ctx, OutboundSubject(channelID), data); err != nil {
		return "", fmt.Errorf("failed to publish outbound post: %w", err)
	}
	return post.ID, nil
}

// EventHandler receives decoded transport events.
type EventHandler interface {
	HandleMessage(ctx context.Context, msg model.Message) error
	HandleReaction(ctx context.Context, r model.Reaction) error
}

// Consume starts the durable inbound consumer and dispatches events to
// the handler until the context is cancelled. Handler errors are logged
// and the event is acked anyway; the engine's own fallbacks decide what a
// failure means.
func (b *Bridge) Consume(ctx context.Context, handler EventHandler) (jetstream.ConsumeContext, error) {
	js := b.client.JetStream()

	consumer, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:        "alignment-engine",
		FilterSubjects: []string{fmt.Sprintf("%s.*.msg.in", SubjectPrefix), fmt.Sprintf("%s.*.reaction", SubjectPrefix)},
		AckPolicy:      jetstream.AckExplicitPolicy,
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	return consumer.Consume(func(m jetstream.Msg) {
		defer m.Ack()

		subject := m.Subject()
		switch {
		case isReactionSubject(subject):
			var r model.Reaction
			if err := json.Unmarshal(m.Data(), &r); err != nil {
				b.logger.Warn("dropping malformed reaction event", zap.String("subject", subject), zap.Error(err))
				return
			}
			if err := handler.HandleReaction(ctx, r); err != nil {
				b.logger.Error("reaction handling failed", zap.String("channel_id", r.ChannelID), zap.Error(err))
			}
		default:
			var msg model.Message
			if err := json.Unmarshal(m.Data(), &msg); err != nil {
				b.logger.Warn("dropping malformed message event", zap.String("subject", subject), zap.Error(err))
				return
			}
			if err := handler.HandleMessage(ctx, msg); err != nil {
				b.logger.Error("message handling failed", zap.String("channel_id", msg.ChannelID), zap.Error(err))
			}
		}
	})
}

func isReactionSubject(subject string) bool {
	return strings.HasSuffix(subject, ".reaction")
}

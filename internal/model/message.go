// Package model defines data structures for the alignment engine.
package model

import (
	"time"
)

// Message represents a single chat message delivered by the transport.
// Messages are immutable once recorded.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsBot     bool      `json:"is_bot"`

	// ThreadID is the explicit thread pointer from the platform, when the
	// message was posted as a reply. Empty for top-level messages.
	ThreadID string `json:"thread_id,omitempty"`

	// Permalink is the platform link to the message, carried into audit
	// payloads. Optional.
	Permalink string `json:"permalink,omitempty"`
}

// Thread is a bounded, ordered window of recent messages that belong to one
// conversation. Newest messages are last.
type Thread struct {
	ID             string    `json:"id"`
	ChannelID      string    `json:"channel_id"`
	ParticipantIDs []string  `json:"participant_ids"`
	Messages       []Message `json:"messages"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// HasParticipant reports whether the user has posted in this thread.
func (t *Thread) HasParticipant(userID string) bool {
	for _, id := range t.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ReactionVerdict is the approval meaning of a reaction emoji.
type ReactionVerdict string

const (
	ReactionApprove ReactionVerdict = "approve"
	ReactionReject  ReactionVerdict = "reject"
	ReactionNone    ReactionVerdict = ""
)

// Reaction represents an emoji reaction event from the transport.
type Reaction struct {
	ChannelID string    `json:"channel_id"`
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

var approveReactions = map[string]bool{
	"white_check_mark": true,
	"+1":               true,
	"thumbsup":         true,
	"👍":                true,
}

var rejectReactions = map[string]bool{
	"x":          true,
	"-1":         true,
	"thumbsdown": true,
}

// Verdict maps the reaction emoji onto an approval verdict. Reactions
// outside the two fixed sets carry no verdict.
func (r *Reaction) Verdict() ReactionVerdict {
	if approveReactions[r.Name] {
		return ReactionApprove
	}
	if rejectReactions[r.Name] {
		return ReactionReject
	}
	return ReactionNone
}

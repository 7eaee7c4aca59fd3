package model

import (
	"time"
)

// ProposalKind distinguishes classifier-suggested updates from
// store-raised compactions.
type ProposalKind string

const (
	ProposalUpdate     ProposalKind = "update"
	ProposalCompaction ProposalKind = "compaction"
)

// ProposalStatus is the lifecycle state of a proposal. Accepted and
// rejected are terminal.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalRejected ProposalStatus = "rejected"
)

// Rejection reasons recorded on auto-rejected proposals.
const (
	RejectReasonSuperseded    = "superseded"
	RejectReasonStale         = "stale"
	RejectReasonChannelClosed = "channel_closed"
	RejectReasonInvariant     = "invariant_violation"
)

// Proposal is a suggested document mutation awaiting human approval.
// Once resolved it is immutable.
type Proposal struct {
	ID           string       `json:"id"`
	ChannelID    string       `json:"channel_id"`
	ThreadID     string       `json:"thread_id,omitempty"`
	Kind         ProposalKind `json:"kind"`
	ProposedText string       `json:"proposed_text"`
	Reason       string       `json:"reason,omitempty"`
	Category     string       `json:"category,omitempty"`
	Proposer     string       `json:"proposer"`
	Permalink    string       `json:"permalink,omitempty"`

	// BaseVersion is the document version the proposal was computed
	// against. Resolution auto-rejects when the document has advanced.
	BaseVersion int64 `json:"base_version"`

	Status       ProposalStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	ResolvedAt   *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy   string         `json:"resolved_by,omitempty"`
	RejectReason string         `json:"reject_reason,omitempty"`

	// PromptThreadID is the thread where the approval prompt was posted;
	// only replies and reactions there resolve the proposal.
	PromptThreadID string `json:"prompt_thread_id,omitempty"`
}

// Resolved reports whether the proposal reached a terminal state.
func (p *Proposal) Resolved() bool {
	return p.Status == ProposalAccepted || p.Status == ProposalRejected
}

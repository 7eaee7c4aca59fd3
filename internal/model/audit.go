package model

import (
	"time"
)

// AuditKind classifies audit trail records.
type AuditKind string

const (
	AuditMisalignmentFlag   AuditKind = "misalignment_flag"
	AuditProposalResolution AuditKind = "proposal_resolution"
	AuditRoute              AuditKind = "route"
	AuditClarification      AuditKind = "clarification"
)

// AuditRecord is one append-only entry in the audit trail. Records are
// never mutated or deleted.
type AuditRecord struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	ChannelID string         `json:"channel_id"`
	Kind      AuditKind      `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
}

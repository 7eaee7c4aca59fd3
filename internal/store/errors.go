package store

import (
	"errors"
)

var (
	// ErrDocumentNotFound is returned when a channel has no document yet.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDocumentExists is returned when initializing a channel twice.
	ErrDocumentExists = errors.New("document already initialized")

	// ErrProposalNotFound is returned for unknown proposal IDs.
	ErrProposalNotFound = errors.New("proposal not found")

	// ErrNotAccepted is returned when committing a proposal that is not in
	// the accepted state.
	ErrNotAccepted = errors.New("proposal is not accepted")

	// ErrStaleProposal is returned when the document advanced past the
	// version a proposal was computed against.
	ErrStaleProposal = errors.New("proposal is stale")

	// ErrCompactionUnsafe is returned when a compacted document no longer
	// contains the core objective or a directory entry verbatim.
	ErrCompactionUnsafe = errors.New("compaction drops governed content")
)

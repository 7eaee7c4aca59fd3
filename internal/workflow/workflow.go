// Package workflow drives the proposal state machine: pending proposals,
// their resolution by user verdicts, and the per-channel critical section
// that keeps the document's version lineage linear.
package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/groundcrew-ai/alignment-engine/internal/model"
	"github.com/groundcrew-ai/alignment-engine/internal/store"
	"github.com/groundcrew-ai/alignment-engine/pkg/logger"
	"github.com/groundcrew-ai/alignment-engine/pkg/metrics"
)

var (
	// ErrNoPending is returned when resolving a channel with nothing
	// pending. A second resolution of an already-resolved proposal lands
	// here, making resolution idempotent.
	ErrNoPending = errors.New("no pending proposal")
)

// ProposeRequest carries everything needed to open an update proposal.
type ProposeRequest struct {
	ChannelID    string
	ThreadID     string
	ProposedText string
	Reason       string
	Category     string
	Proposer     string
	Permalink    string
}

// Resolution is the outcome of resolving a proposal.
type Resolution struct {
	Proposal *model.Proposal
	// Document is the committed document on acceptance, nil otherwise.
	Document *model.Document
}

// Workflow owns proposal lifecycles. All state transitions for one channel
// run inside that channel's mutex; different channels proceed in parallel.
type Workflow struct {
	docs      *store.DocumentStore
	proposals *store.ProposalStore
	audit     *store.AuditLog
	logger    *logger.Logger

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	pending map[string]*model.Proposal
}

// New creates a workflow manager.
func New(docs *store.DocumentStore, proposals *store.ProposalStore, audit *store.AuditLog, log *logger.Logger) *Workflow {
	return &Workflow{
		docs:      docs,
		proposals: proposals,
		audit:     audit,
		logger:    log,
		locks:     make(map[string]*sync.Mutex),
		pending:   make(map[string]*model.Proposal),
	}
}

func (w *Workflow) channelLock(channelID string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.locks[channelID]
	if !ok {
		l = &sync.Mutex{}
		w.locks[channelID] = l
	}
	return l
}

// pendingLocked returns the channel's pending proposal, recovering it from
// the store after a restart. Requires the channel lock held.
func (w *Workflow) pendingLocked(ctx context.Context, channelID string) *model.Proposal {
	w.mu.Lock()
	p, ok := w.pending[channelID]
	w.mu.Unlock()
	if ok {
		return p
	}

	p, err := w.proposals.Pending(ctx, channelID)
	if err != nil {
		return nil
	}
	w.mu.Lock()
	w.pending[channelID] = p
	w.mu.Unlock()
	return p
}

func (w *Workflow) setPending(channelID string, p *model.Proposal) {
	w.mu.Lock()
	if p == nil {
		delete(w.pending, channelID)
	} else {
		w.pending[channelID] = p
	}
	w.mu.Unlock()
}

// Pending returns a copy of the channel's pending proposal, or nil.
func (w *Workflow) Pending(ctx context.Context, channelID string) *model.Proposal {
	lock := w.channelLock(channelID)
	lock.Lock()
	defer lock.Unlock()

	p := w.pendingLocked(ctx, channelID)
	if p == nil {
		return nil
	}
	out := *p
	return &out
}

// Propose opens an update proposal against the channel's current document.
// While another proposal is pending the new one is rejected on arrival
// with reason superseded rather than silently dropped; the caller surfaces
// that as a normal outcome.
func (w *Workflow) Propose(ctx context.Context, req ProposeRequest) (*model.Proposal, error) {
	lock := w.channelLock(req.ChannelID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := w.docs.Current(ctx, req.ChannelID)
	if err != nil {
		return nil, err
	}

	p := &model.Proposal{
		ID:           uuid.Must(uuid.NewV7()).String(),
		ChannelID:    req.ChannelID,
		ThreadID:     req.ThreadID,
		Kind:         model.ProposalUpdate,
		ProposedText: req.ProposedText,
		Reason:       req.Reason,
		Category:     req.Category,
		Proposer:     req.Proposer,
		Permalink:    req.Permalink,
		BaseVersion:  doc.Version,
		Status:       model.ProposalPending,
		CreatedAt:    time.Now(),
	}

	if existing := w.pendingLocked(ctx, req.ChannelID); existing != nil {
		return w.rejectOnArrivalLocked(ctx, p, model.RejectReasonSuperseded, existing.ID)
	}

	if err := w.proposals.Save(ctx, p); err != nil {
		return nil, err
	}
	w.setPending(req.ChannelID, p)

	w.logger.Info("proposal opened",
		zap.String("channel_id", p.ChannelID),
		zap.String("proposal_id", p.ID),
		zap.Int64("base_version", p.BaseVersion),
	)
	return p, nil
}

// ProposeCompaction opens a compaction proposal with the summarized
// decision log. The compacted candidate is verified before the proposal is
// allowed to reach a user: a summary that drops the core objective or a
// directory entry is rejected fail-closed.
func (w *Workflow) ProposeCompaction(ctx context.Context, channelID, summary string) (*model.Proposal, error) {
	lock := w.channelLock(channelID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := w.docs.Current(ctx, channelID)
	if err != nil {
		return nil, err
	}

	p := &model.Proposal{
		ID:           uuid.Must(uuid.NewV7()).String(),
		ChannelID:    channelID,
		Kind:         model.ProposalCompaction,
		ProposedText: summary,
		Reason:       "decision log exceeded the word limit",
		Proposer:     model.ProposerBot,
		BaseVersion:  doc.Version,
		Status:       model.ProposalPending,
		CreatedAt:    time.Now(),
	}

	candidate := store.CompactionCandidate(doc, summary)
	if err := store.VerifyCompaction(doc, candidate.Render()); err != nil {
		w.logger.Warn("compaction verification failed",
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
		if _, rerr := w.rejectOnArrivalLocked(ctx, p, model.RejectReasonInvariant, ""); rerr != nil {
			return nil, rerr
		}
		return nil, err
	}

	if existing := w.pendingLocked(ctx, channelID); existing != nil {
		return w.rejectOnArrivalLocked(ctx, p, model.RejectReasonSuperseded, existing.ID)
	}

	if err := w.proposals.Save(ctx, p); err != nil {
		return nil, err
	}
	w.setPending(channelID, p)
	metrics.CompactionsTotal.Inc()

	w.logger.Info("compaction proposed",
		zap.String("channel_id", channelID),
		zap.String("proposal_id", p.ID),
		zap.Int("candidate_words", candidate.WordCount),
	)
	return p, nil
}

// SetPromptThread records where the approval prompt was posted. Only
// replies and reactions in that thread resolve the proposal.
func (w *Workflow) SetPromptThread(ctx context.Context, channelID, proposalID, promptThreadID string) error {
	lock := w.channelLock(channelID)
	lock.Lock()
	defer lock.Unlock()

	p := w.pendingLocked(ctx, channelID)
	if p == nil || p.ID != proposalID {
		return ErrNoPending
	}
	p.PromptThreadID = promptThreadID
	return w.proposals.Save(ctx, p)
}

// Resolve applies a user verdict to the channel's pending proposal.
// Acceptance commits through the document store; either outcome appends a
// proposal_resolution audit record with the full before/after. The
// document version is re-validated here because the verdict may have raced
// another commit.
func (w *Workflow) Resolve(ctx context.Context, channelID string, verdict Verdict, resolvedBy string) (*Resolution, error) {
	if verdict == VerdictNone {
		return nil, ErrNoPending
	}

	lock := w.channelLock(channelID)
	lock.Lock()
	defer lock.Unlock()

	p := w.pendingLocked(ctx, channelID)
	if p == nil {
		return nil, ErrNoPending
	}

	before, err := w.docs.Current(ctx, channelID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	resolved := *p
	resolved.ResolvedAt = &now
	resolved.ResolvedBy = resolvedBy

	// Defensive staleness check. Structurally prevented by the single
	// pending proposal rule, but the document may still have moved while
	// a verdict was in flight.
	if before.Version != p.BaseVersion {
		resolved.Status = model.ProposalRejected
		resolved.RejectReason = model.RejectReasonStale
		return w.finishLocked(ctx, &resolved, before, nil)
	}

	if verdict == VerdictReject {
		resolved.Status = model.ProposalRejected
		return w.finishLocked(ctx, &resolved, before, nil)
	}

	resolved.Status = model.ProposalAccepted
	after, err := w.docs.Commit(ctx, &resolved)
	if errors.Is(err, store.ErrStaleProposal) {
		resolved.Status = model.ProposalRejected
		resolved.RejectReason = model.RejectReasonStale
		return w.finishLocked(ctx, &resolved, before, nil)
	}
	if errors.Is(err, store.ErrCompactionUnsafe) {
		resolved.Status = model.ProposalRejected
		resolved.RejectReason = model.RejectReasonInvariant
		return w.finishLocked(ctx, &resolved, before, nil)
	}
	if err != nil {
		// Storage failure: the mutation is not applied and the proposal
		// stays pending so the verdict can be retried.
		return nil, err
	}
	return w.finishLocked(ctx, &resolved, before, after)
}

// CloseChannel rejects any pending proposal when a channel is torn down,
// rather than leaving it pending forever.
func (w *Workflow) CloseChannel(ctx context.Context, channelID string) error {
	lock := w.channelLock(channelID)
	lock.Lock()
	defer lock.Unlock()

	p := w.pendingLocked(ctx, channelID)
	if p == nil {
		return nil
	}

	now := time.Now()
	resolved := *p
	resolved.Status = model.ProposalRejected
	resolved.RejectReason = model.RejectReasonChannelClosed
	resolved.ResolvedAt = &now

	before, err := w.docs.Current(ctx, channelID)
	if err != nil {
		return err
	}
	_, err = w.finishLocked(ctx, &resolved, before, nil)
	return err
}

// finishLocked persists a terminal proposal state, clears the pending
// slot, and appends the resolution audit record. Requires the channel
// lock held.
func (w *Workflow) finishLocked(ctx context.Context, p *model.Proposal, before, after *model.Document) (*Resolution, error) {
	if err := w.proposals.Save(ctx, p); err != nil {
		return nil, err
	}
	w.setPending(p.ChannelID, nil)
	metrics.ProposalsTotal.WithLabelValues(string(p.Kind), string(p.Status)).Inc()

	payload := map[string]any{
		"proposal_id":   p.ID,
		"kind":          string(p.Kind),
		"proposed_text": p.ProposedText,
		"category":      p.Category,
		"outcome":       string(p.Status),
		"resolved_by":   p.ResolvedBy,
		"permalink":     p.Permalink,
		"before":        map[string]any{"version": before.Version, "word_count": before.WordCount},
	}
	if p.RejectReason != "" {
		payload["reject_reason"] = p.RejectReason
	}
	if after != nil {
		payload["after"] = map[string]any{"version": after.Version, "word_count": after.WordCount}
	}

	err := w.audit.Record(ctx, &model.AuditRecord{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Timestamp: time.Now(),
		ChannelID: p.ChannelID,
		Kind:      model.AuditProposalResolution,
		Payload:   payload,
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("proposal resolved",
		zap.String("channel_id", p.ChannelID),
		zap.String("proposal_id", p.ID),
		zap.String("status", string(p.Status)),
		zap.String("reject_reason", p.RejectReason),
	)
	return &Resolution{Proposal: p, Document: after}, nil
}

// rejectOnArrivalLocked records a proposal refused at creation time
// (superseded by a pending one, or an unsafe compaction). Requires the
// channel lock held.
func (w *Workflow) rejectOnArrivalLocked(ctx context.Context, p *model.Proposal, reason, supersededBy string) (*model.Proposal, error) {
	now := time.Now()
	p.Status = model.ProposalRejected
	p.RejectReason = reason
	p.ResolvedAt = &now

	if err := w.proposals.Save(ctx, p); err != nil {
		return nil, err
	}
	metrics.ProposalsTotal.WithLabelValues(string(p.Kind), string(p.Status)).Inc()

	payload := map[string]any{
		"proposal_id":   p.ID,
		"kind":          string(p.Kind),
		"proposed_text": p.ProposedText,
		"outcome":       string(p.Status),
		"reject_reason": reason,
	}
	if supersededBy != "" {
		payload["superseded_by"] = supersededBy
	}

	err := w.audit.Record(ctx, &model.AuditRecord{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Timestamp: now,
		ChannelID: p.ChannelID,
		Kind:      model.AuditProposalResolution,
		Payload:   payload,
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("proposal rejected on arrival",
		zap.String("channel_id", p.ChannelID),
		zap.String("proposal_id", p.ID),
		zap.String("reason", reason),
	)
	return p, nil
}

// Package engine wires the thread manager, classifier adapter, document
// store and proposal workflow into the message-handling pipeline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/groundcrew-ai/alignment-engine/internal/classifier"
	"github.com/groundcrew-ai/alignment-engine/internal/model"
	"github.com/groundcrew-ai/alignment-engine/internal/store"
	"github.com/groundcrew-ai/alignment-engine/internal/thread"
	"github.com/groundcrew-ai/alignment-engine/internal/workflow"
	"github.com/groundcrew-ai/alignment-engine/pkg/logger"
	"github.com/groundcrew-ai/alignment-engine/pkg/metrics"
)

// Poster publishes outbound messages through the transport. The returned
// ID identifies the posted message so replies and reactions to it can be
// matched later.
type Poster interface {
	Post(ctx context.Context, channelID, threadID, text string) (string, error)
}

// Engine processes transport events. Classification runs outside any
// channel lock; only the resulting state transition re-enters the
// workflow's critical section, which re-validates staleness.
type Engine struct {
	classifier classifier.Classifier
	threads    *thread.Manager
	docs       *store.DocumentStore
	workflow   *workflow.Workflow
	audit      *store.AuditLog
	poster     Poster
	logger     *logger.Logger

	classifyTimeout time.Duration
}

// New creates the engine.
func New(
	cls classifier.Classifier,
	threads *thread.Manager,
	docs *store.DocumentStore,
	wf *workflow.Workflow,
	audit *store.AuditLog,
	poster Poster,
	classifyTimeout time.Duration,
	log *logger.Logger,
) *Engine {
	if classifyTimeout <= 0 {
		classifyTimeout = 15 * time.Second
	}
	return &Engine{
		classifier:      cls,
		threads:         threads,
		docs:            docs,
		workflow:        wf,
		audit:           audit,
		poster:          poster,
		logger:          log,
		classifyTimeout: classifyTimeout,
	}
}

// HandleMessage runs one inbound message through the pipeline: resolution
// of pending proposals, thread assignment, classification, and action
// dispatch. Bot messages are ignored.
func (e *Engine) HandleMessage(ctx context.Context, msg model.Message) error {
	if msg.IsBot {
		return nil
	}
	metrics.MessagesIngested.WithLabelValues(msg.ChannelID).Inc()

	// A reply inside the approval prompt's thread may resolve the pending
	// proposal. Replies outside the lexicon fall through to the normal
	// pipeline without resolving anything.
	if p := e.workflow.Pending(ctx, msg.ChannelID); p != nil &&
		p.PromptThreadID != "" && msg.ThreadID == p.PromptThreadID {
		if verdict := workflow.ClassifyReply(msg.Text); verdict != workflow.VerdictNone {
			return e.resolve(ctx, msg.ChannelID, msg.ThreadID, verdict, msg.AuthorID)
		}
	}

	threadID := e.threads.Resolve(ctx, msg)
	e.threads.Append(threadID, msg)

	doc, err := e.currentOrInit(ctx, msg.ChannelID)
	if err != nil {
		return err
	}

	action := e.classify(ctx, msg, doc, threadID)
	metrics.ActionsTotal.WithLabelValues(string(action.Type)).Inc()

	switch action.Type {
	case classifier.ActionPass:
		return nil
	case classifier.ActionRoute:
		return e.handleRoute(ctx, msg, threadID, action)
	case classifier.ActionQuestion:
		return e.handleNudge(ctx, msg, threadID, action, model.AuditClarification)
	case classifier.ActionMisalign:
		return e.handleNudge(ctx, msg, threadID, action, model.AuditMisalignmentFlag)
	case classifier.ActionUpdate:
		return e.handleUpdate(ctx, msg, threadID, action)
	default:
		return nil
	}
}

// HandleReaction applies an emoji reaction on the approval prompt as a
// proposal verdict. Reactions elsewhere are ignored.
func (e *Engine) HandleReaction(ctx context.Context, r model.Reaction) error {
	p := e.workflow.Pending(ctx, r.ChannelID)
	if p == nil || p.PromptThreadID == "" || r.MessageID != p.PromptThreadID {
		return nil
	}

	switch r.Verdict() {
	case model.ReactionApprove:
		return e.resolve(ctx, r.ChannelID, p.PromptThreadID, workflow.VerdictApprove, r.UserID)
	case model.ReactionReject:
		return e.resolve(ctx, r.ChannelID, p.PromptThreadID, workflow.VerdictReject, r.UserID)
	default:
		return nil
	}
}

// Initialize bootstraps a channel's ground truth with its member
// directory.
func (e *Engine) Initialize(ctx context.Context, channelID string, members []model.DirectoryEntry) (*model.Document, error) {
	return e.docs.Initialize(ctx, channelID, members)
}

// CloseChannel tears a channel down, rejecting any pending proposal.
func (e *Engine) CloseChannel(ctx context.Context, channelID string) error {
	return e.workflow.CloseChannel(ctx, channelID)
}

// classify calls the adapter with a bounded wait. Any failure or timeout
// degrades to PASS: a missed nudge is acceptable, a blocked pipeline is
// not. No audit record is written for a classification that never
// completed.
func (e *Engine) classify(ctx context.Context, msg model.Message, doc *model.Document, threadID string) classifier.Action {
	cctx, cancel := context.WithTimeout(ctx, e.classifyTimeout)
	defer cancel()

	start := time.Now()
	action, err := e.classifier.Classify(cctx, msg.AuthorID, msg.Text, doc.Render(), e.threads.Summary(threadID))
	metrics.RecordClassifierCall("classify", err, time.Since(start).Seconds())
	if err != nil {
		e.logger.Debug("classification degraded to pass",
			zap.String("channel_id", msg.ChannelID),
			zap.Error(err),
		)
		return classifier.Pass
	}
	return action
}

func (e *Engine) handleRoute(ctx context.Context, msg model.Message, threadID string, action classifier.Action) error {
	text := fmt.Sprintf("Hey %s, <@%s> %s Could you jump in here?", action.Target, msg.AuthorID, action.Text)
	if _, err := e.poster.Post(ctx, msg.ChannelID, threadID, text); err != nil {
		return fmt.Errorf("failed to post routed notification: %w", err)
	}

	return e.audit.Record(ctx, &model.AuditRecord{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Timestamp: time.Now(),
		ChannelID: msg.ChannelID,
		Kind:      model.AuditRoute,
		Payload: map[string]any{
			"target":    action.Target,
			"summary":   action.Text,
			"category":  action.Category,
			"author":    msg.AuthorID,
			"permalink": msg.Permalink,
		},
	})
}

func (e *Engine) handleNudge(ctx context.Context, msg model.Message, threadID string, action classifier.Action, kind model.AuditKind) error {
	text := action.Text
	if kind == model.AuditMisalignmentFlag {
		text = fmt.Sprintf(":warning: This may conflict with the channel's core objective: %s", action.Text)
	}
	if _, err := e.poster.Post(ctx, msg.ChannelID, threadID, text); err != nil {
		return fmt.Errorf("failed to post nudge: %w", err)
	}

	return e.audit.Record(ctx, &model.AuditRecord{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Timestamp: time.Now(),
		ChannelID: msg.ChannelID,
		Kind:      kind,
		Payload: map[string]any{
			"text":      action.Text,
			"category":  action.Category,
			"author":    msg.AuthorID,
			"permalink": msg.Permalink,
		},
	})
}

func (e *Engine) handleUpdate(ctx context.Context, msg model.Message, threadID string, action classifier.Action) error {
	p, err := e.workflow.Propose(ctx, workflow.ProposeRequest{
		ChannelID:    msg.ChannelID,
		ThreadID:     threadID,
		ProposedText: action.Text,
		Reason:       "suggested from channel discussion",
		Category:     action.Category,
		Proposer:     msg.AuthorID,
		Permalink:    msg.Permalink,
	})
	if err != nil {
		return err
	}

	if p.Status == model.ProposalRejected {
		// Superseded on arrival; surface as a normal outcome.
		_, perr := e.poster.Post(ctx, msg.ChannelID, threadID,
			"Another change is already awaiting approval. Resolve it first, then repeat this one.")
		return perr
	}

	doc, err := e.docs.Current(ctx, msg.ChannelID)
	if err != nil {
		return err
	}
	prompt := fmt.Sprintf(":memo: *Proposed ground truth change:*\n\n%s\n\nReply `yes` to accept or `no` to reject.",
		formatDiff(doc.Render(), action.Text))
	return e.postPrompt(ctx, msg.ChannelID, threadID, p.ID, prompt)
}

// resolve applies a verdict and follows an accepted commit with the
// compaction check. The summarizer runs outside the channel lock; the
// compaction proposal re-validates the document version when it is opened.
func (e *Engine) resolve(ctx context.Context, channelID, threadID string, verdict workflow.Verdict, userID string) error {
	res, err := e.workflow.Resolve(ctx, channelID, verdict, userID)
	if errors.Is(err, workflow.ErrNoPending) {
		return nil
	}
	if err != nil {
		return err
	}

	switch {
	case res.Proposal.Status == model.ProposalAccepted:
		if _, err := e.poster.Post(ctx, channelID, threadID, ":white_check_mark: Ground truth updated."); err != nil {
			return err
		}
	case res.Proposal.RejectReason == model.RejectReasonStale:
		if _, err := e.poster.Post(ctx, channelID, threadID,
			":x: Couldn't process that update - the document changed while it was pending."); err != nil {
			return err
		}
	default:
		if _, err := e.poster.Post(ctx, channelID, threadID, ":x: Change discarded."); err != nil {
			return err
		}
	}

	if res.Document != nil && e.docs.NeedsCompaction(res.Document) {
		return e.compact(ctx, channelID, res.Document)
	}
	return nil
}

func (e *Engine) compact(ctx context.Context, channelID string, doc *model.Document) error {
	cctx, cancel := context.WithTimeout(ctx, e.classifyTimeout)
	defer cancel()

	start := time.Now()
	summary, err := e.classifier.SummarizeForCompaction(cctx, store.DecisionLogText(doc))
	metrics.RecordClassifierCall("summarize", err, time.Since(start).Seconds())
	if err != nil {
		// Skipped, not fatal: the next commit re-triggers compaction.
		e.logger.Warn("compaction summarization failed",
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
		return nil
	}

	p, err := e.workflow.ProposeCompaction(ctx, channelID, summary)
	if errors.Is(err, store.ErrCompactionUnsafe) {
		e.logger.Warn("unsafe compaction rejected before reaching users",
			zap.String("channel_id", channelID),
		)
		return nil
	}
	if err != nil {
		return err
	}
	if p.Status != model.ProposalPending {
		return nil
	}

	prompt := fmt.Sprintf(":memo: *The decision log passed %d words.* Proposed compacted summary:\n\n%s\n\nReply `yes` to accept or `no` to reject.",
		e.docs.MaxWords(), summary)
	return e.postPrompt(ctx, channelID, "", p.ID, prompt)
}

func (e *Engine) postPrompt(ctx context.Context, channelID, threadID, proposalID, prompt string) error {
	promptID, err := e.poster.Post(ctx, channelID, threadID, prompt)
	if err != nil {
		return fmt.Errorf("failed to post approval prompt: %w", err)
	}
	return e.workflow.SetPromptThread(ctx, channelID, proposalID, promptID)
}

func (e *Engine) currentOrInit(ctx context.Context, channelID string) (*model.Document, error) {
	doc, err := e.docs.Current(ctx, channelID)
	if errors.Is(err, store.ErrDocumentNotFound) {
		return e.docs.Initialize(ctx, channelID, nil)
	}
	return doc, err
}

// formatDiff shows the tail of the current document with the proposed
// addition, the preview users approve against.
func formatDiff(current, addition string) string {
	lines := strings.Split(strings.TrimSpace(current), "\n")
	if len(lines) > 2 {
		lines = lines[len(lines)-2:]
	}
	parts := make([]string, 0, len(lines)+1)
	for _, line := range lines {
		parts = append(parts, ">    "+line)
	}
	parts = append(parts, fmt.Sprintf("> :large_green_circle:  `+ %s`", addition))
	return strings.Join(parts, "\n")
}

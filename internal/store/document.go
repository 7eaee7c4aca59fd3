// Package store provides redis-backed persistence for ground-truth
// documents, proposals and the audit trail. All keys are namespaced under
// the "align" prefix. Document records are persisted as a single JSON
// value replaced wholesale on commit, so a crash mid-write leaves either
// the old or the new version, never a mix.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/groundcrew-ai/alignment-engine/internal/model"
	"github.com/groundcrew-ai/alignment-engine/pkg/logger"
)

func documentKey(channelID string) string {
	return fmt.Sprintf("align:%s:document", channelID)
}

// DocumentStore owns the versioned ground-truth document for each channel.
// Reads are served from a per-channel in-process cache whose entries are
// replaced, never mutated, on commit; concurrent readers always observe a
// complete document.
type DocumentStore struct {
	rdb      *redis.Client
	logger   *logger.Logger
	maxWords int

	mu    sync.RWMutex
	cache map[string]*model.Document
}

// NewDocumentStore creates a document store.
func NewDocumentStore(rdb *redis.Client, maxWords int, log *logger.Logger) *DocumentStore {
	return &DocumentStore{
		rdb:      rdb,
		logger:   log,
		maxWords: maxWords,
		cache:    make(map[string]*model.Document),
	}
}

// MaxWords returns the compaction word limit.
func (s *DocumentStore) MaxWords() int {
	return s.maxWords
}

// Current returns the channel's current document.
func (s *DocumentStore) Current(ctx context.Context, channelID string) (*model.Document, error) {
	s.mu.RLock()
	doc, ok := s.cache[channelID]
	s.mu.RUnlock()
	if ok {
		return doc.Clone(), nil
	}

	data, err := s.rdb.Get(ctx, documentKey(channelID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	var loaded model.Document
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}

	s.mu.Lock()
	s.cache[channelID] = &loaded
	s.mu.Unlock()

	return loaded.Clone(), nil
}

// Initialize seeds a channel with a fresh document at version 1. Bootstrap
// is the only write that bypasses the proposal path; it fails if the
// channel already has a document.
func (s *DocumentStore) Initialize(ctx context.Context, channelID string, members []model.DirectoryEntry) (*model.Document, error) {
	if _, err := s.Current(ctx, channelID); err == nil {
		return nil, ErrDocumentExists
	} else if !errors.Is(err, ErrDocumentNotFound) {
		return nil, err
	}

	doc := &model.Document{
		ChannelID: channelID,
		Version:   1,
		Sections: model.Sections{
			CoreObjective: "(Set your team's objective here)",
			Directory:     append([]model.DirectoryEntry(nil), members...),
		},
		UpdatedAt: time.Now(),
	}
	doc.WordCount = doc.CountWords()

	if err := s.persist(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("document initialized",
		zap.String("channel_id", channelID),
		zap.Int("members", len(members)),
	)
	return doc.Clone(), nil
}

// Commit applies an accepted proposal and returns the new document. The
// version the proposal was computed against is re-checked here even though
// the workflow validates it first; a stale commit is refused, not applied.
func (s *DocumentStore) Commit(ctx context.Context, p *model.Proposal) (*model.Document, error) {
	if p.Status != model.ProposalAccepted {
		return nil, ErrNotAccepted
	}

	cur, err := s.Current(ctx, p.ChannelID)
	if err != nil {
		return nil, err
	}
	if cur.Version != p.BaseVersion {
		return nil, ErrStaleProposal
	}

	next := cur.Clone()
	entry := model.ChangelogEntry{
		Timestamp:   time.Now(),
		Description: p.ProposedText,
		Reason:      p.Reason,
		Proposer:    p.ResolvedBy,
	}

	switch p.Kind {
	case model.ProposalCompaction:
		entry.Proposer = model.ProposerBot
		entry.Description = p.ProposedText
		// Objective and directory pass through untouched; only the
		// decision log collapses into the approved summary.
		next.Sections.DecisionLog = []model.ChangelogEntry{entry}
		if err := VerifyCompaction(cur, next.Render()); err != nil {
			return nil, err
		}
	default:
		next.Sections.DecisionLog = append(next.Sections.DecisionLog, entry)
	}

	next.Version = cur.Version + 1
	next.UpdatedAt = entry.Timestamp
	next.WordCount = next.CountWords()

	// Durable write first; the cache entry is replaced only after the
	// record is persisted.
	if err := s.persist(ctx, next); err != nil {
		return nil, err
	}

	s.logger.Info("document committed",
		zap.String("channel_id", p.ChannelID),
		zap.String("proposal_id", p.ID),
		zap.String("kind", string(p.Kind)),
		zap.Int64("version", next.Version),
		zap.Int("word_count", next.WordCount),
	)
	return next.Clone(), nil
}

// NeedsCompaction reports whether the document exceeds the word limit.
func (s *DocumentStore) NeedsCompaction(doc *model.Document) bool {
	return doc.WordCount > s.maxWords
}

// DecisionLogText renders the decision log alone, the input fed to the
// compaction summarizer.
func DecisionLogText(doc *model.Document) string {
	var b strings.Builder
	for _, entry := range doc.Sections.DecisionLog {
		fmt.Fprintf(&b, "* %s: %s", entry.Timestamp.Format("2006-01-02"), entry.Description)
		if entry.Reason != "" {
			fmt.Fprintf(&b, " (%s)", entry.Reason)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// CompactionCandidate builds the document that would result from replacing
// the decision log with the given summary. Objective and directory are
// passed through unchanged.
func CompactionCandidate(doc *model.Document, summary string) *model.Document {
	next := doc.Clone()
	next.Sections.DecisionLog = []model.ChangelogEntry{{
		Timestamp:   time.Now(),
		Description: summary,
		Proposer:    model.ProposerBot,
	}}
	next.WordCount = next.CountWords()
	return next
}

// VerifyCompaction checks that compacted document text still contains the
// original core objective and every directory entry verbatim. A compaction
// that fails this check is rejected before it ever reaches a user.
func VerifyCompaction(original *model.Document, compactedText string) error {
	if strings.TrimSpace(compactedText) == "" {
		return fmt.Errorf("%w: empty compaction output", ErrCompactionUnsafe)
	}
	if obj := original.Sections.CoreObjective; obj != "" && !strings.Contains(compactedText, obj) {
		return fmt.Errorf("%w: core objective missing", ErrCompactionUnsafe)
	}
	for _, e := range original.Sections.Directory {
		if !strings.Contains(compactedText, e.DirectoryLine()) {
			return fmt.Errorf("%w: directory entry for %s missing", ErrCompactionUnsafe, e.PersonID)
		}
	}
	return nil
}

func (s *DocumentStore) persist(ctx context.Context, doc *model.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	if err := s.rdb.Set(ctx, documentKey(doc.ChannelID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to persist document: %w", err)
	}

	s.mu.Lock()
	s.cache[doc.ChannelID] = doc.Clone()
	s.mu.Unlock()
	return nil
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundcrew-ai/alignment-engine/internal/model"
	"github.com/groundcrew-ai/alignment-engine/pkg/logger"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func newTestDocStore(t *testing.T, rdb *redis.Client, maxWords int) *DocumentStore {
	t.Helper()
	return NewDocumentStore(rdb, maxWords, logger.NewNop())
}

func acceptedProposal(channelID string, baseVersion int64, text string) *model.Proposal {
	now := time.Now()
	return &model.Proposal{
		ID:           uuid.Must(uuid.NewV7()).String(),
		ChannelID:    channelID,
		Kind:         model.ProposalUpdate,
		ProposedText: text,
		Reason:       "suggested from channel discussion",
		Proposer:     "U1",
		BaseVersion:  baseVersion,
		Status:       model.ProposalAccepted,
		CreatedAt:    now,
		ResolvedAt:   &now,
		ResolvedBy:   "U2",
	}
}

func TestDocumentStoreInitialize(t *testing.T) {
	ctx := context.Background()
	rdb := newTestRedis(t)
	docs := newTestDocStore(t, rdb, 1000)

	members := []model.DirectoryEntry{
		{PersonID: "U1", Name: "Ada", Area: "backend"},
		{PersonID: "U2", Name: "Grace", Area: "infra"},
	}

	doc, err := docs.Initialize(ctx, "C1", members)
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Version)
	assert.Len(t, doc.Sections.Directory, 2)
	assert.Empty(t, doc.Sections.DecisionLog)
	assert.Equal(t, doc.CountWords(), doc.WordCount)

	t.Run("second initialize fails", func(t *testing.T) {
		_, err := docs.Initialize(ctx, "C1", nil)
		assert.ErrorIs(t, err, ErrDocumentExists)
	})

	t.Run("unknown channel has no document", func(t *testing.T) {
		_, err := docs.Current(ctx, "C-nope")
		assert.ErrorIs(t, err, ErrDocumentNotFound)
	})
}

func TestDocumentStoreCommit(t *testing.T) {
	ctx := context.Background()
	rdb := newTestRedis(t)
	docs := newTestDocStore(t, rdb, 1000)

	_, err := docs.Initialize(ctx, "C1", []model.DirectoryEntry{{PersonID: "U1", Name: "Ada"}})
	require.NoError(t, err)

	t.Run("accepted update appends to the decision log", func(t *testing.T) {
		after, err := docs.Commit(ctx, acceptedProposal("C1", 1, "ship weekly on Fridays"))
		require.NoError(t, err)
		assert.Equal(t, int64(2), after.Version)
		require.Len(t, after.Sections.DecisionLog, 1)
		assert.Equal(t, "ship weekly on Fridays", after.Sections.DecisionLog[0].Description)
		assert.Equal(t, "U2", after.Sections.DecisionLog[0].Proposer)
		assert.Equal(t, after.CountWords(), after.WordCount)
	})

	t.Run("versions are strictly monotonic", func(t *testing.T) {
		after, err := docs.Commit(ctx, acceptedProposal("C1", 2, "second decision"))
		require.NoError(t, err)
		assert.Equal(t, int64(3), after.Version)
		assert.Len(t, after.Sections.DecisionLog, 2)
	})

	t.Run("stale base version is refused", func(t *testing.T) {
		_, err := docs.Commit(ctx, acceptedProposal("C1", 1, "from the past"))
		assert.ErrorIs(t, err, ErrStaleProposal)

		cur, err := docs.Current(ctx, "C1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), cur.Version)
		assert.Len(t, cur.Sections.DecisionLog, 2)
	})

	t.Run("pending proposal cannot commit", func(t *testing.T) {
		p := acceptedProposal("C1", 3, "not yet approved")
		p.Status = model.ProposalPending
		_, err := docs.Commit(ctx, p)
		assert.ErrorIs(t, err, ErrNotAccepted)
	})

	t.Run("committed record survives a cold cache", func(t *testing.T) {
		fresh := newTestDocStore(t, rdb, 1000)
		doc, err := fresh.Current(ctx, "C1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), doc.Version)
		assert.Len(t, doc.Sections.DecisionLog, 2)
	})

	t.Run("callers get copies, not the cache entry", func(t *testing.T) {
		doc, err := docs.Current(ctx, "C1")
		require.NoError(t, err)
		doc.Sections.CoreObjective = "scribbled over"
		doc.Sections.DecisionLog[0].Description = "scribbled over"

		again, err := docs.Current(ctx, "C1")
		require.NoError(t, err)
		assert.NotEqual(t, "scribbled over", again.Sections.CoreObjective)
		assert.Equal(t, "ship weekly on Fridays", again.Sections.DecisionLog[0].Description)
	})
}

func TestDocumentStoreCompactionCommit(t *testing.T) {
	ctx := context.Background()
	rdb := newTestRedis(t)
	docs := newTestDocStore(t, rdb, 1000)

	_, err := docs.Initialize(ctx, "C1", []model.DirectoryEntry{
		{PersonID: "U1", Name: "Ada", Area: "backend"},
		{PersonID: "U2", Name: "Grace", Area: "infra"},
	})
	require.NoError(t, err)

	for i, text := range []string{"first decision", "second decision", "third decision"} {
		_, err := docs.Commit(ctx, acceptedProposal("C1", int64(i+1), text))
		require.NoError(t, err)
	}

	p := acceptedProposal("C1", 4, "three decisions condensed into one line")
	p.Kind = model.ProposalCompaction
	after, err := docs.Commit(ctx, p)
	require.NoError(t, err)

	assert.Equal(t, int64(5), after.Version)
	require.Len(t, after.Sections.DecisionLog, 1)
	assert.Equal(t, model.ProposerBot, after.Sections.DecisionLog[0].Proposer)
	assert.Equal(t, "three decisions condensed into one line", after.Sections.DecisionLog[0].Description)

	// Objective and directory pass through untouched.
	assert.Len(t, after.Sections.Directory, 2)
	assert.NotEmpty(t, after.Sections.CoreObjective)
}

func TestNeedsCompaction(t *testing.T) {
	docs := newTestDocStore(t, newTestRedis(t), 100)

	doc := &model.Document{WordCount: 100}
	assert.False(t, docs.NeedsCompaction(doc), "at the limit is fine")

	doc.WordCount = 101
	assert.True(t, docs.NeedsCompaction(doc))
}

func TestVerifyCompaction(t *testing.T) {
	doc := &model.Document{
		ChannelID: "C1",
		Version:   4,
		Sections: model.Sections{
			CoreObjective: "Ship the v2 API by the end of Q3",
			Directory: []model.DirectoryEntry{
				{PersonID: "U1", Name: "Ada", Area: "backend"},
				{PersonID: "U2", Name: "Grace", Area: "infra"},
			},
			DecisionLog: []model.ChangelogEntry{
				{Timestamp: time.Now(), Description: "weekly releases", Proposer: "U1"},
			},
		},
	}

	t.Run("candidate built by the store passes", func(t *testing.T) {
		candidate := CompactionCandidate(doc, "weekly releases stay")
		require.NoError(t, VerifyCompaction(doc, candidate.Render()))
		assert.Len(t, candidate.Sections.DecisionLog, 1)
		assert.Equal(t, model.ProposerBot, candidate.Sections.DecisionLog[0].Proposer)
	})

	t.Run("empty output is rejected", func(t *testing.T) {
		err := VerifyCompaction(doc, "   \n  ")
		assert.ErrorIs(t, err, ErrCompactionUnsafe)
	})

	t.Run("missing objective is rejected", func(t *testing.T) {
		candidate := CompactionCandidate(doc, "summary")
		candidate.Sections.CoreObjective = "something else entirely"
		err := VerifyCompaction(doc, candidate.Render())
		assert.ErrorIs(t, err, ErrCompactionUnsafe)
		assert.Contains(t, err.Error(), "core objective")
	})

	t.Run("dropped directory entry is rejected", func(t *testing.T) {
		candidate := CompactionCandidate(doc, "summary")
		candidate.Sections.Directory = candidate.Sections.Directory[:1]
		err := VerifyCompaction(doc, candidate.Render())
		assert.ErrorIs(t, err, ErrCompactionUnsafe)
		assert.Contains(t, err.Error(), "U2")
	})
}

func TestDecisionLogText(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	doc := &model.Document{
		Sections: model.Sections{
			DecisionLog: []model.ChangelogEntry{
				{Timestamp: ts, Description: "ship weekly", Reason: "team vote"},
				{Timestamp: ts, Description: "freeze Fridays"},
			},
		},
	}

	text := DecisionLogText(doc)
	assert.Contains(t, text, "2026-03-14: ship weekly (team vote)")
	assert.Contains(t, text, "2026-03-14: freeze Fridays")
}

package workflow

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
	"github.com/groundcrew-ai/alignment-engine/internal/store"
	"github.com/groundcrew-ai/alignment-engine/pkg/logger"
)

type testEnv struct {
	docs      *store.DocumentStore
	proposals *store.ProposalStore
	audit     *store.AuditLog
	wf        *Workflow
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := logger.NewNop()
	env := &testEnv{
		docs:      store.NewDocumentStore(rdb, 1000, log),
		proposals: store.NewProposalStore(rdb),
		audit:     store.NewAuditLog(rdb, log),
	}
	env.wf = New(env.docs, env.proposals, env.audit, log)
	return env
}

func (e *testEnv) initChannel(t *testing.T, channelID string) {
	t.Helper()
	_, err := e.docs.Initialize(context.Background(), channelID, []model.DirectoryEntry{
		{PersonID: "U1", Name: "Ada", Area: "backend"},
	})
	require.NoError(t, err)
}

func (e *testEnv) auditRecords(t *testing.T, channelID string) []model.AuditRecord {
	t.Helper()
	records, err := e.audit.Query(context.Background(), channelID, time.Time{}, "")
	require.NoError(t, err)
	return records
}

func proposeReq(channelID string) ProposeRequest {
	return ProposeRequest{
		ChannelID:    channelID,
		ThreadID:     "T1",
		ProposedText: "ship weekly on Fridays",
		Reason:       "suggested from channel discussion",
		Category:     "decision",
		Proposer:     "U1",
		Permalink:    "https://chat.example/p/1",
	}
}

func TestProposeAndApprove(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.initChannel(t, "C1")

	p, err := env.wf.Propose(ctx, proposeReq("C1"))
	require.NoError(t, err)
	assert.Equal(t, model.ProposalPending, p.Status)
	assert.Equal(t, int64(1), p.BaseVersion)

	pending := env.wf.Pending(ctx, "C1")
	require.NotNil(t, pending)
	assert.Equal(t, p.ID, pending.ID)

	res, err := env.wf.Resolve(ctx, "C1", VerdictApprove, "U2")
	require.NoError(t, err)
	assert.Equal(t, model.ProposalAccepted, res.Proposal.Status)
	require.NotNil(t, res.Document)
	assert.Equal(t, int64(2), res.Document.Version)
	require.Len(t, res.Document.Sections.DecisionLog, 1)
	assert.Equal(t, "ship weekly on Fridays", res.Document.Sections.DecisionLog[0].Description)

	assert.Nil(t, env.wf.Pending(ctx, "C1"))

	records := env.auditRecords(t, "C1")
	require.Len(t, records, 1)
	assert.Equal(t, model.AuditProposalResolution, records[0].Kind)
	assert.Equal(t, "accepted", records[0].Payload["outcome"])
	assert.Equal(t, "U2", records[0].Payload["resolved_by"])
	after, ok := records[0].Payload["after"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 2, after["version"])
}

func TestProposeAndReject(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.initChannel(t, "C1")

	_, err := env.wf.Propose(ctx, proposeReq("C1"))
	require.NoError(t, err)

	res, err := env.wf.Resolve(ctx, "C1", VerdictReject, "U2")
	require.NoError(t, err)
	assert.Equal(t, model.ProposalRejected, res.Proposal.Status)
	assert.Nil(t, res.Document)

	doc, err := env.docs.Current(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Version, "rejection leaves the document untouched")
	assert.Empty(t, doc.Sections.DecisionLog)
}

func TestSecondProposalSuperseded(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.initChannel(t, "C1")

	first, err := env.wf.Propose(ctx, proposeReq("C1"))
	require.NoError(t, err)

	req := proposeReq("C1")
	req.ProposedText = "switch to daily releases"
	second, err := env.wf.Propose(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, model.ProposalRejected, second.Status)
	assert.Equal(t, model.RejectReasonSuperseded, second.RejectReason)

	pending := env.wf.Pending(ctx, "C1")
	require.NotNil(t, pending)
	assert.Equal(t, first.ID, pending.ID, "the original stays pending")

	// The refusal is recorded, never silently dropped.
	records := env.auditRecords(t, "C1")
	require.Len(t, records, 1)
	assert.Equal(t, string(model.RejectReasonSuperseded), records[0].Payload["reject_reason"])
	assert.Equal(t, first.ID, records[0].Payload["superseded_by"])
}

func TestResolutionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.initChannel(t, "C1")

	_, err := env.wf.Propose(ctx, proposeReq("C1"))
	require.NoError(t, err)

	_, err = env.wf.Resolve(ctx, "C1", VerdictApprove, "U2")
	require.NoError(t, err)

	_, err = env.wf.Resolve(ctx, "C1", VerdictApprove, "U3")
	assert.ErrorIs(t, err, ErrNoPending)

	doc, err := env.docs.Current(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Version, "no double apply")
	assert.Len(t, env.auditRecords(t, "C1"), 1, "no duplicate audit record")
}

func TestStaleProposalAutoRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.initChannel(t, "C1")

	_, err := env.wf.Propose(ctx, proposeReq("C1"))
	require.NoError(t, err)

	// The document moves underneath the pending proposal.
	now := time.Now()
	_, err = env.docs.Commit(ctx, &model.Proposal{
		ID:           uuid.Must(uuid.NewV7()).String(),
		ChannelID:    "C1",
		Kind:         model.ProposalUpdate,
		ProposedText: "out of band change",
		BaseVersion:  1,
		Status:       model.ProposalAccepted,
		CreatedAt:    now,
		ResolvedAt:   &now,
		ResolvedBy:   "U9",
	})
	require.NoError(t, err)

	res, err := env.wf.Resolve(ctx, "C1", VerdictApprove, "U2")
	require.NoError(t, err)
	assert.Equal(t, model.ProposalRejected, res.Proposal.Status)
	assert.Equal(t, model.RejectReasonStale, res.Proposal.RejectReason)

	doc, err := env.docs.Current(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Version)
	require.Len(t, doc.Sections.DecisionLog, 1)
	assert.Equal(t, "out of band change", doc.Sections.DecisionLog[0].Description)
}

func TestVerdictNoneDoesNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.initChannel(t, "C1")

	_, err := env.wf.Propose(ctx, proposeReq("C1"))
	require.NoError(t, err)

	_, err = env.wf.Resolve(ctx, "C1", VerdictNone, "U2")
	assert.ErrorIs(t, err, ErrNoPending)
	assert.NotNil(t, env.wf.Pending(ctx, "C1"), "proposal stays pending")
}

func TestCloseChannel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.initChannel(t, "C1")

	t.Run("pending proposal is rejected on teardown", func(t *testing.T) {
		_, err := env.wf.Propose(ctx, proposeReq("C1"))
		require.NoError(t, err)

		require.NoError(t, env.wf.CloseChannel(ctx, "C1"))
		assert.Nil(t, env.wf.Pending(ctx, "C1"))

		records := env.auditRecords(t, "C1")
		require.Len(t, records, 1)
		assert.Equal(t, string(model.RejectReasonChannelClosed), records[0].Payload["reject_reason"])
	})

	t.Run("closing an idle channel is a no-op", func(t *testing.T) {
		require.NoError(t, env.wf.CloseChannel(ctx, "C1"))
	})
}

func TestPendingRecoveredAfterRestart(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.initChannel(t, "C1")

	p, err := env.wf.Propose(ctx, proposeReq("C1"))
	require.NoError(t, err)
	require.NoError(t, env.wf.SetPromptThread(ctx, "C1", p.ID, "bot-prompt-1"))

	// A fresh workflow over the same stores models a process restart.
	restarted := New(env.docs, env.proposals, env.audit, logger.NewNop())
	pending := restarted.Pending(ctx, "C1")
	require.NotNil(t, pending)
	assert.Equal(t, p.ID, pending.ID)
	assert.Equal(t, "bot-prompt-1", pending.PromptThreadID)

	res, err := restarted.Resolve(ctx, "C1", VerdictApprove, "U2")
	require.NoError(t, err)
	assert.Equal(t, model.ProposalAccepted, res.Proposal.Status)
}

func TestSetPromptThread(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.initChannel(t, "C1")

	p, err := env.wf.Propose(ctx, proposeReq("C1"))
	require.NoError(t, err)

	t.Run("unknown proposal id", func(t *testing.T) {
		err := env.wf.SetPromptThread(ctx, "C1", "nope", "bot-prompt-1")
		assert.ErrorIs(t, err, ErrNoPending)
	})

	t.Run("records the prompt location", func(t *testing.T) {
		require.NoError(t, env.wf.SetPromptThread(ctx, "C1", p.ID, "bot-prompt-1"))
		pending := env.wf.Pending(ctx, "C1")
		require.NotNil(t, pending)
		assert.Equal(t, "bot-prompt-1", pending.PromptThreadID)
	})
}

func TestProposeCompaction(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.initChannel(t, "C1")

	// Build up a few committed decisions first.
	for i := 0; i < 3; i++ {
		_, err := env.wf.Propose(ctx, proposeReq("C1"))
		require.NoError(t, err)
		_, err = env.wf.Resolve(ctx, "C1", VerdictApprove, "U2")
		require.NoError(t, err)
	}

	p, err := env.wf.ProposeCompaction(ctx, "C1", "three releases decisions condensed")
	require.NoError(t, err)
	assert.Equal(t, model.ProposalCompaction, p.Kind)
	assert.Equal(t, model.ProposalPending, p.Status)
	assert.Equal(t, model.ProposerBot, p.Proposer)
	assert.Equal(t, int64(4), p.BaseVersion)

	res, err := env.wf.Resolve(ctx, "C1", VerdictApprove, "U2")
	require.NoError(t, err)
	require.NotNil(t, res.Document)
	assert.Equal(t, int64(5), res.Document.Version)
	require.Len(t, res.Document.Sections.DecisionLog, 1)
	assert.Equal(t, model.ProposerBot, res.Document.Sections.DecisionLog[0].Proposer)
	assert.Len(t, res.Document.Sections.Directory, 1, "directory untouched")
}

func TestProposeCompactionSuperseded(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.initChannel(t, "C1")

	first, err := env.wf.Propose(ctx, proposeReq("C1"))
	require.NoError(t, err)

	p, err := env.wf.ProposeCompaction(ctx, "C1", "summary")
	require.NoError(t, err)
	assert.Equal(t, model.ProposalRejected, p.Status)
	assert.Equal(t, model.RejectReasonSuperseded, p.RejectReason)

	pending := env.wf.Pending(ctx, "C1")
	require.NotNil(t, pending)
	assert.Equal(t, first.ID, pending.ID)
}

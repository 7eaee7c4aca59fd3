package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundcrew-ai/alignment-engine/internal/model"
)

func TestProposalStore(t *testing.T) {
	ctx := context.Background()
	proposals := NewProposalStore(newTestRedis(t))

	p := &model.Proposal{
		ID:           uuid.Must(uuid.NewV7()).String(),
		ChannelID:    "C1",
		Kind:         model.ProposalUpdate,
		ProposedText: "ship weekly",
		BaseVersion:  1,
		Status:       model.ProposalPending,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, proposals.Save(ctx, p))

	t.Run("pending pointer tracks the open proposal", func(t *testing.T) {
		got, err := proposals.Pending(ctx, "C1")
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, "ship weekly", got.ProposedText)
	})

	t.Run("get by id", func(t *testing.T) {
		got, err := proposals.Get(ctx, "C1", p.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ProposalPending, got.Status)
	})

	t.Run("missing proposal", func(t *testing.T) {
		_, err := proposals.Get(ctx, "C1", "nope")
		assert.ErrorIs(t, err, ErrProposalNotFound)
	})

	t.Run("resolution clears the pointer", func(t *testing.T) {
		now := time.Now()
		resolved := *p
		resolved.Status = model.ProposalRejected
		resolved.RejectReason = model.RejectReasonStale
		resolved.ResolvedAt = &now
		require.NoError(t, proposals.Save(ctx, &resolved))

		_, err := proposals.Pending(ctx, "C1")
		assert.ErrorIs(t, err, ErrProposalNotFound)

		got, err := proposals.Get(ctx, "C1", p.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ProposalRejected, got.Status)
	})

	t.Run("resolving an old proposal leaves a newer pointer alone", func(t *testing.T) {
		next := &model.Proposal{
			ID:          uuid.Must(uuid.NewV7()).String(),
			ChannelID:   "C1",
			Kind:        model.ProposalUpdate,
			BaseVersion: 2,
			Status:      model.ProposalPending,
			CreatedAt:   time.Now(),
		}
		require.NoError(t, proposals.Save(ctx, next))

		now := time.Now()
		old := *p
		old.Status = model.ProposalRejected
		old.ResolvedAt = &now
		require.NoError(t, proposals.Save(ctx, &old))

		got, err := proposals.Pending(ctx, "C1")
		require.NoError(t, err)
		assert.Equal(t, next.ID, got.ID)
	})
}

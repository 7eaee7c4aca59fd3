package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/groundcrew-ai/alignment-engine/internal/model"
)

func proposalKey(channelID, proposalID string) string {
	return fmt.Sprintf("align:%s:proposal:%s", channelID, proposalID)
}

func pendingKey(channelID string) string {
	return fmt.Sprintf("align:%s:proposal:pending", channelID)
}

// ProposalStore persists proposal records. Lifecycle rules (single pending
// per channel, terminal transitions) are enforced by the workflow inside
// its per-channel critical section; this layer only stores.
type ProposalStore struct {
	rdb *redis.Client
}

// NewProposalStore creates a proposal store.
func NewProposalStore(rdb *redis.Client) *ProposalStore {
	return &ProposalStore{rdb: rdb}
}

// Save writes a proposal record and maintains the pending pointer.
func (s *ProposalStore) Save(ctx context.Context, p *model.Proposal) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode proposal: %w", err)
	}

	if err := s.rdb.Set(ctx, proposalKey(p.ChannelID, p.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to persist proposal: %w", err)
	}

	if p.Status == model.ProposalPending {
		err = s.rdb.Set(ctx, pendingKey(p.ChannelID), p.ID, 0).Err()
	} else {
		// Clear the pointer only if it still names this proposal.
		cur, getErr := s.rdb.Get(ctx, pendingKey(p.ChannelID)).Result()
		if getErr == nil && cur == p.ID {
			err = s.rdb.Del(ctx, pendingKey(p.ChannelID)).Err()
		}
	}
	if err != nil {
		return fmt.Errorf("failed to update pending pointer: %w", err)
	}
	return nil
}

// Get retrieves a proposal by ID.
func (s *ProposalStore) Get(ctx context.Context, channelID, proposalID string) (*model.Proposal, error) {
	data, err := s.rdb.Get(ctx, proposalKey(channelID, proposalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrProposalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read proposal: %w", err)
	}

	var p model.Proposal
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode proposal: %w", err)
	}
	return &p, nil
}

// Pending returns the channel's pending proposal, or ErrProposalNotFound
// when there is none. Used to recover workflow state after a restart.
func (s *ProposalStore) Pending(ctx context.Context, channelID string) (*model.Proposal, error) {
	id, err := s.rdb.Get(ctx, pendingKey(channelID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrProposalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pending pointer: %w", err)
	}
	return s.Get(ctx, channelID, id)
}

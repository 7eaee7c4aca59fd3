package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/groundcrew-ai/alignment-engine/internal/model"
	"github.com/groundcrew-ai/alignment-engine/pkg/logger"
	"github.com/groundcrew-ai/alignment-engine/pkg/metrics"
)

func auditKey(channelID string) string {
	return fmt.Sprintf("align:%s:audit", channelID)
}

// AuditLog is the append-only record of classification outcomes and
// proposal lifecycle transitions. Records are stored in a per-channel ZSET
// scored by timestamp; nothing here mutates or deletes.
type AuditLog struct {
	rdb    *redis.Client
	logger *logger.Logger
}

// NewAuditLog creates an audit log.
func NewAuditLog(rdb *redis.Client, log *logger.Logger) *AuditLog {
	return &AuditLog{rdb: rdb, logger: log}
}

// Record appends one audit record. A write failure is surfaced to the
// caller and counted; the trail's value is its completeness.
func (a *AuditLog) Record(ctx context.Context, rec *model.AuditRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		metrics.AuditWriteFailures.Inc()
		return fmt.Errorf("failed to encode audit record: %w", err)
	}

	err = a.rdb.ZAdd(ctx, auditKey(rec.ChannelID), redis.Z{
		Score:  float64(rec.Timestamp.UnixNano()),
		Member: data,
	}).Err()
	if err != nil {
		metrics.AuditWriteFailures.Inc()
		a.logger.Error("audit write failed",
			zap.String("channel_id", rec.ChannelID),
			zap.String("kind", string(rec.Kind)),
			zap.Error(err),
		)
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// Query returns records for a channel at or after since, oldest first.
// A non-empty kind filters to that record kind.
func (a *AuditLog) Query(ctx context.Context, channelID string, since time.Time, kind model.AuditKind) ([]model.AuditRecord, error) {
	members, err := a.rdb.ZRangeByScore(ctx, auditKey(channelID), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", since.UnixNano()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}

	records := make([]model.AuditRecord, 0, len(members))
	for _, m := range members {
		var rec model.AuditRecord
		if err := json.Unmarshal([]byte(m), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode audit record: %w", err)
		}
		if kind != "" && rec.Kind != kind {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

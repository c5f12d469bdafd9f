// Package reclaim queues images whose cleanup failed and deletes them in
// the background. Deletion is idempotent, so a message may be processed
// more than once.
package reclaim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spotshare/spotshare/internal/metrics"
)

const (
	// StreamKey is the Redis stream for orphaned image keys.
	StreamKey = "stream:orphan_assets"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:orphan_assets:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 500 * time.Millisecond
)

// Reasons an image becomes orphaned.
const (
	// ReasonCompensation: an upload whose transaction did not commit.
	ReasonCompensation = "compensation"
	// ReasonRetired: an image replaced or released by a committed change.
	ReasonRetired = "retired"
)

// Orphan identifies an image that no record references.
type Orphan struct {
	Key      string `json:"key"`
	Reason   string `json:"reason"`
	PlaceID  string `json:"pid,omitempty"`
	UserID   string `json:"uid,omitempty"`
	QueuedAt int64  `json:"t"` // Unix milliseconds
}

// Publisher enqueues orphans to a Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new orphan publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "reclaim.publisher"),
		metrics: recorder,
	}
}

// Enqueue adds an orphan to the stream. It runs on its own short deadline
// so a cancelled request still gets its cleanup recorded.
func (p *Publisher) Enqueue(ctx context.Context, orphan Orphan) error {
	if orphan.QueuedAt == 0 {
		orphan.QueuedAt = time.Now().UnixMilli()
	}
	if err := ValidateOrphan(orphan); err != nil {
		return err
	}

	data, err := json.Marshal(orphan)
	if err != nil {
		return fmt.Errorf("marshal orphan: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), PublishTimeout)
	defer cancel()

	streamID, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd: %w", err)
	}

	p.logger.Debug("orphan queued",
		"asset_key", orphan.Key,
		"reason", orphan.Reason,
		"stream_id", streamID,
	)
	return nil
}

package reclaim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spotshare/spotshare/internal/metrics"
)

const (
	// ConsumerGroup is the Redis consumer group name.
	ConsumerGroup = "asset_reclaimers"

	// DefaultBatchSize is the max messages per read.
	DefaultBatchSize = 100

	// DefaultBlockTimeout is how long to block waiting for messages.
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMaxDeliveries is how many times a message is tried before it
	// is dead-lettered.
	DefaultMaxDeliveries = 5

	// DefaultClaimInterval is how often to scan pending messages.
	DefaultClaimInterval = 10 * time.Second

	// DefaultClaimIdle is the idle time before reclaiming pending messages.
	DefaultClaimIdle = 30 * time.Second

	// DefaultMetricsInterval is how often to refresh queue depth metrics.
	DefaultMetricsInterval = 5 * time.Second

	// DefaultDeleteTimeout bounds a single object deletion.
	DefaultDeleteTimeout = 10 * time.Second
)

// NewConsumerID names this process within the consumer group. Stalled
// messages of a crashed process are claimed by whichever replica runs next.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "spotshare"
	}
	return fmt.Sprintf("reclaim-%s-%d-%d", host, os.Getpid(), time.Now().UnixNano())
}

// Deleter removes stored images by key. Deleting a missing key succeeds.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Worker deletes queued orphan images. Each message is delivered to one
// consumer in the group; a message whose delete fails stays pending and is
// retried until maxDeliveries, then moved to the dead-letter stream.
type Worker struct {
	redis      *redis.Client
	assets     Deleter
	logger     *slog.Logger
	metrics    metrics.Recorder
	consumerID string

	batchSize     int
	blockTimeout  time.Duration
	maxDeliveries int64
	claimIdle     time.Duration
	deleteTimeout time.Duration

	claim  schedule
	depth  schedule
	cursor string

	running atomic.Bool
	mu      sync.Mutex
	stop    context.CancelFunc
	exited  chan struct{}
}

// schedule gates a periodic chore that piggybacks on the read loop.
type schedule struct {
	every time.Duration
	last  time.Time
}

func (s *schedule) due(now time.Time) bool {
	if s.every <= 0 {
		return false
	}
	if !s.last.IsZero() && now.Sub(s.last) < s.every {
		return false
	}
	s.last = now
	return true
}

// NewWorker creates a new reclaim worker.
func NewWorker(client *redis.Client, assets Deleter, logger *slog.Logger, consumerID string, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		redis:         client,
		assets:        assets,
		logger:        logger.With("component", "reclaim.worker", "consumer_id", consumerID),
		metrics:       recorder,
		consumerID:    consumerID,
		batchSize:     DefaultBatchSize,
		blockTimeout:  DefaultBlockTimeout,
		maxDeliveries: DefaultMaxDeliveries,
		claimIdle:     DefaultClaimIdle,
		deleteTimeout: DefaultDeleteTimeout,
		claim:         schedule{every: DefaultClaimInterval},
		depth:         schedule{every: DefaultMetricsInterval},
		cursor:        "0-0",
	}
}

// SetBlockTimeout overrides the default blocking timeout.
func (w *Worker) SetBlockTimeout(timeout time.Duration) {
	if timeout > 0 {
		w.blockTimeout = timeout
	}
}

// SetClaimInterval overrides how often stalled messages are looked for.
func (w *Worker) SetClaimInterval(interval time.Duration) {
	if interval > 0 {
		w.claim.every = interval
	}
}

// SetClaimIdle overrides how long a message must sit unacknowledged
// before another consumer may take it.
func (w *Worker) SetClaimIdle(idle time.Duration) {
	if idle > 0 {
		w.claimIdle = idle
	}
}

// SetMaxDeliveries overrides how many attempts a message gets.
func (w *Worker) SetMaxDeliveries(n int64) {
	if n > 0 {
		w.maxDeliveries = n
	}
}

// Run consumes the orphan stream until ctx is cancelled or Shutdown is
// called. A worker runs at most once.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("reclaim worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.mu.Lock()
	w.stop = cancel
	w.exited = make(chan struct{})
	exited := w.exited
	w.mu.Unlock()
	defer close(exited)

	if err := w.ensureConsumerGroup(runCtx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}
	w.logger.Info("reclaim worker started", "max_deliveries", w.maxDeliveries)

	for runCtx.Err() == nil {
		err := w.processOnce(runCtx)
		if err == nil || runCtx.Err() != nil {
			continue
		}
		w.logger.Error("reclaim batch failed", "error", err)
		backoff(runCtx, time.Second)
	}

	// Shutdown cancels only runCtx; a cancelled parent is reported.
	if err := ctx.Err(); err != nil {
		w.logger.Info("reclaim worker stopping", "cause", err)
		return err
	}
	w.logger.Info("reclaim worker stopped")
	return nil
}

// Shutdown stops the loop and waits for the in-flight batch, or for ctx.
// Its signature matches server.ShutdownFunc.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	stop, exited := w.stop, w.exited
	w.mu.Unlock()
	if stop == nil {
		return nil
	}

	stop()
	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		w.logger.Warn("reclaim worker did not stop in time")
		return ctx.Err()
	}
}

func (w *Worker) ensureConsumerGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if isConsumerGroupExistsError(err) {
		return nil
	}
	return err
}

// processOnce handles one batch: stalled messages taken over from other
// consumers when the claim schedule is due, otherwise new deliveries.
func (w *Worker) processOnce(ctx context.Context) error {
	now := time.Now()
	if w.depth.due(now) {
		w.reportDepth(ctx)
	}

	batch, err := w.fetch(ctx, w.claim.due(now))
	if err != nil {
		return err
	}

	done := make([]string, 0, len(batch))
	for _, msg := range batch {
		if w.handle(ctx, msg) {
			done = append(done, msg.ID)
		}
	}
	if len(done) == 0 {
		return nil
	}
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, done...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// fetch returns stalled messages when claimStalled is set and some exist,
// and blocks for new ones otherwise.
func (w *Worker) fetch(ctx context.Context, claimStalled bool) ([]redis.XMessage, error) {
	if claimStalled && w.claimIdle > 0 {
		msgs, next, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   StreamKey,
			Group:    ConsumerGroup,
			Consumer: w.consumerID,
			MinIdle:  w.claimIdle,
			Start:    w.cursor,
			Count:    int64(w.batchSize),
		}).Result()
		switch {
		case err != nil && !errors.Is(err, redis.Nil):
			w.logger.Warn("claiming stalled orphans failed", "error", err)
		case len(msgs) > 0:
			w.cursor = next
			w.logger.Info("claimed stalled orphans", "count", len(msgs))
			return msgs, nil
		case next != "":
			w.cursor = next
		}
	}

	res, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.batchSize),
		Block:    w.blockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	return res[0].Messages, nil
}

// handle processes one message and reports whether it may be acknowledged.
func (w *Worker) handle(ctx context.Context, msg redis.XMessage) bool {
	orphan, reason, detail := parseMessage(msg)
	if reason != "" {
		w.bury(ctx, msg, reason, detail)
		return true
	}

	deleteCtx, cancel := context.WithTimeout(ctx, w.deleteTimeout)
	err := w.assets.Delete(deleteCtx, orphan.Key)
	cancel()
	if err == nil {
		w.logger.Info("orphan reclaimed",
			"asset_key", orphan.Key,
			"reason", orphan.Reason,
			"place_id", orphan.PlaceID,
			"age_ms", time.Now().UnixMilli()-orphan.QueuedAt,
		)
		w.metrics.IncAssetReclaimed("success")
		return true
	}

	if deliveries := w.deliveries(ctx, msg.ID); deliveries >= w.maxDeliveries {
		w.bury(ctx, msg, "delete_failed", err.Error())
		return true
	}
	w.logger.Warn("orphan delete failed, left pending",
		"message_id", msg.ID,
		"asset_key", orphan.Key,
		"error", err,
	)
	w.metrics.IncAssetReclaimed("failed")
	return false
}

// deliveries returns the delivery count Redis holds for a pending message,
// or zero when it cannot be read.
func (w *Worker) deliveries(ctx context.Context, id string) int64 {
	entries, err := w.redis.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: StreamKey,
		Group:  ConsumerGroup,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(entries) == 0 {
		return 0
	}
	return entries[0].RetryCount
}

// bury copies a message to the dead-letter stream. The caller acknowledges
// the original even when the copy fails, so a poison message cannot wedge
// the group.
func (w *Worker) bury(ctx context.Context, msg redis.XMessage, reason, detail string) {
	w.logger.Warn("dead-lettering orphan message",
		"message_id", msg.ID,
		"reason", reason,
		"detail", detail,
	)
	w.metrics.IncAssetReclaimed("dead_lettered")

	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: 10000,
		Approx: true,
		Values: map[string]interface{}{
			"source_id": msg.ID,
			"reason":    reason,
			"detail":    detail,
			"payload":   msg.Values["payload"],
			"consumer":  w.consumerID,
			"buried_at": time.Now().UnixMilli(),
		},
	}).Err()
	if err != nil {
		w.logger.Error("dead-letter write failed", "message_id", msg.ID, "error", err)
	}
}

// reportDepth publishes pending plus undelivered entries for the group.
func (w *Worker) reportDepth(ctx context.Context) {
	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			w.logger.Warn("reading orphan queue depth failed", "error", err)
		}
		return
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			w.metrics.SetReclaimQueueDepth(g.Pending + g.Lag)
			return
		}
	}
}

// parseMessage decodes a stream message. A non-empty reason marks poison.
func parseMessage(msg redis.XMessage) (Orphan, string, string) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return Orphan{}, "invalid_format", "payload field missing or not a string"
	}

	var orphan Orphan
	if err := json.Unmarshal([]byte(raw), &orphan); err != nil {
		return Orphan{}, "unmarshal_error", err.Error()
	}
	if err := ValidateOrphan(orphan); err != nil {
		return Orphan{}, "validation_error", err.Error()
	}
	return orphan, "", ""
}

// isConsumerGroupExistsError matches the BUSYGROUP reply to XGROUP CREATE.
func isConsumerGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func backoff(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

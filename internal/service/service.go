// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/spotshare/spotshare/internal/apperror"
	"github.com/spotshare/spotshare/internal/asset"
	"github.com/spotshare/spotshare/internal/metrics"
	"github.com/spotshare/spotshare/internal/model"
	"github.com/spotshare/spotshare/internal/reclaim"
	"github.com/spotshare/spotshare/internal/store"
)

// Client-facing messages.
const (
	msgInvalidInputs   = "Invalid inputs passed, please check your data."
	msgUserNotFound    = "Could not find user for provided id."
	msgPlaceNotFound   = "Could not find a place for the provided id."
	msgUnsupportedType = "Invalid image type, only png, jpeg and jpg are allowed."
	msgImageTooLarge   = "Image is too large."
)

const (
	// DefaultMaxImageSize is the largest accepted image in bytes.
	DefaultMaxImageSize = 500000

	// cleanupTimeout bounds one best-effort image deletion.
	cleanupTimeout = 10 * time.Second
)

// ImageStore is the subset of asset.Store the services use.
type ImageStore interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// OrphanQueue records images whose cleanup failed.
type OrphanQueue interface {
	Enqueue(ctx context.Context, orphan reclaim.Orphan) error
}

// PlaceCache is a read-through cache for single places. A fill reserved
// with ReserveFill is dropped by DeletePlace, and SetPlace or
// SetNegativeCache with a dropped token return cache.ErrFillRevoked.
type PlaceCache interface {
	GetPlace(ctx context.Context, id string) (*model.Place, error)
	ReserveFill(ctx context.Context, id string) (string, error)
	SetPlace(ctx context.Context, place *model.Place, token string) error
	SetNegativeCache(ctx context.Context, id, token string) error
	DeletePlace(ctx context.Context, id string) error
	IsNegativelyCached(ctx context.Context, id string) (bool, error)
}

// Image is an uploaded image awaiting storage.
type Image struct {
	Data        []byte
	ContentType string
}

// Option configures optional service collaborators.
type Option func(*options)

type options struct {
	cache        PlaceCache
	orphans      OrphanQueue
	metrics      metrics.Recorder
	maxAttempts  int
	maxImageSize int64
	now          func() time.Time
}

// WithCache enables the place read cache.
func WithCache(c PlaceCache) Option {
	return func(o *options) { o.cache = c }
}

// WithOrphanQueue sends failed image cleanups to q for later deletion.
func WithOrphanQueue(q OrphanQueue) Option {
	return func(o *options) { o.orphans = q }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.metrics = r
		}
	}
}

// WithMaxAttempts caps transaction attempts on transient failures.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithMaxImageSize sets the largest accepted image in bytes.
func WithMaxImageSize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxImageSize = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		metrics:      metrics.NewNoop(),
		maxAttempts:  DefaultMaxAttempts,
		maxImageSize: DefaultMaxImageSize,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newID() string {
	return ulid.Make().String()
}

func validateImage(op string, img *Image, maxSize int64) error {
	if img == nil {
		return nil
	}
	if !asset.IsAllowedType(img.ContentType) {
		return apperror.Validation(op, msgUnsupportedType)
	}
	if len(img.Data) == 0 {
		return apperror.Validation(op, msgInvalidInputs)
	}
	if int64(len(img.Data)) > maxSize {
		return apperror.Validation(op, msgImageTooLarge)
	}
	return nil
}

// mapStoreError translates store sentinels into domain errors. Errors that
// already carry a kind pass through unchanged.
func mapStoreError(op string, err error, fallback string) error {
	if apperror.KindOf(err) != apperror.KindInternal {
		return err
	}
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		return apperror.Wrap(apperror.KindNotFound, op, msgUserNotFound, err)
	case errors.Is(err, store.ErrPlaceNotFound):
		return apperror.Wrap(apperror.KindNotFound, op, msgPlaceNotFound, err)
	default:
		return apperror.Service(op, fallback, err)
	}
}

// janitor deletes images nothing references anymore. Failures never reach
// the caller; they are logged, counted and queued for the reclaim worker.
type janitor struct {
	images  ImageStore
	orphans OrphanQueue
	metrics metrics.Recorder
	logger  *slog.Logger
}

func (j *janitor) discard(ctx context.Context, op, key, reason, placeID, userID string) {
	if key == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	err := j.images.Delete(ctx, key)
	if err == nil {
		return
	}

	j.logger.Warn("image cleanup failed",
		"op", op,
		"asset_key", key,
		"place_id", placeID,
		"user_id", userID,
		"reason", reason,
		"error", err,
	)
	j.metrics.IncAssetOrphaned(reason)

	if j.orphans == nil {
		return
	}
	orphan := reclaim.Orphan{
		Key:      key,
		Reason:   reason,
		PlaceID:  placeID,
		UserID:   userID,
		QueuedAt: time.Now().UnixMilli(),
	}
	if err := j.orphans.Enqueue(ctx, orphan); err != nil {
		j.logger.Error("failed to queue orphan image",
			"asset_key", key,
			"error", err,
		)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

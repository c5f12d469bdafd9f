// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Place lifecycle metrics
	IncPlaceCreated()
	IncPlaceUpdated()
	IncPlaceDeleted()
	IncPlaceCacheHit()
	IncPlaceCacheMiss()

	// Transaction metrics
	IncTxRetry()
	ObserveTxDuration(duration time.Duration)

	// Asset metrics
	IncAssetOrphaned(reason string)  // reason: "compensation" or "retired"
	IncAssetReclaimed(status string) // status: "success", "failed", "dead_lettered"
	SetReclaimQueueDepth(depth int64)

	// Auth metrics
	IncAuthFailure(reason string)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}

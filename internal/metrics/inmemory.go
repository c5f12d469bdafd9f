package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	PlacesCreated     uint64
	PlacesUpdated     uint64
	PlacesDeleted     uint64
	PlaceCacheHits    uint64
	PlaceCacheMisses  uint64
	TxRetries         uint64
	TxDurationCount   uint64
	TxDurationTotalNs int64
	AssetsOrphaned    uint64
	AssetsReclaimed   uint64
	ReclaimFailed     uint64
	ReclaimDeadLetter uint64
	ReclaimQueueDepth int64
	AuthFailures      uint64
}

// InMemoryRecorder stores metrics in memory for tests and the /metrics
// endpoint.
type InMemoryRecorder struct {
	placesCreated     atomic.Uint64
	placesUpdated     atomic.Uint64
	placesDeleted     atomic.Uint64
	placeCacheHits    atomic.Uint64
	placeCacheMisses  atomic.Uint64
	txRetries         atomic.Uint64
	txDurationCount   atomic.Uint64
	txDurationTotalNs atomic.Int64
	assetsOrphaned    atomic.Uint64
	assetsReclaimed   atomic.Uint64
	reclaimFailed     atomic.Uint64
	reclaimDeadLetter atomic.Uint64
	reclaimQueueDepth atomic.Int64
	authFailures      atomic.Uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		PlacesCreated:     m.placesCreated.Load(),
		PlacesUpdated:     m.placesUpdated.Load(),
		PlacesDeleted:     m.placesDeleted.Load(),
		PlaceCacheHits:    m.placeCacheHits.Load(),
		PlaceCacheMisses:  m.placeCacheMisses.Load(),
		TxRetries:         m.txRetries.Load(),
		TxDurationCount:   m.txDurationCount.Load(),
		TxDurationTotalNs: m.txDurationTotalNs.Load(),
		AssetsOrphaned:    m.assetsOrphaned.Load(),
		AssetsReclaimed:   m.assetsReclaimed.Load(),
		ReclaimFailed:     m.reclaimFailed.Load(),
		ReclaimDeadLetter: m.reclaimDeadLetter.Load(),
		ReclaimQueueDepth: m.reclaimQueueDepth.Load(),
		AuthFailures:      m.authFailures.Load(),
	}
}

func (m *InMemoryRecorder) IncPlaceCreated() { m.placesCreated.Add(1) }
func (m *InMemoryRecorder) IncPlaceUpdated() { m.placesUpdated.Add(1) }
func (m *InMemoryRecorder) IncPlaceDeleted() { m.placesDeleted.Add(1) }
func (m *InMemoryRecorder) IncPlaceCacheHit() { m.placeCacheHits.Add(1) }
func (m *InMemoryRecorder) IncPlaceCacheMiss() { m.placeCacheMisses.Add(1) }
func (m *InMemoryRecorder) IncTxRetry() { m.txRetries.Add(1) }

// ObserveTxDuration records the wall time of one transaction attempt.
func (m *InMemoryRecorder) ObserveTxDuration(duration time.Duration) {
	m.txDurationCount.Add(1)
	m.txDurationTotalNs.Add(duration.Nanoseconds())
}

// IncAssetOrphaned counts images left behind by a failed cleanup.
func (m *InMemoryRecorder) IncAssetOrphaned(string) { m.assetsOrphaned.Add(1) }

// IncAssetReclaimed counts reclaim attempts by outcome.
func (m *InMemoryRecorder) IncAssetReclaimed(status string) {
	switch status {
	case "success":
		m.assetsReclaimed.Add(1)
	case "dead_lettered":
		m.reclaimDeadLetter.Add(1)
	default:
		m.reclaimFailed.Add(1)
	}
}

func (m *InMemoryRecorder) SetReclaimQueueDepth(depth int64) { m.reclaimQueueDepth.Store(depth) }
func (m *InMemoryRecorder) IncAuthFailure(string) { m.authFailures.Add(1) }

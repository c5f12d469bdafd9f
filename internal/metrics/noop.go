package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncPlaceCreated() {}
func (n *NoopRecorder) IncPlaceUpdated() {}
func (n *NoopRecorder) IncPlaceDeleted() {}
func (n *NoopRecorder) IncPlaceCacheHit() {}
func (n *NoopRecorder) IncPlaceCacheMiss() {}
func (n *NoopRecorder) IncTxRetry() {}
func (n *NoopRecorder) ObserveTxDuration(time.Duration) {}
func (n *NoopRecorder) IncAssetOrphaned(string) {}
func (n *NoopRecorder) IncAssetReclaimed(string) {}
func (n *NoopRecorder) SetReclaimQueueDepth(int64) {}
func (n *NoopRecorder) IncAuthFailure(string) {}

package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestInMemoryRecorder_Snapshot(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	m.IncPlaceCreated()
	m.IncPlaceCreated()
	m.IncPlaceDeleted()
	m.ObserveTxDuration(2 * time.Millisecond)
	m.IncAssetReclaimed("success")
	m.IncAssetReclaimed("failed")
	m.IncAssetReclaimed("dead_lettered")
	m.SetReclaimQueueDepth(7)

	snap := m.Snapshot()
	if snap.PlacesCreated != 2 || snap.PlacesDeleted != 1 {
		t.Errorf("place counters = %+v", snap)
	}
	if snap.TxDurationCount != 1 || snap.TxDurationTotalNs != int64(2*time.Millisecond) {
		t.Errorf("tx duration = %d/%d", snap.TxDurationCount, snap.TxDurationTotalNs)
	}
	if snap.AssetsReclaimed != 1 || snap.ReclaimFailed != 1 || snap.ReclaimDeadLetter != 1 {
		t.Errorf("reclaim counters = %+v", snap)
	}
	if snap.ReclaimQueueDepth != 7 {
		t.Errorf("ReclaimQueueDepth = %d, want 7", snap.ReclaimQueueDepth)
	}
}

func TestInMemoryRecorder_Concurrent(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncTxRetry()
		}()
	}
	wg.Wait()

	if got := m.Snapshot().TxRetries; got != 50 {
		t.Errorf("TxRetries = %d, want 50", got)
	}
}

func TestNoopRecorder_SatisfiesRecorder(t *testing.T) {
	t.Parallel()

	var r Recorder = NewNoop()
	r.IncPlaceCreated()
	r.IncAssetOrphaned("compensation")
}

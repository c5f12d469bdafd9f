package handler

import (
	"bufio"
	"net/http"
	"strconv"

	"github.com/spotshare/spotshare/internal/metrics"
)

// MetricsHandler serves a metrics.Snapshot as Prometheus text.
type MetricsHandler struct {
	source metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(source metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{source: source}
}

type family struct {
	name, kind, help string
	samples          []sample
}

type sample struct {
	suffix string
	value  string
}

func counter(name, help string, v uint64) family {
	return family{name: name, kind: "counter", help: help,
		samples: []sample{{value: strconv.FormatUint(v, 10)}}}
}

func families(s metrics.Snapshot) []family {
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	return []family{
		counter("spotshare_places_created_total", "Places created.", s.PlacesCreated),
		counter("spotshare_places_updated_total", "Places updated.", s.PlacesUpdated),
		counter("spotshare_places_deleted_total", "Places deleted.", s.PlacesDeleted),
		counter("spotshare_place_cache_hits_total", "Place reads served from cache.", s.PlaceCacheHits),
		counter("spotshare_place_cache_misses_total", "Place reads that went to the store.", s.PlaceCacheMisses),
		counter("spotshare_tx_retries_total", "Transactions retried after a transient failure.", s.TxRetries),
		{name: "spotshare_tx_duration_seconds", kind: "summary", help: "Transaction wall time.",
			samples: []sample{
				{suffix: "_count", value: u(s.TxDurationCount)},
				{suffix: "_sum", value: strconv.FormatFloat(float64(s.TxDurationTotalNs)/1e9, 'f', 6, 64)},
			}},
		counter("spotshare_assets_orphaned_total", "Images left without an owner by a failed or finished write.", s.AssetsOrphaned),
		{name: "spotshare_assets_reclaimed_total", kind: "counter", help: "Orphan image deletions by outcome.",
			samples: []sample{
				{suffix: `{status="success"}`, value: u(s.AssetsReclaimed)},
				{suffix: `{status="failed"}`, value: u(s.ReclaimFailed)},
				{suffix: `{status="dead_lettered"}`, value: u(s.ReclaimDeadLetter)},
			}},
		{name: "spotshare_reclaim_queue_depth", kind: "gauge", help: "Orphan messages pending or not yet delivered.",
			samples: []sample{{value: strconv.FormatInt(s.ReclaimQueueDepth, 10)}}},
		counter("spotshare_auth_failures_total", "Rejected credentials and tokens.", s.AuthFailures),
	}
}

// Metrics writes the current snapshot in the Prometheus text format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	bw := bufio.NewWriter(w)
	for _, f := range families(h.source.Snapshot()) {
		bw.WriteString("# HELP " + f.name + " " + f.help + "\n")
		bw.WriteString("# TYPE " + f.name + " " + f.kind + "\n")
		for _, s := range f.samples {
			bw.WriteString(f.name + s.suffix + " " + s.value + "\n")
		}
	}
	_ = bw.Flush()
}

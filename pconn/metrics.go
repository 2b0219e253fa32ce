package pconn

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prism_session_commands_enqueued_total",
		Help: "Property commands accepted into the pending batch, by operation",
	}, []string{"op"})

	flushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prism_session_flushes_total",
		Help: "Batches delivered to the compositor",
	})

	flushedBatchBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "prism_session_flushed_batch_bytes",
		Help:    "Size of delivered command batches",
		Buckets: prometheus.ExponentialBuckets(64, 2, 12),
	})
)

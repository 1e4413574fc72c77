// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_ingest_items_total",
		Help: "Papers processed, by outcome.",
	}, []string{"outcome"})

	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_ingest_batches_total",
		Help: "Ingestion batches run, by status.",
	}, []string{"status"})

	downloadsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paper_ingest_downloads_in_flight",
		Help: "PDF downloads currently holding a download slot.",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paper_ingest_batch_duration_seconds",
		Help:    "Wall-clock duration of ingestion batches.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})
)

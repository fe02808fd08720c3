package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Record metrics
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evtx2json_records_total",
			Help: "Records read from sources, labelled by outcome (succeeded, failed, filtered)",
		},
		[]string{"status"},
	)

	RecordFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evtx2json_record_failures_total",
			Help: "Failed records, labelled by error kind",
		},
		[]string{"kind"},
	)

	PayloadShapes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evtx2json_payload_shapes_total",
			Help: "Normalized records by payload shape",
		},
		[]string{"shape"},
	)

	NormalizationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evtx2json_normalization_duration_seconds",
			Help:    "Duration of single-record normalization in seconds",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		},
	)

	// File metrics
	FilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evtx2json_files_total",
			Help: "Input files processed, labelled by status (ok, error)",
		},
		[]string{"status"},
	)
)

// Record outcome labels.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusFiltered  = "filtered"
)

// WriteTextfile dumps the default registry in text exposition format for the
// node_exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

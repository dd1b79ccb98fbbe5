// Package metrics holds the Prometheus counters for the recorder and the
// loader. Counters register with the default registry on first use of the
// package.
package metrics

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Prefix starts the name of every metric this package registers.
const Prefix = "casestore_"

var (
	metricRecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casestore_records_written_total",
			Help: "Number of records appended to a case file.",
		},
		[]string{
			"format", // text, binary
			"kind",   // simulation_info, driver_info, iteration_case
		},
	)
	metricBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casestore_record_bytes_total",
			Help: "Bytes appended to case files, including framing.",
		},
		[]string{"format"},
	)
	metricSerializationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casestore_serialization_failures_total",
			Help: "Records rejected because a value could not be represented.",
		},
		[]string{"format"},
	)
	metricWritesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casestore_writes_dropped_total",
			Help: "Writes discarded because the recorder was closed.",
		},
		[]string{"format"},
	)
	metricLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casestore_loads_total",
			Help: "Case file loads by result.",
		},
		[]string{
			"format",
			"result", // ok, error
		},
	)
	metricCasesLoaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "casestore_cases_loaded_total",
			Help: "Iteration cases read by successful loads.",
		},
	)
)

// RecordWritten counts one appended record of n bytes.
func RecordWritten(format, kind string, n int) {
	metricRecordsWritten.WithLabelValues(format, kind).Inc()
	metricBytesWritten.WithLabelValues(format).Add(float64(n))
}

// SerializationFailed counts one rejected record.
func SerializationFailed(format string) {
	metricSerializationFailures.WithLabelValues(format).Inc()
}

// WriteDropped counts one write discarded after close.
func WriteDropped(format string) {
	metricWritesDropped.WithLabelValues(format).Inc()
}

// Loaded counts a load and, on success, the cases it read.
func Loaded(format string, cases int, err error) {
	if err != nil {
		metricLoads.WithLabelValues(format, "error").Inc()
		return
	}
	metricLoads.WithLabelValues(format, "ok").Inc()
	metricCasesLoaded.Add(float64(cases))
}

// Write dumps the casestore metrics of the default registry in the
// Prometheus text exposition format.
func Write(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), Prefix) {
			continue
		}
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

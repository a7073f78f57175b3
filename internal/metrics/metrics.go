// Package metrics exposes the scan engine's ambient internal
// instrumentation via prometheus client gauges/counters. This is not the
// user-facing progress/rendering layer spec.md places out of scope — just
// raw series a collector could scrape.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	BlocksExamined = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "poolscan",
		Name:      "blocks_examined_total",
		Help:      "Block pointers visited by the recursor across all scans.",
	})
	BlocksIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "poolscan",
		Name:      "blocks_io_issued_total",
		Help:      "Scan I/O reads issued to the device layer.",
	})
	ScrubInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "poolscan",
		Name:      "scrub_inflight",
		Help:      "Scrub reads currently admitted and outstanding.",
	})
	DDTEntriesVisited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "poolscan",
		Name:      "ddt_entries_visited_total",
		Help:      "Dedup-table entries visited by the pre-pass walk.",
	})
	ScanErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "poolscan",
		Name:      "scan_errors_total",
		Help:      "Non-speculative checksum/IO errors counted by a scan.",
	})
	ScanState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "poolscan",
		Name:      "scan_state",
		Help:      "Current scan state machine value (one gauge per state name, 1 when active).",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(
		BlocksExamined,
		BlocksIssued,
		ScrubInflight,
		DDTEntriesVisited,
		ScanErrors,
		ScanState,
	)
}

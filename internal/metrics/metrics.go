package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfimposer",
			Name:      "operations_total",
			Help:      "Operations run by op (crop, booklet, auto) and result",
		},
		[]string{"op", "result"},
	)

	operationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdfimposer",
			Name:      "operation_duration_seconds",
			Help:      "Duration of operations by op",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"op"},
	)

	pagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfimposer",
			Name:      "pages_processed_total",
			Help:      "Cropped pages by outcome (rescaled, passthrough)",
		},
		[]string{"outcome"},
	)

	sheetSides = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pdfimposer",
			Name:      "sheet_sides_total",
			Help:      "Booklet sheet sides written",
		},
	)

	blankSlots = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pdfimposer",
			Name:      "blank_slots_total",
			Help:      "Blank slots inserted by booklet padding",
		},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfimposer",
			Name:      "bounds_cache_lookups_total",
			Help:      "Bounds cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	registerOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(operations, operationLatency, pagesProcessed, sheetSides, blankSlots, cacheLookups)
	})
}

// WriteTextfile dumps the default registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

func ObserveOperation(op, result string, dur time.Duration) {
	operations.WithLabelValues(op, result).Inc()
	operationLatency.WithLabelValues(op).Observe(dur.Seconds())
}

func IncPage(outcome string)       { pagesProcessed.WithLabelValues(outcome).Inc() }
func AddSheetSides(n int)          { sheetSides.Add(float64(n)) }
func AddBlankSlots(n int)          { blankSlots.Add(float64(n)) }
func IncCacheLookup(result string) { cacheLookups.WithLabelValues(result).Inc() }

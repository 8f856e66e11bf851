package metrics

import (
	"errors"

	"github.com/ChristianF88/pradix/radix"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var SortsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pradix_sorts_total",
		Help: "Sorts by key type and result",
	},
	[]string{"key_type", "result"},
)

var KeysSorted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pradix_keys_sorted_total",
		Help: "Keys sorted successfully",
	},
	[]string{"key_type"},
)

var PassesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "pradix_passes_total",
		Help: "Radix passes completed",
	},
)

var BucketGrowths = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "pradix_bucket_growths_total",
		Help: "Bucket capacity doublings",
	},
)

var ArrayGrowths = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "pradix_array_growths_total",
		Help: "Working array reallocations",
	},
)

var PeakReservedBytes = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "pradix_peak_reserved_bytes",
		Help: "Peak bytes reserved by the last sort",
	},
)

var SortLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pradix_sort_latency_seconds",
		Help:    "Sort latency",
		Buckets: prometheus.ExponentialBuckets(0.000001, 10, 10),
	},
	[]string{"key_type"},
)

var PassLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "pradix_pass_latency_seconds",
		Help:    "Latency of a single radix pass",
		Buckets: prometheus.ExponentialBuckets(0.000001, 10, 10),
	},
)

// ErrorKind names the failure class of a sort error for the result label.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, radix.ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, radix.ErrAllocation):
		return "allocation"
	case errors.Is(err, radix.ErrCapacity):
		return "capacity"
	case errors.Is(err, radix.ErrPlacement):
		return "placement"
	default:
		return "error"
	}
}

// ObserveSort records the outcome of one Sort call.
func ObserveSort(keyType string, st radix.Stats, err error) {
	SortsTotal.WithLabelValues(keyType, ErrorKind(err)).Inc()
	BucketGrowths.Add(float64(st.BucketGrowths))
	ArrayGrowths.Add(float64(st.ArrayGrowths))
	PeakReservedBytes.Set(float64(st.PeakReserved))
	if err != nil {
		return
	}
	KeysSorted.WithLabelValues(keyType).Add(float64(st.Keys))
	SortLatency.WithLabelValues(keyType).Observe(st.Duration.Seconds())
	PassesTotal.Add(float64(len(st.Passes)))
	for _, p := range st.Passes {
		PassLatency.Observe(p.Duration.Seconds())
	}
}

// WriteTextfile dumps the default registry in the node-exporter textfile
// format, for batch runs that exit before anything could scrape them.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

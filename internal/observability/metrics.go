package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/example/surge-dashboard/internal/models"
)

var (
	SurgeEstimatesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "surge_dashboard", Name: "surge_estimates_total", Help: "Total number of zone surge estimates"})
	SurgeMultiplier     = promauto.NewGaugeVec(prometheus.GaugeOpts{Namespace: "surge_dashboard", Name: "surge_multiplier", Help: "Latest surge multiplier per zone"}, []string{"zone"})
	SurgeDemand         = promauto.NewGaugeVec(prometheus.GaugeOpts{Namespace: "surge_dashboard", Name: "surge_demand", Help: "Latest active ride requests per zone"}, []string{"zone"})
	SurgeSupply         = promauto.NewGaugeVec(prometheus.GaugeOpts{Namespace: "surge_dashboard", Name: "surge_supply", Help: "Latest available drivers per zone"}, []string{"zone"})
	SnapshotsRecorded   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "surge_dashboard", Name: "surge_snapshots_total", Help: "Total surge records written as snapshots"})

	EntitiesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "surge_dashboard", Name: "generator_entities_total", Help: "Synthetic records inserted by the generator"},
		[]string{"collection"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "surge_dashboard", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "surge_dashboard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// ObserveSurge publishes a freshly computed record to the per-zone gauges.
func ObserveSurge(rec models.SurgeRecord) {
	SurgeEstimatesTotal.Inc()
	SurgeMultiplier.WithLabelValues(rec.ZoneID).Set(rec.Multiplier)
	SurgeDemand.WithLabelValues(rec.ZoneID).Set(float64(rec.Demand))
	SurgeSupply.WithLabelValues(rec.ZoneID).Set(float64(rec.Supply))
}

package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parkd",
			Subsystem: "session",
			Name:      "requests_total",
			Help:      "Session requests by kind and reply status.",
		},
		[]string{"kind", "status"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "parkd",
			Subsystem: "session",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent handling one request in the dispatch loop.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		},
		[]string{"kind"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "parkd",
			Subsystem: "session",
			Name:      "active",
			Help:      "Open client sessions.",
		},
	)
	connectionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parkd",
			Subsystem: "session",
			Name:      "closed_total",
			Help:      "Closed sessions by reason.",
		},
		[]string{"reason"},
	)
	lotOccupied = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "parkd",
			Subsystem: "lot",
			Name:      "occupied_spaces",
			Help:      "Occupied spaces per lot.",
		},
		[]string{"lot"},
	)
	lotCapacity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "parkd",
			Subsystem: "lot",
			Name:      "total_spaces",
			Help:      "Total spaces per lot.",
		},
		[]string{"lot"},
	)
	earnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parkd",
			Subsystem: "lot",
			Name:      "earnings_total",
			Help:      "Settled fees per lot in currency units.",
		},
		[]string{"lot"},
	)
	discoveryRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "parkd",
			Subsystem: "discovery",
			Name:      "requests_total",
			Help:      "Discovery datagrams answered.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			requests,
			dispatchDuration,
			sessionsActive,
			connectionsClosed,
			lotOccupied,
			lotCapacity,
			earnings,
			discoveryRequests,
		)
	})
}

// Handler serves the default registry for /metrics.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordRequest(kind, status string, duration time.Duration) {
	RegisterMetrics()
	requests.WithLabelValues(kind, status).Inc()
	dispatchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func SetActiveSessions(n int) {
	RegisterMetrics()
	sessionsActive.Set(float64(n))
}

func RecordSessionClosed(reason string) {
	RegisterMetrics()
	connectionsClosed.WithLabelValues(reason).Inc()
}

func SetLotOccupancy(lotID, occupied, total int) {
	RegisterMetrics()
	label := strconv.Itoa(lotID)
	lotOccupied.WithLabelValues(label).Set(float64(occupied))
	lotCapacity.WithLabelValues(label).Set(float64(total))
}

func RecordEarnings(lotID int, units float64) {
	RegisterMetrics()
	if units <= 0 {
		return
	}
	earnings.WithLabelValues(strconv.Itoa(lotID)).Add(units)
}

func RecordDiscovery() {
	RegisterMetrics()
	discoveryRequests.Inc()
}

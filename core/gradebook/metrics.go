package gradebook

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments Store operations. A nil *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	openStores prometheus.Gauge
}

// NewMetrics creates the gradebook collectors and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gradebook",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Grade store operations by result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gradebook",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Grade store operation latency, remote round trips included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		openStores: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gradebook",
			Name:      "open_stores",
			Help:      "Grade stores currently held in memory.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.duration, m.openStores)
	}
	return m
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) storeOpened() {
	if m != nil {
		m.openStores.Inc()
	}
}

func (m *Metrics) storeClosed() {
	if m != nil {
		m.openStores.Dec()
	}
}

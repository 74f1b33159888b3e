package monitor

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/venkytv/iodevice-watch/internal/device"
	"github.com/venkytv/iodevice-watch/internal/notifier"
)

const (
	fetchOK           = "ok"
	fetchUnauthorized = "unauthorized"
	fetchFailed       = "error"
)

// Metrics holds the monitor's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	fetches       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	healthy       *prometheus.GaugeVec
	cycleDuration prometheus.Histogram
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iodevice",
			Name:      "fetch_total",
			Help:      "Device status fetches by result.",
		}, []string{"result"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iodevice",
			Name:      "notifications_total",
			Help:      "Notifications attempted by kind and delivery result.",
		}, []string{"kind", "result"}),
		healthy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "iodevice",
			Name:      "device_healthy",
			Help:      "1 if the device was healthy at its last successful fetch, else 0.",
		}, []string{"device"}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "iodevice",
			Name:      "cycle_duration_seconds",
			Help:      "Time spent in one digest plus health-check cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}
}

func fetchResult(err error) string {
	switch {
	case err == nil:
		return fetchOK
	case errors.Is(err, device.ErrUnauthorized):
		return fetchUnauthorized
	default:
		return fetchFailed
	}
}

func (m *Metrics) fetched(result string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(result).Inc()
}

func (m *Metrics) notified(kind notifier.Kind, ok bool) {
	if m == nil {
		return
	}
	result := "delivered"
	if !ok {
		result = "failed"
	}
	m.notifications.WithLabelValues(string(kind), result).Inc()
}

func (m *Metrics) setHealthy(id string, healthy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	m.healthy.WithLabelValues(id).Set(v)
}

func (m *Metrics) forget(id string) {
	if m == nil {
		return
	}
	m.healthy.DeleteLabelValues(id)
}

func (m *Metrics) observeCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
}

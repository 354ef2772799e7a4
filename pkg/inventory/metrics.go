package inventory

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "zai_inventory"

// Metrics holds the Prometheus collectors of the inventory core
// 在庫コアのPrometheusメトリクス
type Metrics struct {
	movements     *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	poTransitions *prometheus.CounterVec
}

// NewMetrics creates collectors and registers them with reg.
// A nil reg creates unregistered collectors.
// メトリクスを作成しregに登録する。regがnilの場合は登録しない
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		movements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "movements_total",
			Help:      "Stock movements processed, by type and result.",
		}, []string{"type", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of core operations including retries.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "retries_total",
			Help:      "Transaction retries after transient store failures.",
		}, []string{"operation", "reason"}),
		alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "alerts_total",
			Help:      "Alert creation attempts, by type and outcome.",
		}, []string{"type", "outcome"}),
		poTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "purchase_order_transitions_total",
			Help:      "Committed purchase order state transitions.",
		}, []string{"status"}),
	}
}

func (m *Metrics) observeMovement(t MovementType, err error) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(string(t), ErrorKind(err)).Inc()
}

func (m *Metrics) observeDuration(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeRetry(operation string, err error) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation, ErrorKind(err)).Inc()
}

func (m *Metrics) observeAlert(t AlertType, outcome string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(string(t), outcome).Inc()
}

func (m *Metrics) observeTransition(status POStatus) {
	if m == nil {
		return
	}
	m.poTransitions.WithLabelValues(string(status)).Inc()
}

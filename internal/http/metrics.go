package http

import (
	"github.com/prometheus/client_golang/prometheus"

	"playdeck/internal/core"
	"playdeck/internal/playback"
)

var allStatuses = []core.Status{
	core.StatusDisabled,
	core.StatusNeedsIdentity,
	core.StatusLoading,
	core.StatusReady,
	core.StatusError,
}

// Metrics records controller and HTTP activity. It implements playback.Recorder.
type Metrics struct {
	CommandsTotal      *prometheus.CounterVec
	StatusGauge        *prometheus.GaugeVec
	ReconcileTotal     *prometheus.CounterVec
	TokenRequestsTotal *prometheus.CounterVec
	RateLimitedTotal   prometheus.Counter
	RequestsTotal      *prometheus.CounterVec
}

var _ playback.Recorder = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playdeck_commands_total",
				Help: "Total number of playback commands by outcome",
			},
			[]string{"command", "result"},
		),
		StatusGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "playdeck_status",
				Help: "Current controller status (1 for the active status)",
			},
			[]string{"status"},
		),
		ReconcileTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playdeck_reconcile_total",
				Help: "Total number of reconciled remote states by decision",
			},
			[]string{"decision"},
		),
		TokenRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playdeck_token_requests_total",
				Help: "Total number of playback token requests by outcome",
			},
			[]string{"result"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "playdeck_rate_limited_total",
				Help: "Total number of commands rejected by the flood gate",
			},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playdeck_http_requests_total",
				Help: "Total number of control API requests",
			},
			[]string{"route", "code"},
		),
	}

	reg.MustRegister(
		metrics.CommandsTotal,
		metrics.StatusGauge,
		metrics.ReconcileTotal,
		metrics.TokenRequestsTotal,
		metrics.RateLimitedTotal,
		metrics.RequestsTotal,
	)
	return metrics
}

func (m *Metrics) Command(name string, err error) {
	m.CommandsTotal.WithLabelValues(name, result(err)).Inc()
}

func (m *Metrics) Status(status core.Status) {
	for _, s := range allStatuses {
		value := 0.0
		if s == status {
			value = 1
		}
		m.StatusGauge.WithLabelValues(string(s)).Set(value)
	}
}

func (m *Metrics) Reconcile(decision string) {
	m.ReconcileTotal.WithLabelValues(decision).Inc()
}

func (m *Metrics) TokenRequest(err error) {
	m.TokenRequestsTotal.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	return core.KindCode(err)
}

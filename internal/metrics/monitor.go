package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status codes reported on the family_status gauge: 0 green, 1 amber, 2 red.
const (
	StatusGreen = 0
	StatusAmber = 1
	StatusRed   = 2
)

// Monitor exposes the divergence gauges a monitor process reports at
// /metrics.
type Monitor struct {
	registry *prometheus.Registry

	JensenShannon     *prometheus.GaugeVec
	Wasserstein       *prometheus.GaugeVec
	KolmogorovSmirnov *prometheus.GaugeVec
	FamilyStatus      *prometheus.GaugeVec
	AlertsActive      *prometheus.GaugeVec
}

// NewMonitor builds a fresh registry and registers the monitor gauges
// against it.
func NewMonitor() *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Monitor{
		registry: reg,
		JensenShannon: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "divergence_jensen_shannon",
			Help: "Jensen-Shannon divergence between reference and windowed tag distributions.",
		}, []string{"family_id", "distribution_type"}),
		Wasserstein: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "divergence_wasserstein",
			Help: "Wasserstein-like distance between reference and windowed value quantiles.",
		}, []string{"family_id"}),
		KolmogorovSmirnov: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "divergence_kolmogorov_smirnov",
			Help: "KS-like statistic between reference and windowed size quantiles.",
		}, []string{"family_id"}),
		FamilyStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "family_status",
			Help: "Family divergence status: 0 green, 1 amber, 2 red.",
		}, []string{"family_id", "metric_name"}),
		AlertsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "alerts_active",
			Help: "Active alerts by severity and type.",
		}, []string{"severity", "type"}),
	}
}

// Handler serves the text exposition format for this registry alone.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

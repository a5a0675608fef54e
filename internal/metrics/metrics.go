// Package metrics exposes the runtime's Prometheus series.
package metrics

import (
	"math/big"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mintgate.io/internal/campaign"
)

const namespace = "mintgate"

// Source supplies the values behind the gauge series. Every function must be
// safe to call from the scrape goroutine.
type Source struct {
	Status      func() campaign.Status
	QueueDepth  func() int
	Subscribers func() int
}

// Runtime implements campaign.Observer.
type Runtime struct {
	commands *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	minted   *prometheus.CounterVec
}

var _ campaign.Observer = (*Runtime)(nil)

// NewRuntime registers the collectors for one campaign on reg.
func NewRuntime(reg prometheus.Registerer, campaignID string, src Source) *Runtime {
	labels := prometheus.Labels{"campaign": campaignID}
	f := promauto.With(reg)

	m := &Runtime{
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "runtime",
			Name:        "commands_total",
			Help:        "Commands applied by the runtime, by op and result.",
			ConstLabels: labels,
		}, []string{"op", "result"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "runtime",
			Name:        "apply_duration_seconds",
			Help:        "Time from dequeue to reply for one command.",
			ConstLabels: labels,
			Buckets:     []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}, []string{"op"}),
		minted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "mint",
			Name:        "tokens_total",
			Help:        "Tokens issued, by sale phase.",
			ConstLabels: labels,
		}, []string{"phase"}),
	}

	if src.Status != nil {
		status := src.Status
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "mint", Name: "total_minted",
			Help: "Tokens minted so far.", ConstLabels: labels,
		}, func() float64 { return float64(status().TotalMinted) })
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "mint", Name: "max_supply",
			Help: "Configured collection size.", ConstLabels: labels,
		}, func() float64 { return float64(status().MaxSupply) })
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "treasury", Name: "collected_wei",
			Help: "Wei collected from mints since launch.", ConstLabels: labels,
		}, func() float64 { return weiFloat(status().Collected) })
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "treasury", Name: "balance_wei",
			Help: "Wei held and not yet withdrawn.", ConstLabels: labels,
		}, func() float64 { return weiFloat(status().Balance) })
	}
	if src.QueueDepth != nil {
		depth := src.QueueDepth
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "runtime", Name: "queue_depth",
			Help: "Commands waiting for the runtime loop.", ConstLabels: labels,
		}, func() float64 { return float64(depth()) })
	}
	if src.Subscribers != nil {
		subs := src.Subscribers
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "feed", Name: "subscribers",
			Help: "Connected notification feed subscribers.", ConstLabels: labels,
		}, func() float64 { return float64(subs()) })
	}
	return m
}

func (m *Runtime) ObserveCommand(op campaign.Op, result string, d time.Duration) {
	m.commands.WithLabelValues(string(op), result).Inc()
	m.latency.WithLabelValues(string(op)).Observe(d.Seconds())
}

func (m *Runtime) ObserveMint(phase campaign.Phase, quantity uint64) {
	m.minted.WithLabelValues(string(phase)).Add(float64(quantity))
}

func weiFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rollcall_stream_subscribers",
		Help: "Number of connected progress stream subscribers",
	})
	pushCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_stream_push_total",
		Help: "Total number of events pushed to stream subscribers",
	})
	dropCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_stream_dropped_total",
		Help: "Subscribers disconnected because they fell behind",
	})
	runCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_sync_runs_total",
		Help: "Sync runs by outcome",
	}, []string{"outcome"})
	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rollcall_sync_run_duration_seconds",
		Help:    "Duration of sync runs that dispatched",
		Buckets: prometheus.DefBuckets,
	})
	dispatchCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_sync_dispatch_total",
		Help: "Queued submissions replayed, by outcome",
	}, []string{"outcome"})
	saveCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_gateway_save_total",
		Help: "Gateway saves by outcome",
	}, []string{"outcome"})
	pendingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rollcall_queue_pending",
		Help: "Queued submissions not yet confirmed",
	})
	onlineGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rollcall_network_online",
		Help: "1 when the agent believes it is online",
	})
)

type prometheusObserver struct{}

func NewPrometheusObserver() *prometheusObserver {
	return &prometheusObserver{}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) IncSubscribers() {
	subscribersGauge.Inc()
}
func (p *prometheusObserver) DecSubscribers() {
	subscribersGauge.Dec()
}
func (p *prometheusObserver) RecordPush() {
	pushCounter.Inc()
}
func (p *prometheusObserver) RecordDrop() {
	dropCounter.Inc()
}

func (p *prometheusObserver) ObserveRun(outcome string, d time.Duration) {
	runCounter.WithLabelValues(outcome).Inc()
	if outcome == RunCompleted {
		runDuration.Observe(d.Seconds())
	}
}

func (p *prometheusObserver) ObserveDispatch(outcome string) {
	dispatchCounter.WithLabelValues(outcome).Inc()
}

func (p *prometheusObserver) ObserveSave(outcome string) {
	saveCounter.WithLabelValues(outcome).Inc()
}

func (p *prometheusObserver) SetPending(n int64) {
	pendingGauge.Set(float64(n))
}

func (p *prometheusObserver) SetOnline(online bool) {
	if online {
		onlineGauge.Set(1)
		return
	}
	onlineGauge.Set(0)
}

package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wablast_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "wablast_sessions_active", Help: "Live tenant sessions"},
	)
	SessionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wablast_session_events_total", Help: "Adapter lifecycle events"},
		[]string{"event"},
	)
	DispatchSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wablast_dispatch_sends_total", Help: "Per-recipient send outcomes"},
		[]string{"result"},
	)
	SendLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "wablast_send_latency_seconds", Help: "Gateway send latency"},
	)
	Campaigns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wablast_campaigns_total", Help: "Dispatch campaigns"},
		[]string{"result"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, SessionsActive, SessionEvents, DispatchSends, SendLatency, Campaigns)
}

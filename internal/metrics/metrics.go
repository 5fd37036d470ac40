package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marketstream"

// Metrics holds the collectors shared by every component.
type Metrics struct {
	FramesReceived *prometheus.CounterVec
	FramesDropped  *prometheus.CounterVec
	Events         *prometheus.CounterVec
	Reconnects     *prometheus.CounterVec
	SessionState   *prometheus.GaugeVec
	Subscriptions  *prometheus.GaugeVec
	Published      *prometheus.CounterVec
	Streams        prometheus.Gauge
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// to expose them through promhttp.Handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		FramesReceived: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_received_total",
				Help:      "Raw websocket frames received",
			},
			[]string{"leg"},
		),
		FramesDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_dropped_total",
				Help:      "Frames discarded by the codec",
			},
			[]string{"leg"},
		),
		Events: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Normalized events emitted",
			},
			[]string{"leg", "kind"},
		),
		Reconnects: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconnects_total",
				Help:      "Reconnect attempts",
			},
			[]string{"leg"},
		),
		SessionState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_state",
				Help:      "Session state (0=disconnected 1=connecting 2=connected 3=reconnecting 4=terminated)",
			},
			[]string{"leg"},
		),
		Subscriptions: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "subscriptions",
				Help:      "Distinct symbols subscribed per credential",
			},
			[]string{"credential"},
		),
		Published: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "published_total",
				Help:      "Events handed to the broadcast sink",
			},
			[]string{"credential", "result"},
		),
		Streams: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "streams",
				Help:      "Live registry entries",
			},
		),
	}
}

func (m *Metrics) FrameReceived(leg string) {
	if m == nil {
		return
	}
	m.FramesReceived.WithLabelValues(leg).Inc()
}

func (m *Metrics) FrameDropped(leg string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(leg).Inc()
}

func (m *Metrics) Event(leg, kind string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(leg, kind).Inc()
}

func (m *Metrics) Reconnect(leg string) {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues(leg).Inc()
}

func (m *Metrics) SetState(leg string, state int) {
	if m == nil {
		return
	}
	m.SessionState.WithLabelValues(leg).Set(float64(state))
}

func (m *Metrics) SetSubscriptions(credential string, n int) {
	if m == nil {
		return
	}
	m.Subscriptions.WithLabelValues(credential).Set(float64(n))
}

// PublishResult records one sink publish; err == nil counts as "ok".
func (m *Metrics) PublishResult(credential string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Published.WithLabelValues(credential, result).Inc()
}

func (m *Metrics) SetStreams(n int) {
	if m == nil {
		return
	}
	m.Streams.Set(float64(n))
}

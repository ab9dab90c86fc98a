package client

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the client's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	framesReceived  *prometheus.CounterVec
	framesSent      *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	decodeFailures  prometheus.Counter
	reconnects      prometheus.Counter
	rejections      prometheus.Counter
	connectionState prometheus.Gauge
	unreadContacts  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_frames_received_total",
			Help: "Inbound frames by decoded event kind",
		}, []string{"kind"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_frames_sent_total",
			Help: "Outbound frames handed to the connection",
		}, []string{"frame"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_frames_dropped_total",
			Help: "Outbound frames dropped before reaching the wire",
		}, []string{"reason"}), // reason = "not_connected", "queue_full", "encode"
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_decode_failures_total",
			Help: "Structured frames with a known type but unusable fields",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_reconnects_scheduled_total",
			Help: "Reconnect attempts scheduled after a retryable close",
		}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_session_rejections_total",
			Help: "Terminal rejections by close code or HTTP 401",
		}),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatsync_connection_state",
			Help: "Current connection state (0 idle, 1 connecting, 2 open, 3 reconnecting, 4 rejected, 5 closed)",
		}),
		unreadContacts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatsync_unread_contacts",
			Help: "Contacts currently flagged with unread messages",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.framesReceived,
			m.framesSent,
			m.framesDropped,
			m.decodeFailures,
			m.reconnects,
			m.rejections,
			m.connectionState,
			m.unreadContacts,
		)
	}
	return m
}

func (m *Metrics) frameReceived(kind string) {
	if m != nil {
		m.framesReceived.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) frameSent(name string) {
	if m != nil {
		m.framesSent.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) frameDropped(reason string) {
	if m != nil {
		m.framesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) decodeFailed() {
	if m != nil {
		m.decodeFailures.Inc()
	}
}

func (m *Metrics) reconnectScheduled() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) rejected() {
	if m != nil {
		m.rejections.Inc()
	}
}

func (m *Metrics) setState(s ConnectionState) {
	if m != nil {
		m.connectionState.Set(float64(s))
	}
}

func (m *Metrics) setUnread(n int) {
	if m != nil {
		m.unreadContacts.Set(float64(n))
	}
}

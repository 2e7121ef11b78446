package monitoring

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts the office activity for the Prometheus endpoint.
// The registerer is a parameter so tests register into their own
// registry instead of the process global one.
type Metrics struct {
	online     prometheus.Gauge
	rooms      prometheus.Gauge
	adminOps   *prometheus.CounterVec
	recordings prometheus.Counter
	signals    *prometheus.CounterVec
	chat       prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meetgrid_office_users_online",
			Help: "Connected users right now.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meetgrid_office_rooms_active",
			Help: "Live meeting rooms right now.",
		}),
		adminOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meetgrid_office_admin_ops_total",
			Help: "Administrative operations by kind.",
		}, []string{"kind"}),
		recordings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meetgrid_office_recordings_total",
			Help: "Started meeting recordings.",
		}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meetgrid_office_signals_total",
			Help: "Relayed signaling records by kind.",
		}, []string{"kind"}),
		chat: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meetgrid_office_chat_messages_total",
			Help: "Chat messages passed through the office.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.online, m.rooms, m.adminOps, m.recordings, m.signals, m.chat)
	}
	return m
}

func (m *Metrics) Online(n int)        { m.online.Set(float64(n)) }
func (m *Metrics) Rooms(n int)         { m.rooms.Set(float64(n)) }
func (m *Metrics) AdminOp(kind string) { m.adminOps.WithLabelValues(kind).Inc() }
func (m *Metrics) RecordingStarted()   { m.recordings.Inc() }
func (m *Metrics) Signal(kind string)  { m.signals.WithLabelValues(kind).Inc() }
func (m *Metrics) ChatMessage()        { m.chat.Inc() }

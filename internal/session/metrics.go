package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bhandras/delight-chat/internal/chat"
)

const (
	timelineMain   = "main"
	timelineThread = "thread"
	timelineResync = "resync"
)

// Metrics are the session engine's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Sends     *prometheus.CounterVec
	Reactions *prometheus.CounterVec
	Queries   *prometheus.CounterVec
	Reads     *prometheus.CounterVec
	Events    *prometheus.CounterVec
	Publishes prometheus.Counter
	Messages  prometheus.Gauge
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Sends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsession_sends_total",
			Help: "Settled message sends by outcome",
		}, []string{"outcome"}),
		Reactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsession_reactions_total",
			Help: "Settled reaction toggles by outcome",
		}, []string{"outcome"}),
		Queries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsession_queries_total",
			Help: "Settled history queries by timeline and outcome",
		}, []string{"timeline", "outcome"}),
		Reads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsession_mark_read_total",
			Help: "Mark read dispatches by outcome",
		}, []string{"outcome"}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsession_events_total",
			Help: "Backend events received by type",
		}, []string{"type"}),
		Publishes: f.NewCounter(prometheus.CounterOpts{
			Name: "chatsession_view_publishes_total",
			Help: "Views published to subscribers",
		}),
		Messages: f.NewGauge(prometheus.GaugeOpts{
			Name: "chatsession_messages",
			Help: "Messages in the main timeline at the last publish",
		}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) sendSettled(err error) {
	if m == nil || m.Sends == nil {
		return
	}
	m.Sends.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) reactionSettled(err error) {
	if m == nil || m.Reactions == nil {
		return
	}
	label := "ok"
	if err != nil {
		label = "rolled_back"
	}
	m.Reactions.WithLabelValues(label).Inc()
}

func (m *Metrics) querySettled(timeline string, err error) {
	if m == nil || m.Queries == nil {
		return
	}
	m.Queries.WithLabelValues(timeline, outcome(err)).Inc()
}

func (m *Metrics) readSettled(err error) {
	if m == nil || m.Reads == nil {
		return
	}
	m.Reads.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) readSkipped() {
	if m == nil || m.Reads == nil {
		return
	}
	m.Reads.WithLabelValues("skipped").Inc()
}

func (m *Metrics) event(t chat.EventType) {
	if m == nil || m.Events == nil {
		return
	}
	m.Events.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) published(v View) {
	if m == nil {
		return
	}
	if m.Publishes != nil {
		m.Publishes.Inc()
	}
	if m.Messages != nil {
		m.Messages.Set(float64(len(v.Messages)))
	}
}

// Package metrics holds the prometheus collectors for the signaling server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meet"

// Drop reasons.
const (
	ReasonBackpressure  = "backpressure"
	ReasonUnknownTarget = "unknown_target"
	ReasonNoRoom        = "no_room"
	ReasonRoomMismatch  = "room_mismatch"
	ReasonBadMessage    = "bad_message"
	ReasonClosed        = "closed"
)

// Join rejection reasons.
const (
	RejectInvalidRoom      = "invalid_room"
	RejectParticipantTaken = "participant_taken"
	RejectRateLimited      = "rate_limited"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	RoomsActive        prometheus.Gauge
	ParticipantsActive prometheus.Gauge
	SignalsRelayed     *prometheus.CounterVec
	SignalsDropped     *prometheus.CounterVec
	JoinRejected       *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Rooms with at least one participant.",
		}),
		ParticipantsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants_active",
			Help:      "Participants currently joined to a room.",
		}),
		SignalsRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_relayed_total",
			Help:      "Signaling frames delivered to a participant, by message type.",
		}, []string{"type"}),
		SignalsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_dropped_total",
			Help:      "Signaling frames not delivered, by reason.",
		}, []string{"reason"}),
		JoinRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_rejected_total",
			Help:      "Rejected join-room requests, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		m.RoomsActive,
		m.ParticipantsActive,
		m.SignalsRelayed,
		m.SignalsDropped,
		m.JoinRejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Relayed(msgType string) {
	if m == nil {
		return
	}
	m.SignalsRelayed.WithLabelValues(msgType).Inc()
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.SignalsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.JoinRejected.WithLabelValues(reason).Inc()
}

// Occupancy publishes the directory size after a membership change.
func (m *Metrics) Occupancy(rooms, participants int) {
	if m == nil {
		return
	}
	m.RoomsActive.Set(float64(rooms))
	m.ParticipantsActive.Set(float64(participants))
}

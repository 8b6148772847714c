package rtpsession

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes session counters as prometheus collectors, labeled by
// SSRC. It mirrors the registration-time promauto pattern used for
// dialog-level metrics elsewhere in this codebase's ancestry, scoped down
// to the RTP session.
type Metrics struct {
	packetsSent     *prometheus.CounterVec
	packetsReceived *prometheus.CounterVec
	packetsLost     *prometheus.CounterVec
	jitter          *prometheus.GaugeVec

	lastObserved map[uint32]Stats
}

// NewMetrics registers the RTP session collectors against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the global
// default registry across parallel test binaries.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		packetsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtp_session_packets_sent_total",
			Help: "RTP packets sent, per session SSRC.",
		}, []string{"ssrc"}),
		packetsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtp_session_packets_received_total",
			Help: "RTP packets received, per session SSRC.",
		}, []string{"ssrc"}),
		packetsLost: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtp_session_packets_lost_total",
			Help: "Estimated RTP packets lost, per session SSRC.",
		}, []string{"ssrc"}),
		jitter: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rtp_session_jitter_ms",
			Help: "Smoothed interarrival jitter estimate, per session SSRC.",
		}, []string{"ssrc"}),
		lastObserved: make(map[uint32]Stats),
	}
	return m
}

// Observe publishes the delta between the session's current Stats and
// what was last observed, under its SSRC label. Counters only ever
// increase, so only the delta since the previous Observe call is added.
func (m *Metrics) Observe(s *Session) {
	label := prometheus.Labels{"ssrc": formatSSRC(s.SSRC())}
	stats := s.Stats()
	prev := m.lastObserved[s.SSRC()]

	m.packetsSent.With(label).Add(float64(stats.PacketsSent - prev.PacketsSent))
	m.packetsReceived.With(label).Add(float64(stats.PacketsReceived - prev.PacketsReceived))
	m.packetsLost.With(label).Add(float64(stats.PacketsLost - prev.PacketsLost))
	m.jitter.With(label).Set(stats.Jitter)

	m.lastObserved[s.SSRC()] = stats
}

func formatSSRC(ssrc uint32) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = hexDigits[ssrc&0xF]
		ssrc >>= 4
	}
	return string(buf)
}

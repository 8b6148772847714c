package rtpsession

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/sipcore/agent/pkg/rtp"
)

func TestMetricsObserveOnlyAddsDeltas(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s := New(Config{SSRC: 42, PayloadType: rtp.PayloadPCMU}, nil)

	s.CreatePacket([]byte{1, 2, 3}, false)
	m.Observe(s)

	s.CreatePacket([]byte{1, 2, 3}, false)
	m.Observe(s)

	families, err := reg.Gather()
	require.NoError(t, err)

	var sent float64
	for _, fam := range families {
		if fam.GetName() != "rtp_session_packets_sent_total" {
			continue
		}
		for _, metric := range fam.Metric {
			sent += metric.GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(2), sent)
}

func TestMetricsLabelsBySSRC(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s := New(Config{SSRC: 7, PayloadType: rtp.PayloadPCMU}, nil)

	s.CreatePacket([]byte{1}, false)
	m.Observe(s)

	families, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, fam := range families {
		if fam.GetName() != "rtp_session_packets_sent_total" {
			continue
		}
		for _, metric := range fam.Metric {
			for _, lbl := range metric.GetLabel() {
				if lbl.GetName() == "ssrc" && lbl.GetValue() == formatSSRC(7) {
					found = true
				}
			}
		}
	}
	require.True(t, found)
}

package rtpsession

import "time"

// Report is an RTCP receiver-report's payload (RFC 3550 §6.4.2). Its
// generation is in scope; scheduling its transmission over the wire is
// not (§1 Non-goals).
type Report struct {
	SSRC                    uint32
	FractionLost            uint8
	CumulativePacketsLost   int32
	ExtendedHighestSequence uint32
	Jitter                  uint32
	LastSRTimestamp         uint32
	DelaySinceLastSR        uint32
}

// RTCPReport produces a receiver report snapshot for the session's
// current state, evaluated as of now.
func (s *Session) RTCPReport(now time.Time) Report {
	extendedHighest := s.seqWraps<<16 | uint32(s.highestSeq)
	expected := extendedHighest - uint32(s.baseSeq) + 1
	received := uint32(s.stats.PacketsReceived)

	var cumulativeLost int32
	if expected > received {
		cumulativeLost = int32(expected - received)
	}

	var fractionLost uint8
	if expected > 0 && cumulativeLost > 0 {
		fraction := (float64(cumulativeLost) / float64(expected)) * 256.0
		if fraction > 255 {
			fraction = 255
		}
		fractionLost = uint8(fraction)
	}

	var delay uint32
	if !s.lastSRReceivedAt.IsZero() {
		// Expressed in units of 1/65536 second, per RFC 3550 §6.4.1.
		delay = uint32(now.Sub(s.lastSRReceivedAt).Seconds() * 65536)
	}

	return Report{
		SSRC:                    s.ssrc,
		FractionLost:            fractionLost,
		CumulativePacketsLost:   cumulativeLost,
		ExtendedHighestSequence: extendedHighest,
		Jitter:                  uint32(s.jitter),
		LastSRTimestamp:         s.lastSR,
		DelaySinceLastSR:        delay,
	}
}

// NoteSenderReport records the arrival of a remote RTCP sender report so
// DelaySinceLastSR can be computed on the next receiver report.
func (s *Session) NoteSenderReport(ntpMiddle32 uint32, receivedAt time.Time) {
	s.lastSR = ntpMiddle32
	s.lastSRReceivedAt = receivedAt
}

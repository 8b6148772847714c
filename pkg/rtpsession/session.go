// Package rtpsession implements the per-call RTP session: outgoing packet
// construction, incoming packet accounting (loss/duplicate/out-of-order
// classification, RFC 3550 jitter estimation), and the jitter buffer that
// sits between the two. Grounded on the session/stats bookkeeping style
// of a hand-rolled RTP session type, collapsed onto the single-threaded
// drain-on-insert model the concurrency design requires instead of a
// background ticker goroutine.
package rtpsession

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/sipcore/agent/pkg/rtp"
)

// Config configures a Session. Zero values fall back to the package
// defaults (§4.5): 50-packet buffer, 100ms target delay, 500ms ceiling.
type Config struct {
	SSRC               uint32
	PayloadType        rtp.PayloadType
	ClockRate          uint32
	BufferCapacity     int
	JitterBufferDelay  time.Duration
	MaxJitterBufferDelay time.Duration
}

// Stats is a point-in-time snapshot of session counters, returned by
// value so callers never see a partially updated struct.
type Stats struct {
	PacketsSent     uint64
	BytesSent       uint64
	PacketsReceived uint64
	BytesReceived   uint64
	PacketsLost     uint64
	OutOfOrder      uint64
	Duplicated      uint64
	Jitter          float64
}

// Session is one RTP media stream, either direction. It is not
// goroutine-safe by design: per §5 every method is called from the single
// executor that owns this call.
type Session struct {
	ssrc        uint32
	payloadType rtp.PayloadType
	clockRate   uint32

	sendSeq       uint16
	sendTimestamp uint32

	haveRemote     bool
	lastSeq        uint16
	lastTimestamp  uint32
	lastArrival    time.Time
	jitter         float64

	baseSeq    uint16
	highestSeq uint16
	seqWraps   uint32

	lastSR           uint32
	lastSRReceivedAt time.Time

	buffer   *JitterBuffer
	maxDelay time.Duration

	stats Stats

	startTime time.Time
	active    bool

	log *slog.Logger
}

// New creates a Session. If cfg.SSRC is zero a random one is generated.
func New(cfg Config, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	ssrc := cfg.SSRC
	if ssrc == 0 {
		ssrc = randomSSRC()
	}
	clockRate := cfg.ClockRate
	if clockRate == 0 {
		clockRate = 8000
	}
	delay := cfg.JitterBufferDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	ceiling := cfg.MaxJitterBufferDelay
	if ceiling <= 0 {
		ceiling = 500 * time.Millisecond
	}
	// The ceiling bounds the configured delay at construction time; the
	// drain pass itself always uses the (already-capped) target delay,
	// since the source this is modeled on never re-applies the ceiling
	// dynamically once a session is running.
	if delay > ceiling {
		delay = ceiling
	}

	return &Session{
		ssrc:        ssrc,
		payloadType: cfg.PayloadType,
		clockRate:   clockRate,
		buffer:      NewJitterBuffer(cfg.BufferCapacity, delay, ceiling),
		maxDelay:    ceiling,
		startTime:   time.Now(),
		active:      true,
		log:         log.With("ssrc", ssrc),
	}
}

func randomSSRC() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint32(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint32(b[:])
}

// SSRC returns the session's synchronization source identifier.
func (s *Session) SSRC() uint32 { return s.ssrc }

// Active reports whether Stop has been called.
func (s *Session) Active() bool { return s.active }

// Stop deactivates the session and clears the jitter buffer, matching the
// "session stop clears the buffer" rule in §5.
func (s *Session) Stop() {
	s.active = false
	s.buffer.Clear()
}

// CreatePacket builds an outgoing packet carrying payload, using and then
// advancing the session's sequence number and timestamp.
func (s *Session) CreatePacket(payload []byte, marker bool) *rtp.Packet {
	p := &rtp.Packet{
		Version:        2,
		Marker:         marker,
		PayloadType:    s.payloadType,
		SequenceNumber: s.sendSeq,
		Timestamp:      s.sendTimestamp,
		SSRC:           s.ssrc,
		Payload:        payload,
	}
	s.sendSeq++
	s.sendTimestamp += s.payloadType.SamplesPerPacket()

	s.stats.PacketsSent++
	s.stats.BytesSent += uint64(len(payload))
	return p
}

// ReceivePacket parses and accounts for an inbound packet, then performs
// the synchronous drain pass described in §4.5 step 5. It returns the
// packets released from the jitter buffer by this call, in presentation
// order, and a bool reporting whether the inbound data was valid.
func (s *Session) ReceivePacket(data []byte, now time.Time) ([]*rtp.Packet, bool) {
	p, err := rtp.Parse(data)
	if err != nil || !p.IsValid() {
		s.log.Warn("dropping malformed RTP packet", "error", err)
		return nil, false
	}

	s.stats.PacketsReceived++
	s.stats.BytesReceived += uint64(len(p.Payload))

	duplicate := false
	if s.haveRemote {
		s.updateJitter(p, now)
		duplicate = s.classifySequence(p)
	} else {
		s.haveRemote = true
		s.lastSeq = p.SequenceNumber
		s.baseSeq = p.SequenceNumber
		s.highestSeq = p.SequenceNumber
	}
	s.lastTimestamp = p.Timestamp
	s.lastArrival = now
	s.updatePacketsLost()

	if !duplicate {
		s.buffer.Insert(p, now)
	}
	return s.buffer.Drain(now), true
}

// updatePacketsLost recomputes the cumulative-lost counter from the
// expected/received span, mirroring the math RTCPReport uses for the
// wire-format cumulative-lost field.
func (s *Session) updatePacketsLost() {
	if !s.haveRemote {
		return
	}
	extendedHighest := s.seqWraps<<16 | uint32(s.highestSeq)
	expected := extendedHighest - uint32(s.baseSeq) + 1
	received := s.stats.PacketsReceived
	if uint64(expected) > received {
		s.stats.PacketsLost = uint64(expected) - received
	} else {
		s.stats.PacketsLost = 0
	}
}

// updateJitter applies the RFC 3550 Appendix A.8 recursive estimator.
func (s *Session) updateJitter(p *rtp.Packet, now time.Time) {
	transitExpectedMs := float64(p.Timestamp-s.lastTimestamp) * 1000.0 / float64(s.clockRate)
	transitObservedMs := float64(now.Sub(s.lastArrival).Milliseconds())
	d := transitObservedMs - transitExpectedMs
	if d < 0 {
		d = -d
	}
	s.jitter += (d - s.jitter) / 16.0
	s.stats.Jitter = s.jitter
}

// classifySequence applies the signed 16-bit wrap-aware comparison
// described in §4.5 step 3. It reports whether p was a duplicate
// (zero-diff), which the caller must not insert into the jitter buffer.
func (s *Session) classifySequence(p *rtp.Packet) bool {
	diff := int16(p.SequenceNumber - s.lastSeq)
	switch {
	case diff > 0:
		if p.SequenceNumber < s.highestSeq {
			s.seqWraps++
		}
		s.lastSeq = p.SequenceNumber
		s.highestSeq = p.SequenceNumber
		return false
	case diff == 0:
		s.stats.Duplicated++
		return true
	default:
		s.stats.OutOfOrder++
		return false
	}
}

// Stats returns a snapshot of the session's counters.
func (s *Session) Stats() Stats { return s.stats }

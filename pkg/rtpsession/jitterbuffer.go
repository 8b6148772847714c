package rtpsession

import (
	"sort"
	"time"

	"github.com/sipcore/agent/pkg/rtp"
)

// entry is one packet waiting in the jitter buffer along with its local
// arrival time, used to decide when it has aged enough to drain.
type entry struct {
	packet  *rtp.Packet
	arrival time.Time
}

// JitterBuffer reorders packets that arrive out of sequence and smooths
// arrival-time variance before handing them to the codec. Unlike the
// ticker-driven buffers this is grounded on, insertion and draining are a
// single synchronous call — §5's cooperative event loop forbids a
// background goroutine driving the drain pass.
type JitterBuffer struct {
	capacity       int
	targetDelay    time.Duration
	maxDelay       time.Duration
	entries        map[uint16]entry
	expectedSeq    uint16
	haveExpected   bool
}

// NewJitterBuffer creates a buffer with the given capacity (packet count)
// and target drain delay. Defaults per §4.5: capacity 50, delay 100ms,
// ceiling 500ms.
func NewJitterBuffer(capacity int, targetDelay, maxDelay time.Duration) *JitterBuffer {
	if capacity <= 0 {
		capacity = 50
	}
	if targetDelay <= 0 {
		targetDelay = 100 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 500 * time.Millisecond
	}
	if targetDelay > maxDelay {
		targetDelay = maxDelay
	}
	return &JitterBuffer{
		capacity:    capacity,
		targetDelay: targetDelay,
		maxDelay:    maxDelay,
		entries:     make(map[uint16]entry, capacity),
	}
}

// Insert places p into the buffer, evicting the lowest-sequence entry
// first if the buffer is already at capacity.
func (jb *JitterBuffer) Insert(p *rtp.Packet, now time.Time) {
	if len(jb.entries) >= jb.capacity {
		jb.evictLowest()
	}
	jb.entries[p.SequenceNumber] = entry{packet: p, arrival: now}
}

func (jb *JitterBuffer) evictLowest() {
	if len(jb.entries) == 0 {
		return
	}
	seqs := jb.sortedSeqs()
	delete(jb.entries, seqs[0])
}

// sortedSeqs returns the buffered sequence numbers in wrap-aware
// ascending order relative to the oldest expected sequence.
func (jb *JitterBuffer) sortedSeqs() []uint16 {
	seqs := make([]uint16, 0, len(jb.entries))
	for seq := range jb.entries {
		seqs = append(seqs, seq)
	}
	base := jb.expectedSeq
	sort.Slice(seqs, func(i, j int) bool {
		return int16(seqs[i]-base) < int16(seqs[j]-base)
	})
	return seqs
}

// Drain releases, in sequence order, the leading run of entries whose
// arrival age has reached targetDelay, plus as many of the oldest entries
// as needed to bring the buffer back under capacity. It stops at the
// first entry that qualifies for neither, so an aged entry sequenced
// after a younger one stays buffered until that one has aged too. It
// advances the expected sequence number to one past the last released
// packet.
func (jb *JitterBuffer) Drain(now time.Time) []*rtp.Packet {
	seqs := jb.sortedSeqs()
	var released []*rtp.Packet

	overflow := len(jb.entries) - jb.capacity
	for i, seq := range seqs {
		e := jb.entries[seq]
		aged := now.Sub(e.arrival) >= jb.targetDelay
		mustFlush := i < overflow
		if !aged && !mustFlush {
			break
		}
		released = append(released, e.packet)
		delete(jb.entries, seq)
		jb.expectedSeq = seq + 1
		jb.haveExpected = true
	}
	return released
}

// Len returns the number of packets currently buffered.
func (jb *JitterBuffer) Len() int { return len(jb.entries) }

// Clear empties the buffer, e.g. on session stop.
func (jb *JitterBuffer) Clear() {
	jb.entries = make(map[uint16]entry, jb.capacity)
}

package rtpsession

import (
	"testing"
	"time"

	"github.com/sipcore/agent/pkg/rtp"
)

func TestCreatePacketAdvancesSequenceAndTimestamp(t *testing.T) {
	s := New(Config{SSRC: 1, PayloadType: rtp.PayloadPCMU, ClockRate: 8000}, nil)
	p1 := s.CreatePacket(make([]byte, 160), false)
	p2 := s.CreatePacket(make([]byte, 160), false)

	if p2.SequenceNumber != p1.SequenceNumber+1 {
		t.Fatalf("sequence did not advance by 1: %d -> %d", p1.SequenceNumber, p2.SequenceNumber)
	}
	if p2.Timestamp != p1.Timestamp+160 {
		t.Fatalf("timestamp did not advance by 160: %d -> %d", p1.Timestamp, p2.Timestamp)
	}
}

func TestReceivePacketOrdersAndDrains(t *testing.T) {
	sender := New(Config{SSRC: 2, PayloadType: rtp.PayloadPCMU, ClockRate: 8000}, nil)
	receiver := New(Config{SSRC: 3, PayloadType: rtp.PayloadPCMU, ClockRate: 8000,
		JitterBufferDelay: 10 * time.Millisecond}, nil)

	base := time.Now()
	var wire [][]byte
	for i := 0; i < 5; i++ {
		p := sender.CreatePacket([]byte{byte(i)}, false)
		wire = append(wire, p.Marshal())
	}

	// Deliver out of order: 0, 2, 1, 3, 4
	order := []int{0, 2, 1, 3, 4}
	var lastReleased []*rtp.Packet
	for _, idx := range order {
		released, ok := receiver.ReceivePacket(wire[idx], base.Add(20*time.Millisecond*time.Duration(idx)))
		if !ok {
			t.Fatalf("packet %d rejected", idx)
		}
		lastReleased = append(lastReleased, released...)
	}

	stats := receiver.Stats()
	if stats.PacketsReceived != 5 {
		t.Fatalf("expected 5 received, got %d", stats.PacketsReceived)
	}
	if stats.OutOfOrder == 0 {
		t.Fatalf("expected at least one out-of-order packet recorded")
	}
	if len(lastReleased) != 4 {
		t.Fatalf("expected 4 packets drained, got %d", len(lastReleased))
	}
	for i, p := range lastReleased {
		if p.SequenceNumber != uint16(i) {
			t.Fatalf("drained packet %d has sequence %d, want %d", i, p.SequenceNumber, i)
		}
	}
}

func TestReceivePacketRejectsMalformed(t *testing.T) {
	s := New(Config{SSRC: 4}, nil)
	_, ok := s.ReceivePacket(make([]byte, 2), time.Now())
	if ok {
		t.Fatal("expected malformed packet to be rejected")
	}
}

func TestReceivePacketDoesNotReinsertDuplicate(t *testing.T) {
	sender := New(Config{SSRC: 5, PayloadType: rtp.PayloadPCMU, ClockRate: 8000}, nil)
	receiver := New(Config{SSRC: 6, PayloadType: rtp.PayloadPCMU, ClockRate: 8000,
		JitterBufferDelay: time.Hour, MaxJitterBufferDelay: time.Hour}, nil)

	p := sender.CreatePacket([]byte{1}, false)
	wire := p.Marshal()

	base := time.Now()
	if _, ok := receiver.ReceivePacket(wire, base); !ok {
		t.Fatal("first delivery rejected")
	}
	if receiver.buffer.Len() != 1 {
		t.Fatalf("expected 1 buffered packet, got %d", receiver.buffer.Len())
	}

	// Redeliver the identical packet well after the first arrival: a
	// duplicate must be counted but never re-inserted, so it must not
	// reset the buffered entry's arrival time.
	later := base.Add(time.Minute)
	if _, ok := receiver.ReceivePacket(wire, later); !ok {
		t.Fatal("duplicate delivery rejected")
	}

	stats := receiver.Stats()
	if stats.Duplicated != 1 {
		t.Fatalf("expected 1 duplicate counted, got %d", stats.Duplicated)
	}
	if receiver.buffer.Len() != 1 {
		t.Fatalf("expected buffer to still hold exactly 1 entry, got %d", receiver.buffer.Len())
	}
	if receiver.buffer.entries[p.SequenceNumber].arrival.After(base.Add(time.Second)) {
		t.Fatal("duplicate re-insert reset the buffered entry's arrival time")
	}
}

func TestReceivePacketComputesPacketsLost(t *testing.T) {
	sender := New(Config{SSRC: 7, PayloadType: rtp.PayloadPCMU, ClockRate: 8000}, nil)
	receiver := New(Config{SSRC: 8, PayloadType: rtp.PayloadPCMU, ClockRate: 8000}, nil)

	base := time.Now()
	first := sender.CreatePacket([]byte{1}, false)
	if _, ok := receiver.ReceivePacket(first.Marshal(), base); !ok {
		t.Fatal("packet 0 rejected")
	}
	sender.CreatePacket([]byte{2}, false) // skipped: sequence 1 never arrives
	third := sender.CreatePacket([]byte{3}, false)
	if _, ok := receiver.ReceivePacket(third.Marshal(), base.Add(20*time.Millisecond)); !ok {
		t.Fatal("packet 2 rejected")
	}

	stats := receiver.Stats()
	if stats.PacketsLost != 1 {
		t.Fatalf("expected 1 packet lost, got %d", stats.PacketsLost)
	}
}

func TestJitterBufferEvictsLowestOnOverflow(t *testing.T) {
	jb := NewJitterBuffer(2, time.Hour, time.Hour)
	now := time.Now()
	jb.Insert(&rtp.Packet{SequenceNumber: 10}, now)
	jb.Insert(&rtp.Packet{SequenceNumber: 11}, now)
	jb.Insert(&rtp.Packet{SequenceNumber: 12}, now)

	if jb.Len() != 2 {
		t.Fatalf("expected buffer capped at 2, got %d", jb.Len())
	}
	if _, exists := jb.entries[10]; exists {
		t.Fatal("expected lowest sequence to be evicted")
	}
}

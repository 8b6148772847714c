package rtp

import (
	"bytes"
	"testing"
)

func TestPacketRoundTrip(t *testing.T) {
	p := &Packet{
		Version:        2,
		Marker:         true,
		PayloadType:    PayloadPCMU,
		SequenceNumber: 4242,
		Timestamp:      160000,
		SSRC:           0xDEADBEEF,
		CSRC:           []uint32{1, 2, 3},
		Payload:        []byte{1, 2, 3, 4, 5},
	}

	data := p.Marshal()
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got.SequenceNumber != p.SequenceNumber || got.Timestamp != p.Timestamp || got.SSRC != p.SSRC {
		t.Fatalf("header mismatch: %+v", got)
	}
	if len(got.CSRC) != 3 || got.CSRC[2] != 3 {
		t.Fatalf("CSRC mismatch: %v", got.CSRC)
	}
	if !bytes.Equal(got.Payload, p.Payload) {
		t.Fatalf("payload mismatch: %v", got.Payload)
	}
	if !got.IsValid() {
		t.Fatal("expected valid packet")
	}
}

func TestPacketWithExtension(t *testing.T) {
	p := &Packet{
		Version:        2,
		HasExtension:   true,
		PayloadType:    PayloadPCMA,
		SequenceNumber: 1,
		Timestamp:      8000,
		SSRC:           1,
		Extension:      &Extension{ID: 0xBEDE, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		Payload:        []byte{9, 9, 9},
	}
	data := p.Marshal()
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Extension == nil || got.Extension.ID != 0xBEDE || len(got.Extension.Data) != 8 {
		t.Fatalf("extension mismatch: %+v", got.Extension)
	}
	if !bytes.Equal(got.Payload, []byte{9, 9, 9}) {
		t.Fatalf("payload mismatch: %v", got.Payload)
	}
}

func TestPacketPaddingStripped(t *testing.T) {
	raw := []byte{
		0x80 | 0x20, 0x00, // version 2, padding set, PT 0
		0x00, 0x01, // seq
		0x00, 0x00, 0x00, 0x01, // ts
		0x00, 0x00, 0x00, 0x01, // ssrc
		'h', 'i', 0x00, 0x02, // 2 bytes payload + 2 padding bytes, last = 2 (pad len incl itself)
	}
	// last payload byte declares total padding length including itself.
	raw[len(raw)-1] = 2
	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !bytes.Equal(p.Payload, []byte("hi")) {
		t.Fatalf("expected padding stripped, got %v", p.Payload)
	}
}

func TestPacketTooShort(t *testing.T) {
	_, err := Parse(make([]byte, 4))
	if err != ErrPacketTooShort {
		t.Fatalf("expected ErrPacketTooShort, got %v", err)
	}
}

func TestPayloadTypeString(t *testing.T) {
	if PayloadPCMU.String() != "PCMU" {
		t.Fatal("expected PCMU")
	}
	if PayloadType(42).String() != "Unknown(42)" {
		t.Fatalf("expected Unknown(42), got %s", PayloadType(42).String())
	}
}

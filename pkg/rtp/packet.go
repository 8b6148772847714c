// Package rtp implements the RFC 3550 packet wire format: a hand-rolled,
// bit-exact codec for the 12-byte fixed header plus CSRC list, optional
// extension header, and payload/padding. It deliberately does not wrap
// any third-party RTP library — the packet codec is the unit under test,
// not a consumer of one.
package rtp

import (
	"encoding/binary"
	"fmt"
)

// PayloadType names the fixed set of payload type numbers this system
// recognizes on the wire (it does not negotiate others).
type PayloadType uint8

const (
	PayloadPCMU           PayloadType = 0
	PayloadPCMA           PayloadType = 8
	PayloadG722           PayloadType = 9
	PayloadG729           PayloadType = 18
	PayloadOpus           PayloadType = 111
	PayloadTelephoneEvent PayloadType = 101
)

// String renders the payload type the way the wire format's human-facing
// tooling does: a known mnemonic, or "Unknown(<n>)".
func (pt PayloadType) String() string {
	switch pt {
	case PayloadPCMU:
		return "PCMU"
	case PayloadPCMA:
		return "PCMA"
	case PayloadG722:
		return "G722"
	case PayloadG729:
		return "G729"
	case PayloadOpus:
		return "OPUS"
	case PayloadTelephoneEvent:
		return "telephone-event"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(pt))
	}
}

// SamplesPerPacket returns the payload-type-dependent number of audio
// samples the RTP session should advance the timestamp by per packet.
func (pt PayloadType) SamplesPerPacket() uint32 {
	switch pt {
	case PayloadG729:
		return 80
	case PayloadG722:
		return 320
	default:
		return 160
	}
}

// Extension is the optional RTP header extension (RFC 3550 §5.3.1).
type Extension struct {
	ID   uint16
	Data []byte // raw bytes; length is always a multiple of 4
}

// Packet is the parsed in-memory form of an RTP packet.
type Packet struct {
	Version        uint8
	Padding        bool
	HasExtension   bool
	Marker         bool
	PayloadType    PayloadType
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	CSRC           []uint32
	Extension      *Extension
	Payload        []byte
}

// ErrPacketTooShort is returned by Parse when the buffer is shorter than
// the fixed 12-byte header.
var ErrPacketTooShort = fmt.Errorf("rtp: packet too short")

// IsValid reports whether p looks like a well-formed RTP packet. Parse
// itself is permissive (so malformed packets can still be inspected);
// callers that care about strict wire conformance check IsValid.
func (p *Packet) IsValid() bool {
	return p.Version == 2
}

// Parse decodes an RTP packet from its wire representation.
func Parse(data []byte) (*Packet, error) {
	if len(data) < 12 {
		return nil, ErrPacketTooShort
	}

	b0 := data[0]
	b1 := data[1]

	p := &Packet{
		Version:      b0 >> 6,
		Padding:      b0&0x20 != 0,
		HasExtension: b0&0x10 != 0,
		Marker:       b1&0x80 != 0,
		PayloadType:  PayloadType(b1 & 0x7F),
	}
	csrcCount := int(b0 & 0x0F)

	p.SequenceNumber = binary.BigEndian.Uint16(data[2:4])
	p.Timestamp = binary.BigEndian.Uint32(data[4:8])
	p.SSRC = binary.BigEndian.Uint32(data[8:12])

	offset := 12
	needed := offset + csrcCount*4
	if len(data) < needed {
		return nil, fmt.Errorf("rtp: truncated CSRC list")
	}
	if csrcCount > 0 {
		p.CSRC = make([]uint32, csrcCount)
		for i := 0; i < csrcCount; i++ {
			p.CSRC[i] = binary.BigEndian.Uint32(data[offset : offset+4])
			offset += 4
		}
	}

	if p.HasExtension {
		if len(data) < offset+4 {
			return nil, fmt.Errorf("rtp: truncated extension header")
		}
		extID := binary.BigEndian.Uint16(data[offset : offset+2])
		extWords := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		offset += 4
		extLen := extWords * 4
		if len(data) < offset+extLen {
			return nil, fmt.Errorf("rtp: truncated extension data")
		}
		extData := make([]byte, extLen)
		copy(extData, data[offset:offset+extLen])
		p.Extension = &Extension{ID: extID, Data: extData}
		offset += extLen
	}

	payload := data[offset:]
	if p.Padding && len(payload) > 0 {
		padLen := int(payload[len(payload)-1])
		if padLen > 0 && padLen <= len(payload) {
			payload = payload[:len(payload)-padLen]
		}
	}
	p.Payload = payload

	return p, nil
}

// Marshal serializes p to its wire representation.
func (p *Packet) Marshal() []byte {
	extLen := 0
	if p.HasExtension && p.Extension != nil {
		extLen = 4 + len(p.Extension.Data)
	}
	headerSize := 12 + 4*len(p.CSRC) + extLen
	buf := make([]byte, headerSize+len(p.Payload))

	version := p.Version
	if version == 0 {
		version = 2
	}
	b0 := version << 6
	if p.Padding {
		b0 |= 0x20
	}
	if p.HasExtension {
		b0 |= 0x10
	}
	b0 |= uint8(len(p.CSRC)) & 0x0F
	buf[0] = b0

	b1 := uint8(p.PayloadType) & 0x7F
	if p.Marker {
		b1 |= 0x80
	}
	buf[1] = b1

	binary.BigEndian.PutUint16(buf[2:4], p.SequenceNumber)
	binary.BigEndian.PutUint32(buf[4:8], p.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], p.SSRC)

	offset := 12
	for _, csrc := range p.CSRC {
		binary.BigEndian.PutUint32(buf[offset:offset+4], csrc)
		offset += 4
	}

	if p.HasExtension && p.Extension != nil {
		binary.BigEndian.PutUint16(buf[offset:offset+2], p.Extension.ID)
		binary.BigEndian.PutUint16(buf[offset+2:offset+4], uint16(len(p.Extension.Data)/4))
		offset += 4
		copy(buf[offset:], p.Extension.Data)
		offset += len(p.Extension.Data)
	}

	copy(buf[offset:], p.Payload)
	return buf
}

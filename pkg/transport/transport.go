// Package transport declares the datagram transport this system
// consumes but does not implement (§1, §6.4): binding a local address,
// sending SIP messages and RTP packets, and an inbound event stream. The
// real UDP socket lives outside this module's scope; Loopback is a test
// double wired into the user-agent test suite.
package transport

import "github.com/sipcore/agent/pkg/sip/message"

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	EventSIPMessage EventKind = iota
	EventRTPData
	EventError
)

// Event is the tagged union the transport emits on its event stream.
type Event struct {
	Kind       EventKind
	SIPMessage message.Message
	RTPData    []byte
	RemoteHost string
	RemotePort int
	Err        error
}

// Transport is the consumed interface: bind a local address, send SIP
// messages and raw RTP packets, close, and emit inbound events.
type Transport interface {
	Bind(host string, port int) error
	SendSIPMessage(msg message.Message, host string, port int) error
	SendRTPPacket(data []byte, host string, port int) error
	Close() error
	// Events returns the channel inbound events are delivered on. The
	// core treats every delivery as an awaitable boundary (§5): reading
	// from this channel is the only place processing may suspend.
	Events() <-chan Event
	Reliable() bool
}

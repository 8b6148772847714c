package transaction

import "github.com/sipcore/agent/pkg/sip/message"

// Transport is the consumed interface the transaction layer sends
// messages through. The concrete UDP/TCP binding lives outside this
// module's scope; tests and the user-agent wire in their own
// implementation (see pkg/transport).
type Transport interface {
	// SendMessage serializes and sends msg to host:port.
	SendMessage(msg message.Message, host string, port int) error
	// Reliable reports whether the transport guarantees delivery, which
	// per RFC 3261 §17 disables the retransmission timers (A/E/G) and
	// skips timer D/I/K wait states.
	Reliable() bool
}

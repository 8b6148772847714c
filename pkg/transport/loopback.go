package transport

import (
	"fmt"
	"sync"

	"github.com/sipcore/agent/pkg/sip/message"
)

// Loopback is an in-memory Transport used by tests: messages sent to a
// registered peer's address are delivered directly to that peer's event
// channel, with no real socket involved.
type Loopback struct {
	mu       sync.Mutex
	host     string
	port     int
	peers    map[string]*Loopback
	events   chan Event
	reliable bool
	closed   bool
}

// NewLoopback creates an unbound Loopback transport.
func NewLoopback(reliable bool) *Loopback {
	return &Loopback{
		peers:    make(map[string]*Loopback),
		events:   make(chan Event, 64),
		reliable: reliable,
	}
}

// Link registers other as reachable at host:port from this transport and
// vice versa, so either side can SendSIPMessage/SendRTPPacket to the
// other's bound address.
func (l *Loopback) Link(other *Loopback) {
	l.mu.Lock()
	l.peers[other.addr()] = other
	l.mu.Unlock()

	other.mu.Lock()
	other.peers[l.addr()] = l
	other.mu.Unlock()
}

func (l *Loopback) addr() string { return fmt.Sprintf("%s:%d", l.host, l.port) }

func (l *Loopback) Bind(host string, port int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.host, l.port = host, port
	return nil
}

func (l *Loopback) SendSIPMessage(msg message.Message, host string, port int) error {
	peer := l.peerAt(host, port)
	if peer == nil {
		return fmt.Errorf("transport: no peer bound at %s:%d", host, port)
	}
	peer.deliver(Event{Kind: EventSIPMessage, SIPMessage: msg, RemoteHost: l.host, RemotePort: l.port})
	return nil
}

func (l *Loopback) SendRTPPacket(data []byte, host string, port int) error {
	peer := l.peerAt(host, port)
	if peer == nil {
		return fmt.Errorf("transport: no peer bound at %s:%d", host, port)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	peer.deliver(Event{Kind: EventRTPData, RTPData: cp, RemoteHost: l.host, RemotePort: l.port})
	return nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.events)
	return nil
}

func (l *Loopback) Events() <-chan Event { return l.events }
func (l *Loopback) Reliable() bool       { return l.reliable }

func (l *Loopback) peerAt(host string, port int) *Loopback {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peers[fmt.Sprintf("%s:%d", host, port)]
}

func (l *Loopback) deliver(e Event) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}
	l.events <- e
}

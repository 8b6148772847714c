package transaction

import (
	"log/slog"
	"sync/atomic"

	"github.com/sipcore/agent/pkg/executor"
	"github.com/sipcore/agent/pkg/sip/message"
)

// Stats is a point-in-time snapshot of transaction counters. Returned by
// value so callers never observe a torn read or retain a pointer into
// live Manager state.
type Stats struct {
	Active          int64
	Terminated      int64
	TimedOut        int64
	Retransmissions int64
}

// Manager owns every live transaction and routes inbound/outbound
// messages to the right one, creating new ones on demand. All exported
// methods are meant to be called from the Loop goroutine passed to New.
type Manager struct {
	loop      *executor.Loop
	transport Transport
	timers    Timers
	log       *slog.Logger

	table map[Key]Transaction

	active          atomic.Int64
	terminated      atomic.Int64
	timedOut        atomic.Int64
	retransmissions atomic.Int64
}

// New creates a transaction Manager bound to loop and transport.
func New(loop *executor.Loop, transport Transport, timers Timers, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		loop:      loop,
		transport: transport,
		timers:    timers,
		log:       log,
		table:     make(map[Key]Transaction),
	}
}

func (m *Manager) track(t Transaction) {
	m.table[t.Key()] = t
	m.active.Add(1)
	t.OnStateChange(func(key Key, s State) {
		if s == StateTerminated {
			delete(m.table, key)
			m.active.Add(-1)
			m.terminated.Add(1)
		}
	})
	t.OnTimeout(func(Key) {
		m.timedOut.Add(1)
	})
	t.OnRetransmit(func() {
		m.retransmissions.Add(1)
	})
}

// NewClientInvite creates, registers, and starts an INVITE client
// transaction for req.
func (m *Manager) NewClientInvite(req *message.Request, host string, port int) (*ClientInvite, error) {
	key := ClientKeyForRequest(req)
	if _, exists := m.table[key]; exists {
		return nil, ErrTransactionExists
	}
	ct := NewClientInvite(m.loop, m.transport, m.timers, m.log, req, host, port)
	m.track(ct)
	return ct, nil
}

// NewClientNonInvite creates, registers, and starts a non-INVITE client
// transaction for req.
func (m *Manager) NewClientNonInvite(req *message.Request, host string, port int) (*ClientNonInvite, error) {
	key := ClientKeyForRequest(req)
	if _, exists := m.table[key]; exists {
		return nil, ErrTransactionExists
	}
	ct := NewClientNonInvite(m.loop, m.transport, m.timers, m.log, req, host, port)
	m.track(ct)
	return ct, nil
}

// NewServerInvite creates and registers a server transaction for an
// inbound INVITE.
func (m *Manager) NewServerInvite(req *message.Request, remoteHost string, remotePort int) (*ServerInvite, error) {
	key := ServerKeyForRequest(req)
	if _, exists := m.table[key]; exists {
		return nil, ErrTransactionExists
	}
	st := NewServerInvite(m.loop, m.transport, m.timers, m.log, req, remoteHost, remotePort)
	m.track(st)
	return st, nil
}

// NewServerNonInvite creates and registers a server transaction for an
// inbound non-INVITE request.
func (m *Manager) NewServerNonInvite(req *message.Request, remoteHost string, remotePort int) (*ServerNonInvite, error) {
	key := ServerKeyForRequest(req)
	if _, exists := m.table[key]; exists {
		return nil, ErrTransactionExists
	}
	st := NewServerNonInvite(m.loop, m.transport, m.timers, m.log, req, remoteHost, remotePort)
	m.track(st)
	return st, nil
}

// Find returns the transaction registered under key, if any.
func (m *Manager) Find(key Key) (Transaction, bool) {
	t, ok := m.table[key]
	return t, ok
}

// HandleRequest routes an inbound request to its matching server
// transaction. The caller (user-agent dispatch) is responsible for
// creating a new transaction when none matches.
func (m *Manager) HandleRequest(req *message.Request) (Transaction, bool) {
	key := ServerKeyForRequest(req)
	t, ok := m.table[key]
	if ok {
		t.HandleRequest(req)
	}
	return t, ok
}

// HandleResponse routes an inbound response to its matching client
// transaction.
func (m *Manager) HandleResponse(resp *message.Response) (Transaction, bool) {
	key, err := ClientKeyForResponse(resp)
	if err != nil {
		m.log.Warn("cannot match response to a transaction", "error", err)
		return nil, false
	}
	t, ok := m.table[key]
	if ok {
		t.HandleResponse(resp)
	}
	return t, ok
}

// Stats returns a snapshot of the current transaction counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Active:          m.active.Load(),
		Terminated:      m.terminated.Load(),
		TimedOut:        m.timedOut.Load(),
		Retransmissions: m.retransmissions.Load(),
	}
}

package transaction

import (
	"log/slog"
	"time"

	"github.com/sipcore/agent/pkg/executor"
	"github.com/sipcore/agent/pkg/sip/message"
)

// StateChangeFunc is notified whenever a transaction changes state.
type StateChangeFunc func(Key, State)

// ResponseFunc is notified whenever a client transaction accepts a
// provisional or final response. Retransmissions of the final response
// that arrive in Completed are absorbed by the transaction and not passed
// on.
type ResponseFunc func(*message.Response)

// RequestFunc is notified when an INVITE server transaction in Completed
// receives the ACK. Retransmitted requests are answered by the transaction
// itself and not passed on.
type RequestFunc func(*message.Request)

// TimeoutFunc is notified when a client transaction gives up waiting for a
// final response, whether because its absolute timer (TimerB/TimerF) fired
// or its retransmit-count watchdog was exceeded first.
type TimeoutFunc func(Key)

// RetransmitFunc is notified each time a client transaction resends its
// request.
type RetransmitFunc func()

// Transaction is the common surface of all four state machines. All
// methods must be called from the owning Loop's goroutine; the
// transaction layer never spawns goroutines of its own, relying entirely
// on executor.Loop.AfterFunc for timing.
type Transaction interface {
	Key() Key
	State() State
	IsTerminated() bool

	// HandleResponse feeds a response into a client transaction.
	HandleResponse(resp *message.Response)
	// HandleRequest feeds a retransmitted request (or, for INVITE, the
	// ACK) into a server transaction.
	HandleRequest(req *message.Request)

	OnStateChange(StateChangeFunc)
	OnResponse(ResponseFunc)
	OnRequest(RequestFunc)
	OnTimeout(TimeoutFunc)
	OnRetransmit(RetransmitFunc)

	Terminate()
}

// base carries the fields every transaction flavor needs. Embedding base
// and calling its helpers keeps the four state machines' bookkeeping
// (timer lifecycle, handler fan-out, logging) identical while their
// transition tables differ.
type base struct {
	key       Key
	state     State
	loop      *executor.Loop
	transport Transport
	timers    Timers
	log       *slog.Logger

	activeTimers []*executor.Timer

	onStateChange []StateChangeFunc
	onResponse    []ResponseFunc
	onRequest     []RequestFunc
	onTimeout     []TimeoutFunc
	onRetransmit  []RetransmitFunc
}

func newBase(key Key, loop *executor.Loop, transport Transport, timers Timers, log *slog.Logger) base {
	if log == nil {
		log = slog.Default()
	}
	return base{
		key:       key,
		loop:      loop,
		transport: transport,
		timers:    timers,
		log:       log.With("transaction", key.String()),
	}
}

func (b *base) Key() Key { return b.key }
func (b *base) State() State { return b.state }
func (b *base) IsTerminated() bool { return b.state == StateTerminated }

func (b *base) OnStateChange(fn StateChangeFunc) { b.onStateChange = append(b.onStateChange, fn) }
func (b *base) OnResponse(fn ResponseFunc)        { b.onResponse = append(b.onResponse, fn) }
func (b *base) OnRequest(fn RequestFunc)          { b.onRequest = append(b.onRequest, fn) }
func (b *base) OnTimeout(fn TimeoutFunc)          { b.onTimeout = append(b.onTimeout, fn) }
func (b *base) OnRetransmit(fn RetransmitFunc)    { b.onRetransmit = append(b.onRetransmit, fn) }

func (b *base) setState(s State) {
	if b.state == s {
		return
	}
	b.log.Debug("state change", "from", b.state, "to", s)
	b.state = s
	for _, fn := range b.onStateChange {
		fn(b.key, s)
	}
}

func (b *base) fireResponse(resp *message.Response) {
	for _, fn := range b.onResponse {
		fn(resp)
	}
}

func (b *base) fireRequest(req *message.Request) {
	for _, fn := range b.onRequest {
		fn(req)
	}
}

func (b *base) fireTimeout() {
	for _, fn := range b.onTimeout {
		fn(b.key)
	}
}

func (b *base) fireRetransmit() {
	for _, fn := range b.onRetransmit {
		fn()
	}
}

// arm schedules fn to run on the loop after d and tracks the timer so
// Terminate can cancel every outstanding timer synchronously.
func (b *base) arm(d time.Duration, fn func()) *executor.Timer {
	t := b.loop.AfterFunc(d, fn)
	b.activeTimers = append(b.activeTimers, t)
	return t
}

func (b *base) cancelAllTimers() {
	for _, t := range b.activeTimers {
		t.Cancel()
	}
	b.activeTimers = b.activeTimers[:0]
}

func (b *base) send(msg message.Message, host string, port int) error {
	if err := b.transport.SendMessage(msg, host, port); err != nil {
		b.log.Warn("transport send failed", "error", err)
		return err
	}
	return nil
}

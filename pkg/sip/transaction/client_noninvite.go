package transaction

import (
	"log/slog"
	"time"

	"github.com/sipcore/agent/pkg/executor"
	"github.com/sipcore/agent/pkg/sip/message"
)

// ClientNonInvite is the non-INVITE client transaction state machine
// (RFC 3261 §17.1.2): Trying -> Proceeding -> Completed -> Terminated.
type ClientNonInvite struct {
	base
	request         *message.Request
	host            string
	port            int
	retransmit      time.Duration
	retransmitCount int
}

// NewClientNonInvite creates and starts a non-INVITE client transaction.
func NewClientNonInvite(loop *executor.Loop, transport Transport, timers Timers, log *slog.Logger, req *message.Request, host string, port int) *ClientNonInvite {
	ct := &ClientNonInvite{
		base:    newBase(ClientKeyForRequest(req), loop, transport, timers, log),
		request: req,
		host:    host,
		port:    port,
	}
	ct.state = StateTrying
	ct.send(req, host, port)

	if !transport.Reliable() {
		ct.retransmit = timers.T1
		ct.arm(ct.retransmit, ct.onTimerE)
	}
	ct.arm(timers.TimerF, ct.onTimerF)
	return ct
}

func (ct *ClientNonInvite) onTimerE() {
	if ct.state != StateTrying && ct.state != StateProceeding {
		return
	}
	if ct.timers.MaxRetransmits > 0 && ct.retransmitCount >= ct.timers.MaxRetransmits {
		ct.log.Warn("non-INVITE request exceeded maximum retransmissions", "count", ct.retransmitCount)
		ct.fireTimeout()
		ct.setState(StateTerminated)
		ct.cancelAllTimers()
		return
	}
	ct.retransmitCount++
	ct.send(ct.request, ct.host, ct.port)
	ct.fireRetransmit()
	ceiling := ct.timers.T2
	if ct.state == StateTrying {
		ct.retransmit = NextRetransmitInterval(ct.retransmit, ceiling)
	} else {
		ct.retransmit = ceiling
	}
	ct.arm(ct.retransmit, ct.onTimerE)
}

func (ct *ClientNonInvite) onTimerF() {
	if ct.state == StateCompleted || ct.state == StateTerminated {
		return
	}
	ct.log.Warn("non-INVITE request timed out waiting for a final response")
	ct.fireTimeout()
	ct.setState(StateTerminated)
	ct.cancelAllTimers()
}

func (ct *ClientNonInvite) onTimerK() {
	ct.setState(StateTerminated)
	ct.cancelAllTimers()
}

func (ct *ClientNonInvite) HandleResponse(resp *message.Response) {
	switch ct.state {
	case StateTrying, StateProceeding:
		if resp.StatusCode < 200 {
			ct.setState(StateProceeding)
			ct.fireResponse(resp)
			return
		}
		ct.fireResponse(resp)
		ct.setState(StateCompleted)
		if ct.transport.Reliable() {
			ct.setState(StateTerminated)
			ct.cancelAllTimers()
		} else {
			ct.arm(ct.timers.TimerK, ct.onTimerK)
		}
	case StateCompleted:
		// Retransmission of the final response: absorbed silently.
	}
}

func (ct *ClientNonInvite) HandleRequest(*message.Request) {}

// Cancel is not supported for non-INVITE transactions (RFC 3261 §9.1).
func (ct *ClientNonInvite) Cancel() error {
	return ErrCannotCancel
}

func (ct *ClientNonInvite) Terminate() {
	ct.setState(StateTerminated)
	ct.cancelAllTimers()
}

package transaction

import (
	"log/slog"
	"time"

	"github.com/sipcore/agent/pkg/executor"
	"github.com/sipcore/agent/pkg/sip/message"
)

// ServerInvite is the INVITE server transaction state machine
// (RFC 3261 §17.2.1): Proceeding -> {Terminated on 2xx, Completed ->
// Confirmed -> Terminated on non-2xx}.
type ServerInvite struct {
	base
	request      *message.Request
	remoteHost   string
	remotePort   int
	lastResponse *message.Response
	retransmit   time.Duration
}

// NewServerInvite creates a server transaction for an inbound INVITE.
// Per RFC 3261 it starts in Proceeding (a 100 Trying is conventionally
// sent by the transaction user, not automatically here).
func NewServerInvite(loop *executor.Loop, transport Transport, timers Timers, log *slog.Logger, req *message.Request, remoteHost string, remotePort int) *ServerInvite {
	st := &ServerInvite{
		base:       newBase(ServerKeyForRequest(req), loop, transport, timers, log),
		request:    req,
		remoteHost: remoteHost,
		remotePort: remotePort,
	}
	st.state = StateProceeding
	return st
}

// SendResponse sends resp for this transaction, applying the state
// transition that status code implies.
func (st *ServerInvite) SendResponse(resp *message.Response) error {
	if st.state != StateProceeding && st.state != StateCompleted {
		return ErrInvalidState
	}
	if err := st.send(resp, st.remoteHost, st.remotePort); err != nil {
		return err
	}
	st.lastResponse = resp

	switch {
	case resp.StatusCode < 200:
		st.setState(StateProceeding)
	case resp.StatusCode < 300:
		// RFC 3261: 2xx responses terminate the server transaction
		// directly; the transaction user is responsible for
		// retransmitting the 2xx itself until an ACK dialog forms,
		// since that retransmission is a dialog-layer, not
		// transaction-layer, concern for INVITE.
		st.setState(StateTerminated)
		st.cancelAllTimers()
	default:
		st.setState(StateCompleted)
		if st.transport.Reliable() {
			st.setState(StateTerminated)
			st.cancelAllTimers()
			return nil
		}
		st.retransmit = st.timers.T1
		st.arm(st.retransmit, st.onTimerG)
		st.arm(st.timers.TimerH, st.onTimerH)
	}
	return nil
}

func (st *ServerInvite) onTimerG() {
	if st.state != StateCompleted {
		return
	}
	st.send(st.lastResponse, st.remoteHost, st.remotePort)
	st.retransmit = NextRetransmitInterval(st.retransmit, st.timers.T2)
	st.arm(st.retransmit, st.onTimerG)
}

func (st *ServerInvite) onTimerH() {
	if st.state != StateCompleted {
		return
	}
	st.log.Warn("never received ACK for non-2xx final response")
	st.setState(StateTerminated)
	st.cancelAllTimers()
}

func (st *ServerInvite) onTimerI() {
	st.setState(StateTerminated)
	st.cancelAllTimers()
}

func (st *ServerInvite) HandleRequest(req *message.Request) {
	switch req.Method {
	case "INVITE":
		if st.state == StateProceeding || st.state == StateCompleted {
			// Retransmitted INVITE: re-send the last provisional/final
			// response if any, per RFC 3261 §17.2.1.
			if st.lastResponse != nil {
				st.send(st.lastResponse, st.remoteHost, st.remotePort)
			}
		}
	case "ACK":
		if st.state != StateCompleted {
			return
		}
		st.fireRequest(req)
		if st.transport.Reliable() {
			st.setState(StateTerminated)
			st.cancelAllTimers()
			return
		}
		st.setState(StateConfirmed)
		st.cancelAllTimers()
		st.arm(st.timers.TimerI, st.onTimerI)
	}
}

func (st *ServerInvite) HandleResponse(*message.Response) {}

func (st *ServerInvite) Terminate() {
	st.setState(StateTerminated)
	st.cancelAllTimers()
}

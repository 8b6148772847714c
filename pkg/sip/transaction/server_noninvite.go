package transaction

import (
	"log/slog"

	"github.com/sipcore/agent/pkg/executor"
	"github.com/sipcore/agent/pkg/sip/message"
)

// ServerNonInvite is the non-INVITE server transaction state machine
// (RFC 3261 §17.2.2): Trying -> Proceeding -> Completed -> Terminated.
type ServerNonInvite struct {
	base
	request      *message.Request
	remoteHost   string
	remotePort   int
	lastResponse *message.Response
}

// NewServerNonInvite creates a server transaction for an inbound
// non-INVITE request.
func NewServerNonInvite(loop *executor.Loop, transport Transport, timers Timers, log *slog.Logger, req *message.Request, remoteHost string, remotePort int) *ServerNonInvite {
	st := &ServerNonInvite{
		base:       newBase(ServerKeyForRequest(req), loop, transport, timers, log),
		request:    req,
		remoteHost: remoteHost,
		remotePort: remotePort,
	}
	st.state = StateTrying
	return st
}

// SendResponse sends resp and applies the state transition.
func (st *ServerNonInvite) SendResponse(resp *message.Response) error {
	if st.state == StateTerminated {
		return ErrInvalidState
	}
	if err := st.send(resp, st.remoteHost, st.remotePort); err != nil {
		return err
	}
	st.lastResponse = resp

	if resp.StatusCode < 200 {
		st.setState(StateProceeding)
		return nil
	}
	st.setState(StateCompleted)
	if st.transport.Reliable() {
		st.setState(StateTerminated)
		st.cancelAllTimers()
		return nil
	}
	st.arm(st.timers.TimerJ, st.onTimerJ)
	return nil
}

func (st *ServerNonInvite) onTimerJ() {
	st.setState(StateTerminated)
	st.cancelAllTimers()
}

func (st *ServerNonInvite) HandleRequest(req *message.Request) {
	if st.state == StateProceeding || st.state == StateCompleted {
		if st.lastResponse != nil {
			st.send(st.lastResponse, st.remoteHost, st.remotePort)
		}
	}
}

func (st *ServerNonInvite) HandleResponse(*message.Response) {}

func (st *ServerNonInvite) Terminate() {
	st.setState(StateTerminated)
	st.cancelAllTimers()
}

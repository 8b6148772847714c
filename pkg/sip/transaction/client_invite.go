package transaction

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sipcore/agent/pkg/executor"
	"github.com/sipcore/agent/pkg/sip/message"
)

// ClientInvite is the INVITE client transaction state machine
// (RFC 3261 §17.1.1): Calling -> Proceeding -> {Completed -> Terminated}
// or Calling -> Terminated directly on a 2xx, since 2xx responses to
// INVITE terminate the client transaction immediately and the ACK for a
// 2xx is sent by the transaction user, not synthesized here.
type ClientInvite struct {
	base
	request         *message.Request
	host            string
	port            int
	retransmit      time.Duration
	retransmitCount int
	lastFinal       *message.Response
}

// NewClientInvite creates and starts an INVITE client transaction: it
// sends req immediately and arms Timer A (if unreliable) and Timer B.
func NewClientInvite(loop *executor.Loop, transport Transport, timers Timers, log *slog.Logger, req *message.Request, host string, port int) *ClientInvite {
	ct := &ClientInvite{
		base:    newBase(ClientKeyForRequest(req), loop, transport, timers, log),
		request: req,
		host:    host,
		port:    port,
	}
	ct.state = StateCalling
	ct.send(req, host, port)

	if !transport.Reliable() {
		ct.retransmit = timers.T1
		ct.arm(ct.retransmit, ct.onTimerA)
	}
	ct.arm(timers.TimerB, ct.onTimerB)
	return ct
}

func (ct *ClientInvite) onTimerA() {
	if ct.state != StateCalling {
		return
	}
	if ct.timers.MaxRetransmits > 0 && ct.retransmitCount >= ct.timers.MaxRetransmits {
		ct.log.Warn("INVITE exceeded maximum retransmissions", "count", ct.retransmitCount)
		ct.fireTimeout()
		ct.setState(StateTerminated)
		ct.cancelAllTimers()
		return
	}
	ct.retransmitCount++
	ct.send(ct.request, ct.host, ct.port)
	ct.fireRetransmit()
	ct.retransmit = NextRetransmitInterval(ct.retransmit, ct.timers.T2)
	ct.arm(ct.retransmit, ct.onTimerA)
}

func (ct *ClientInvite) onTimerB() {
	if ct.state != StateCalling {
		return
	}
	ct.log.Warn("INVITE timed out waiting for a response")
	ct.fireTimeout()
	ct.setState(StateTerminated)
	ct.cancelAllTimers()
}

func (ct *ClientInvite) onTimerD() {
	ct.setState(StateTerminated)
	ct.cancelAllTimers()
}

// HandleResponse dispatches a response by current state.
func (ct *ClientInvite) HandleResponse(resp *message.Response) {
	ct.lastFinal = resp
	switch ct.state {
	case StateCalling, StateProceeding:
		switch {
		case resp.StatusCode < 200:
			ct.setState(StateProceeding)
			ct.fireResponse(resp)
		case resp.StatusCode < 300:
			// 2xx: terminate the transaction immediately. The ACK is the
			// transaction user's responsibility (it rides a new
			// transaction of its own per RFC 3261 §13.2.2.4).
			ct.fireResponse(resp)
			ct.setState(StateTerminated)
			ct.cancelAllTimers()
		default:
			// Non-2xx final response: the transaction layer itself must
			// synthesize and send the ACK (RFC 3261 §17.1.1.3) — the
			// transaction user never sees this ACK and never sends it.
			ack, err := message.BuildACKForNon2xx(ct.request, resp)
			if err == nil {
				ct.send(ack, ct.host, ct.port)
			} else {
				ct.log.Error("failed to build ACK for non-2xx response", "error", err)
			}
			ct.fireResponse(resp)
			ct.setState(StateCompleted)
			if ct.transport.Reliable() {
				ct.setState(StateTerminated)
				ct.cancelAllTimers()
			} else {
				ct.arm(ct.timers.TimerD, ct.onTimerD)
			}
		}
	case StateCompleted:
		// Retransmitted non-2xx final response: re-send the ACK, do not
		// notify the transaction user again.
		if resp.StatusCode >= 300 {
			if ack, err := message.BuildACKForNon2xx(ct.request, resp); err == nil {
				ct.send(ack, ct.host, ct.port)
			}
		}
	}
}

func (ct *ClientInvite) HandleRequest(*message.Request) {}

// Cancel sends a CANCEL for this still-pending INVITE transaction.
func (ct *ClientInvite) Cancel() (*message.Request, error) {
	if ct.state != StateCalling && ct.state != StateProceeding {
		return nil, ErrCannotCancel
	}
	b := message.NewRequest("CANCEL", ct.request.RequestURI)
	for _, via := range ct.request.GetHeaders("Via") {
		b.Header("Via", via)
	}
	b.Header("From", ct.request.GetHeader("From")).
		Header("To", ct.request.GetHeader("To")).
		Header("Call-ID", ct.request.GetHeader("Call-ID")).
		Header("CSeq", requestsCSeq(ct.request, "CANCEL"))
	cancel, err := b.Build()
	if err != nil {
		return nil, err
	}
	cancel.SetHeader("Max-Forwards", ct.request.GetHeader("Max-Forwards"))
	if err := ct.send(cancel, ct.host, ct.port); err != nil {
		return nil, err
	}
	return cancel, nil
}

func (ct *ClientInvite) Terminate() {
	ct.setState(StateTerminated)
	ct.cancelAllTimers()
}

func requestsCSeq(req *message.Request, method string) string {
	seq := message.ExtractCSeqNumber(req.GetHeader("CSeq"))
	return fmt.Sprintf("%d %s", seq, method)
}

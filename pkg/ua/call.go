package ua

import (
	"context"
	"log/slog"
	"time"

	"github.com/looplab/fsm"

	"github.com/sipcore/agent/pkg/rtpsession"
	"github.com/sipcore/agent/pkg/sip/message"
)

// Call states, named to match §3's data model rather than the generic
// Init/Trying/Established vocabulary a hand-rolled state machine might
// use elsewhere in this codebase's ancestry.
const (
	CallIncoming    = "incoming"
	CallCalling     = "calling"
	CallRinging     = "ringing"
	CallEstablished = "established"
	CallTerminated  = "terminated"
	CallFailed      = "failed"
)

// Role distinguishes which side of the dialog this process is.
type Role int

const (
	RoleUAS Role = iota
	RoleUAC
)

// Call is one SIP dialog plus its associated RTP session (once
// negotiated). Its state machine is a looplab/fsm.FSM so the transition
// table is declared data rather than a hand-rolled switch, matching the
// pattern this codebase otherwise uses for call-adjacent state.
type Call struct {
	CallID       string
	LocalTag     string
	RemoteTag    string
	LocalURI     *message.URI
	RemoteURI    *message.URI
	LocalCSeq    uint32
	RemoteCSeq   uint32
	Role         Role
	StartedAt    time.Time
	EndedAt      time.Time

	RemoteHost string
	RemotePort int

	// LocalRTPPort is the port this call advertised in its own SDP,
	// chosen per-call from the configured range so concurrent calls don't
	// collide on a single static port.
	LocalRTPPort int

	RTP *rtpsession.Session

	fsm             *fsm.FSM
	everEstablished bool
	log             *slog.Logger
}

// NewCall builds a Call and its FSM, wired with the valid transitions
// from §3's data model: Incoming/Calling -> Ringing -> Established ->
// Terminated, with a Failed sink reachable from every state before
// Established (Incoming, Calling, Ringing).
func NewCall(callID string, role Role, log *slog.Logger) *Call {
	initial := CallCalling
	if role == RoleUAS {
		initial = CallIncoming
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Call{CallID: callID, Role: role, StartedAt: time.Now(), log: log.With("call_id", callID)}

	c.fsm = fsm.NewFSM(
		initial,
		fsm.Events{
			{Name: "ring", Src: []string{CallIncoming, CallCalling}, Dst: CallRinging},
			{Name: "establish", Src: []string{CallIncoming, CallCalling, CallRinging}, Dst: CallEstablished},
			{Name: "terminate", Src: []string{CallIncoming, CallCalling, CallRinging, CallEstablished}, Dst: CallTerminated},
			{Name: "fail", Src: []string{CallIncoming, CallCalling, CallRinging}, Dst: CallFailed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				c.log.Debug("call state change", "from", e.Src, "to", e.Dst)
			},
		},
	)
	return c
}

// State returns the call's current FSM state.
func (c *Call) State() string { return c.fsm.Current() }

// Ring drives Incoming/Calling -> Ringing (a 180 sent or received).
func (c *Call) Ring(ctx context.Context) error { return c.fsm.Event(ctx, "ring") }

// Establish drives the call to Established (2xx + ACK observed) and
// starts its RTP session.
func (c *Call) Establish(ctx context.Context, rtp *rtpsession.Session) error {
	if err := c.fsm.Event(ctx, "establish"); err != nil {
		return err
	}
	c.RTP = rtp
	c.everEstablished = true
	return nil
}

// Terminate drives the call to Terminated (BYE/CANCEL observed) and stops
// its RTP session if one was running.
func (c *Call) Terminate(ctx context.Context) error {
	err := c.fsm.Event(ctx, "terminate")
	c.EndedAt = time.Now()
	if c.RTP != nil {
		c.RTP.Stop()
	}
	return err
}

// Fail drives the call to Failed (non-2xx final response, or no route to
// the called party) without ever having reached Established.
func (c *Call) Fail(ctx context.Context) error {
	err := c.fsm.Event(ctx, "fail")
	c.EndedAt = time.Now()
	return err
}

// ReachedEstablished reports whether this call was ever Established,
// which is what distinguishes a completed call from a failed one once it
// reaches a terminal state (§4.3 "Call counters").
func (c *Call) ReachedEstablished() bool {
	return c.everEstablished
}

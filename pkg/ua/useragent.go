// Package ua implements the user-agent dispatch layer (§4.3): REGISTER,
// INVITE, ACK, BYE, CANCEL and OPTIONS handling over the transaction
// layer, the user and call tables, and the call counters. Every exported
// method that touches transaction or call state is meant to run on the
// owning executor.Loop goroutine; only Run's transport pump and metrics
// snapshot reads cross that boundary, and they do so through Post or a
// guarded snapshot, never a direct mutation.
package ua

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sipcore/agent/pkg/executor"
	"github.com/sipcore/agent/pkg/g711"
	"github.com/sipcore/agent/pkg/rtp"
	"github.com/sipcore/agent/pkg/rtpsession"
	"github.com/sipcore/agent/pkg/sip/message"
	"github.com/sipcore/agent/pkg/sip/transaction"
	"github.com/sipcore/agent/pkg/transport"
)

// transportAdapter narrows a transport.Transport down to the send surface
// the transaction layer consumes, so the transaction package need not
// import the wider transport package.
type transportAdapter struct {
	t        transport.Transport
	reliable bool
}

func (a transportAdapter) SendMessage(msg message.Message, host string, port int) error {
	switch m := msg.(type) {
	case *message.Request:
		return a.t.SendSIPMessage(m, host, port)
	case *message.Response:
		return a.t.SendSIPMessage(m, host, port)
	default:
		return fmt.Errorf("ua: unsupported message type %T", msg)
	}
}

func (a transportAdapter) Reliable() bool { return a.reliable }

// UserAgent ties the transaction layer, RTP sessions and G.711 codec
// together into the REGISTER/INVITE/ACK/BYE/CANCEL/OPTIONS dispatch of
// §4.3, running entirely on one executor.Loop.
type UserAgent struct {
	cfg  Config
	log  *slog.Logger
	loop *executor.Loop
	tp   transport.Transport
	txm  *transaction.Manager

	users      *userTable
	counters   *Counters
	rtpMetrics *rtpsession.Metrics

	mu        sync.Mutex
	callsByID map[string]*Call
	rtpByAddr map[string]*Call
}

// New creates a UserAgent bound to loop and transport (already Bind-ed by
// the caller). reg receives the prometheus collectors; pass
// prometheus.NewRegistry() in tests.
func New(cfg Config, loop *executor.Loop, tp transport.Transport, reg prometheus.Registerer, log *slog.Logger) *UserAgent {
	cfg = cfg.WithDefaults()
	if log == nil {
		log = slog.Default()
	}
	adapter := transportAdapter{t: tp, reliable: tp.Reliable()}
	return &UserAgent{
		cfg:        cfg,
		log:        log,
		loop:       loop,
		tp:         tp,
		txm:        transaction.New(loop, adapter, transaction.DefaultTimers(), log),
		users:      newUserTable(),
		counters:   NewCounters(reg),
		rtpMetrics: rtpsession.NewMetrics(reg),
		callsByID:  make(map[string]*Call),
		rtpByAddr:  make(map[string]*Call),
	}
}

// Run pumps transport events onto the loop until ctx is cancelled. It is
// the one place a non-loop goroutine reads from transport.Events(); every
// event is handed to the loop via Post before being acted on.
func (ua *UserAgent) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ua.tp.Events():
			if !ok {
				return
			}
			e := ev
			ua.loop.Post(func() { ua.handleEvent(e) })
		}
	}
}

func (ua *UserAgent) handleEvent(e transport.Event) {
	switch e.Kind {
	case transport.EventSIPMessage:
		ua.handleSIPMessage(e.SIPMessage, e.RemoteHost, e.RemotePort)
	case transport.EventRTPData:
		ua.handleRTPData(e.RTPData, e.RemoteHost, e.RemotePort)
	case transport.EventError:
		ua.log.Warn("transport error", "error", e.Err)
	}
}

func (ua *UserAgent) handleSIPMessage(msg message.Message, remoteHost string, remotePort int) {
	switch m := msg.(type) {
	case *message.Request:
		ua.handleRequest(m, remoteHost, remotePort)
	case *message.Response:
		ua.handleResponse(m)
	}
}

// handleRequest implements §4.3's per-method request rules.
func (ua *UserAgent) handleRequest(req *message.Request, remoteHost string, remotePort int) {
	if t, matched := ua.txm.HandleRequest(req); matched {
		ua.log.Debug("request matched existing server transaction", "key", t.Key().String())
		return
	}

	if mf := req.GetHeader("Max-Forwards"); mf != "" {
		var n int
		if _, err := fmt.Sscanf(mf, "%d", &n); err == nil && n <= 0 {
			ua.rejectTooManyHops(req, remoteHost, remotePort)
			return
		}
	}

	switch req.Method {
	case "REGISTER":
		ua.handleRegister(req, remoteHost, remotePort)
	case "INVITE":
		ua.handleInvite(req, remoteHost, remotePort)
	case "BYE", "CANCEL":
		ua.handleByeOrCancel(req, remoteHost, remotePort)
	case "OPTIONS":
		ua.handleOptions(req, remoteHost, remotePort)
	default:
		st, err := ua.txm.NewServerNonInvite(req, remoteHost, remotePort)
		if err != nil {
			ua.log.Warn("cannot create server transaction", "error", err)
			return
		}
		st.SendResponse(message.NewResponse(req, 501, "Not Implemented").Build())
	}
}

// rejectTooManyHops sends a 483 Too Many Hops for a request whose
// Max-Forwards reached zero, before any method-specific dispatch runs.
func (ua *UserAgent) rejectTooManyHops(req *message.Request, remoteHost string, remotePort int) {
	resp := message.NewResponse(req, 483, "Too Many Hops").Build()
	if req.Method == "INVITE" {
		st, err := ua.txm.NewServerInvite(req, remoteHost, remotePort)
		if err != nil {
			ua.log.Warn("cannot create server transaction for Max-Forwards rejection", "error", err)
			return
		}
		st.SendResponse(resp)
		return
	}
	st, err := ua.txm.NewServerNonInvite(req, remoteHost, remotePort)
	if err != nil {
		ua.log.Warn("cannot create server transaction for Max-Forwards rejection", "error", err)
		return
	}
	st.SendResponse(resp)
}

func (ua *UserAgent) handleRegister(req *message.Request, remoteHost string, remotePort int) {
	st, err := ua.txm.NewServerNonInvite(req, remoteHost, remotePort)
	if err != nil {
		ua.log.Warn("cannot create server transaction for REGISTER", "error", err)
		return
	}

	from := req.GetHeader("From")
	contact := req.GetHeader("Contact")
	if from == "" || contact == "" {
		st.SendResponse(message.NewResponse(req, 400, "Bad Request").Build())
		return
	}
	fromURI, err := message.ExtractURI(from)
	if err != nil || fromURI.User == "" {
		st.SendResponse(message.NewResponse(req, 400, "Bad Request").Build())
		return
	}

	expires := ua.cfg.RegistrationExpires
	if v := req.GetHeader("Expires"); v != "" {
		if parsed, perr := parseExpires(v); perr == nil {
			expires = parsed
		}
	}

	ua.users.put(Registration{
		User:         fromURI.User,
		Contact:      contact,
		Expires:      expires,
		RemoteHost:   remoteHost,
		RemotePort:   remotePort,
		RegisteredAt: time.Now(),
	})

	resp := message.NewResponse(req, 200, "OK").
		Header("Expires", fmt.Sprintf("%d", expires)).
		Build()
	resp.SetHeader("Contact", contact)
	st.SendResponse(resp)
}

func (ua *UserAgent) handleInvite(req *message.Request, remoteHost string, remotePort int) {
	st, err := ua.txm.NewServerInvite(req, remoteHost, remotePort)
	if err != nil {
		ua.log.Warn("cannot create server transaction for INVITE", "error", err)
		return
	}
	ua.counters.recordReceived()

	from := req.GetHeader("From")
	to := req.GetHeader("To")
	callID := req.GetHeader("Call-ID")
	if from == "" || to == "" || callID == "" {
		st.SendResponse(message.NewResponse(req, 400, "Bad Request").Build())
		return
	}
	toURI, err := message.ExtractURI(to)
	if err != nil || toURI.User == "" {
		st.SendResponse(message.NewResponse(req, 400, "Bad Request").Build())
		return
	}

	if _, ok := ua.users.get(toURI.User); !ok {
		st.SendResponse(message.NewResponse(req, 404, "Not Found").Build())
		return
	}

	call := NewCall(callID, RoleUAS, ua.log)
	call.LocalRTPPort = ua.allocateRTPPort()
	ua.putCall(call)

	toTag := message.GenerateTag()
	ringing := message.NewResponse(req, 180, "Ringing").ToTag(toTag).Build()
	st.SendResponse(ringing)
	call.Ring(context.Background())

	ua.loop.AfterFunc(ua.cfg.RingDuration, func() {
		ua.answerInvite(st, req, call, toTag, remoteHost, remotePort)
	})

	st.OnRequest(func(r *message.Request) {
		if r.Method == "ACK" {
			ua.onACKReceived(call, req, remoteHost, remotePort)
		}
	})
}

func (ua *UserAgent) answerInvite(st *transaction.ServerInvite, req *message.Request, call *Call, toTag, remoteHost string, remotePort int) {
	if st.State() == transaction.StateTerminated || call.State() == CallTerminated {
		// A CANCEL or BYE during the ring interval already terminated the
		// call (or the transaction has ended); no 200 OK is sent. The
		// called user's registration is not looked up again here.
		return
	}

	localHost := ua.cfg.SIPHost
	if localHost == "" {
		localHost = remoteHost
	}
	body, err := BuildOfferAnswer(call.CallID, localHost, call.LocalRTPPort)
	if err != nil {
		ua.log.Error("building SDP answer", "error", err)
		return
	}

	resp := message.NewResponse(req, 200, "OK").
		ToTag(toTag).
		Body("application/sdp", body).
		Build()
	st.SendResponse(resp)
}

func (ua *UserAgent) onACKReceived(call *Call, invite *message.Request, remoteHost string, remotePort int) {
	host, port, err := ParseRemoteRTPTarget(invite.Body())
	if err != nil {
		host, port = remoteHost, call.LocalRTPPort
	}
	call.RemoteHost, call.RemotePort = host, port

	session := rtpsession.New(rtpsession.Config{
		PayloadType:          rtp.PayloadPCMU,
		BufferCapacity:       ua.cfg.JitterBufferSize,
		JitterBufferDelay:    ua.cfg.JitterBufferDelay,
		MaxJitterBufferDelay: ua.cfg.MaxJitterBufferDelay,
	}, ua.log)

	if err := call.Establish(context.Background(), session); err != nil {
		ua.log.Warn("establishing call", "call_id", call.CallID, "error", err)
		return
	}

	ua.mu.Lock()
	ua.rtpByAddr[addrKey(host, port)] = call
	ua.mu.Unlock()
}

func (ua *UserAgent) handleByeOrCancel(req *message.Request, remoteHost string, remotePort int) {
	st, err := ua.txm.NewServerNonInvite(req, remoteHost, remotePort)
	if err != nil {
		ua.log.Warn("cannot create server transaction", "error", err)
		return
	}

	callID := req.GetHeader("Call-ID")
	call, ok := ua.getCall(callID)
	if !ok {
		st.SendResponse(message.NewResponse(req, 481, "Call/Transaction Does Not Exist").Build())
		return
	}

	reachedEstablished := call.ReachedEstablished()
	if err := call.Terminate(context.Background()); err != nil {
		ua.log.Warn("terminating call", "call_id", callID, "error", err)
	}
	ua.counters.recordTermination(reachedEstablished)
	ua.dropCall(call)

	st.SendResponse(message.NewResponse(req, 200, "OK").Build())
}

func (ua *UserAgent) handleOptions(req *message.Request, remoteHost string, remotePort int) {
	st, err := ua.txm.NewServerNonInvite(req, remoteHost, remotePort)
	if err != nil {
		ua.log.Warn("cannot create server transaction for OPTIONS", "error", err)
		return
	}
	b := message.NewResponse(req, 200, "OK").
		Header("Allow", "INVITE, ACK, BYE, CANCEL, OPTIONS, REGISTER").
		Header("Accept", "application/sdp")
	resp := b.Build()
	if lang := req.GetHeader("Accept-Language"); lang != "" {
		resp.SetHeader("Accept-Language", lang)
	}
	st.SendResponse(resp)
}

// handleResponse implements §4.3's "Response handling" rules for client
// transactions: INVITE 180/200/>=400 drive the local call's state.
// Responses to other methods, REGISTER included, only feed their client
// transaction; no registration state is recorded.
func (ua *UserAgent) handleResponse(resp *message.Response) {
	_, matched := ua.txm.HandleResponse(resp)
	if !matched {
		ua.log.Warn("unmatched response", "status", resp.StatusCode)
		return
	}

	cseq := resp.GetHeader("CSeq")
	if cseq == "" {
		return
	}
	_, method, err := message.ParseCSeq(cseq)
	if err != nil || method != "INVITE" {
		return
	}

	callID := resp.GetHeader("Call-ID")
	call, ok := ua.getCall(callID)
	if !ok {
		return
	}

	switch {
	case resp.StatusCode < 200:
		call.Ring(context.Background())
	case resp.StatusCode < 300:
		host, port, perr := ParseRemoteRTPTarget(resp.Body())
		session := rtpsession.New(rtpsession.Config{
			PayloadType:          rtp.PayloadPCMU,
			BufferCapacity:       ua.cfg.JitterBufferSize,
			JitterBufferDelay:    ua.cfg.JitterBufferDelay,
			MaxJitterBufferDelay: ua.cfg.MaxJitterBufferDelay,
		}, ua.log)
		call.Establish(context.Background(), session)
		if perr == nil {
			call.RemoteHost, call.RemotePort = host, port
			ua.mu.Lock()
			ua.rtpByAddr[addrKey(host, port)] = call
			ua.mu.Unlock()
		}
	default:
		reachedEstablished := call.ReachedEstablished()
		call.Fail(context.Background())
		ua.counters.recordTermination(reachedEstablished)
		ua.dropCall(call)
	}
}

// handleRTPData feeds inbound RTP to the call whose answer/offer named
// this remote address, decoding the released payloads through G.711 μ-law.
func (ua *UserAgent) handleRTPData(data []byte, remoteHost string, remotePort int) {
	ua.mu.Lock()
	call, ok := ua.rtpByAddr[addrKey(remoteHost, remotePort)]
	ua.mu.Unlock()
	if !ok || call.RTP == nil || !call.RTP.Active() {
		return
	}

	packets, valid := call.RTP.ReceivePacket(data, time.Now())
	if !valid {
		return
	}
	ua.rtpMetrics.Observe(call.RTP)

	for _, p := range packets {
		pcm := g711.DecodeMuLaw(p.Payload)
		_ = pcm // decoded audio is handed to a media sink outside this layer's scope
	}
}

func (ua *UserAgent) putCall(c *Call) {
	ua.mu.Lock()
	ua.callsByID[c.CallID] = c
	ua.mu.Unlock()
}

func (ua *UserAgent) getCall(callID string) (*Call, bool) {
	ua.mu.Lock()
	defer ua.mu.Unlock()
	c, ok := ua.callsByID[callID]
	return c, ok
}

func (ua *UserAgent) dropCall(c *Call) {
	ua.mu.Lock()
	delete(ua.callsByID, c.CallID)
	if c.RemoteHost != "" {
		delete(ua.rtpByAddr, addrKey(c.RemoteHost, c.RemotePort))
	}
	ua.mu.Unlock()
}

// ActiveCalls returns a snapshot of the calls currently tracked.
func (ua *UserAgent) ActiveCalls() []*Call {
	ua.mu.Lock()
	defer ua.mu.Unlock()
	out := make([]*Call, 0, len(ua.callsByID))
	for _, c := range ua.callsByID {
		out = append(out, c)
	}
	return out
}

// RegisteredUsers returns a snapshot of the user table.
func (ua *UserAgent) RegisteredUsers() []Registration {
	return ua.users.snapshot()
}

// Stats returns a snapshot of the call counters.
func (ua *UserAgent) Stats() Snapshot {
	return ua.counters.Snapshot()
}

func addrKey(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// allocateRTPPort picks a port within [RTPPort, RTPPort+RTPPortRange) for a
// single call's own SDP, so concurrent calls advertise distinct ports
// instead of all colliding on the one static base port.
func (ua *UserAgent) allocateRTPPort() int {
	if ua.cfg.RTPPortRange <= 1 {
		return ua.cfg.RTPPort
	}
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return ua.cfg.RTPPort
	}
	offset := int(binary.BigEndian.Uint32(b[:])) % ua.cfg.RTPPortRange
	if offset < 0 {
		offset += ua.cfg.RTPPortRange
	}
	return ua.cfg.RTPPort + offset
}

func parseExpires(v string) (int, error) {
	var n int
	_, err := fmt.Sscanf(v, "%d", &n)
	return n, err
}

package ua

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/sipcore/agent/pkg/executor"
	"github.com/sipcore/agent/pkg/sip/message"
	"github.com/sipcore/agent/pkg/transport"
)

func newTestUA(t *testing.T, cfg Config) (*UserAgent, *transport.Loopback, *transport.Loopback) {
	t.Helper()
	loop := executor.New(64)
	go loop.Run()
	t.Cleanup(loop.Stop)

	uaSide := transport.NewLoopback(false)
	require.NoError(t, uaSide.Bind("127.0.0.1", 5060))
	peer := transport.NewLoopback(false)
	require.NoError(t, peer.Bind("127.0.0.1", 5070))
	uaSide.Link(peer)

	agent := New(cfg, loop, uaSide, prometheus.NewRegistry(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go agent.Run(ctx)

	return agent, uaSide, peer
}

func registerRequest(t *testing.T, user string) *message.Request {
	t.Helper()
	aor := message.MustParseURI("sip:" + user + "@127.0.0.1:5070")
	req, err := message.NewRequest("REGISTER", message.MustParseURI("sip:127.0.0.1:5060")).
		Via("UDP", "127.0.0.1", 5070, message.GenerateBranch()).
		From(aor, message.GenerateTag()).
		To(aor, "").
		CallID(message.GenerateCallID("127.0.0.1")).
		CSeq(1, "REGISTER").
		Contact(aor).
		Build()
	require.NoError(t, err)
	return req
}

func inviteRequest(t *testing.T, from, to string) *message.Request {
	t.Helper()
	fromURI := message.MustParseURI("sip:" + from + "@127.0.0.1:5070")
	toURI := message.MustParseURI("sip:" + to + "@127.0.0.1:5060")
	req, err := message.NewRequest("INVITE", toURI).
		Via("UDP", "127.0.0.1", 5070, message.GenerateBranch()).
		From(fromURI, message.GenerateTag()).
		To(toURI, "").
		CallID(message.GenerateCallID("127.0.0.1")).
		CSeq(1, "INVITE").
		Contact(fromURI).
		Build()
	require.NoError(t, err)
	return req
}

func waitForResponse(t *testing.T, peer *transport.Loopback, timeout time.Duration) *message.Response {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-peer.Events():
			if ev.Kind != transport.EventSIPMessage {
				continue
			}
			if resp, ok := ev.SIPMessage.(*message.Response); ok {
				return resp
			}
		case <-deadline:
			t.Fatal("timed out waiting for response")
			return nil
		}
	}
}

func TestRegisterWritesUserTableAndReplies200(t *testing.T) {
	agent, uaSide, peer := newTestUA(t, Config{})
	req := registerRequest(t, "alice")
	require.NoError(t, peer.SendSIPMessage(req, "127.0.0.1", 5060))
	_ = uaSide

	resp := waitForResponse(t, peer, time.Second)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, req.GetHeader("Contact"), resp.GetHeader("Contact"))

	regs := agent.RegisteredUsers()
	require.Len(t, regs, 1)
	require.Equal(t, "alice", regs[0].User)
}

func TestInviteToUnknownUserGets404(t *testing.T) {
	_, _, peer := newTestUA(t, Config{})
	req := inviteRequest(t, "alice", "carol")
	require.NoError(t, peer.SendSIPMessage(req, "127.0.0.1", 5060))

	resp := waitForResponse(t, peer, time.Second)
	require.Equal(t, 404, resp.StatusCode)
}

func TestInviteToRegisteredUserRingsThenAnswers(t *testing.T) {
	agent, _, peer := newTestUA(t, Config{RingDuration: 10 * time.Millisecond, SIPHost: "127.0.0.1"})

	reg := registerRequest(t, "bob")
	require.NoError(t, peer.SendSIPMessage(reg, "127.0.0.1", 5060))
	waitForResponse(t, peer, time.Second)

	inv := inviteRequest(t, "alice", "bob")
	require.NoError(t, peer.SendSIPMessage(inv, "127.0.0.1", 5060))

	ringing := waitForResponse(t, peer, time.Second)
	require.Equal(t, 180, ringing.StatusCode)

	ok := waitForResponse(t, peer, time.Second)
	require.Equal(t, 200, ok.StatusCode)
	require.NotEmpty(t, ok.Body())

	stats := agent.Stats()
	require.Equal(t, int64(1), stats.CallsReceived)
}

func TestOptionsAdvertisesAllow(t *testing.T) {
	_, _, peer := newTestUA(t, Config{})
	aor := message.MustParseURI("sip:alice@127.0.0.1:5070")
	req, err := message.NewRequest("OPTIONS", message.MustParseURI("sip:127.0.0.1:5060")).
		Via("UDP", "127.0.0.1", 5070, message.GenerateBranch()).
		From(aor, message.GenerateTag()).
		To(aor, "").
		CallID(message.GenerateCallID("127.0.0.1")).
		CSeq(1, "OPTIONS").
		Build()
	require.NoError(t, err)
	require.NoError(t, peer.SendSIPMessage(req, "127.0.0.1", 5060))

	resp := waitForResponse(t, peer, time.Second)
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, resp.GetHeader("Allow"), "INVITE")
}

func TestOptionsEchoesAcceptLanguage(t *testing.T) {
	_, _, peer := newTestUA(t, Config{})
	aor := message.MustParseURI("sip:alice@127.0.0.1:5070")
	req, err := message.NewRequest("OPTIONS", message.MustParseURI("sip:127.0.0.1:5060")).
		Via("UDP", "127.0.0.1", 5070, message.GenerateBranch()).
		From(aor, message.GenerateTag()).
		To(aor, "").
		CallID(message.GenerateCallID("127.0.0.1")).
		CSeq(1, "OPTIONS").
		Header("Accept-Language", "fr").
		Build()
	require.NoError(t, err)
	require.NoError(t, peer.SendSIPMessage(req, "127.0.0.1", 5060))

	resp := waitForResponse(t, peer, time.Second)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, "fr", resp.GetHeader("Accept-Language"))
}

func TestInviteWithZeroMaxForwardsGets483(t *testing.T) {
	_, _, peer := newTestUA(t, Config{})
	req := inviteRequest(t, "alice", "bob")
	req.SetHeader("Max-Forwards", "0")
	require.NoError(t, peer.SendSIPMessage(req, "127.0.0.1", 5060))

	resp := waitForResponse(t, peer, time.Second)
	require.Equal(t, 483, resp.StatusCode)
}

func TestConcurrentCallsGetDistinctRTPPorts(t *testing.T) {
	agent, _, peer := newTestUA(t, Config{RingDuration: 10 * time.Millisecond, SIPHost: "127.0.0.1", RTPPortRange: 1000})

	reg := registerRequest(t, "bob")
	require.NoError(t, peer.SendSIPMessage(reg, "127.0.0.1", 5060))
	waitForResponse(t, peer, time.Second)

	var ports []int
	for i := 0; i < 5; i++ {
		inv := inviteRequest(t, "alice", "bob")
		require.NoError(t, peer.SendSIPMessage(inv, "127.0.0.1", 5060))
		waitForResponse(t, peer, time.Second) // 180 Ringing
		ok := waitForResponse(t, peer, time.Second)
		require.Equal(t, 200, ok.StatusCode)
		host, port, err := ParseRemoteRTPTarget(ok.Body())
		require.NoError(t, err)
		_ = host
		ports = append(ports, port)
	}

	seen := make(map[int]bool)
	for _, p := range ports {
		seen[p] = true
	}
	require.Greater(t, len(seen), 1, "expected concurrent calls to be offered distinct RTP ports, got all %v", ports)
	_ = agent
}

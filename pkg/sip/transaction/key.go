package transaction

import (
	"fmt"
	"strings"

	"github.com/sipcore/agent/pkg/sip/message"
)

// Key identifies a transaction. Per the RFC 3261 branch-matching rules a
// branch beginning with the magic cookie uniquely identifies a transaction
// together with the method. CANCEL shares the INVITE's branch but is matched
// as a distinct transaction by method; an ACK for a non-2xx response is
// matched to the INVITE server transaction it acknowledges (see
// ServerKeyForRequest).
type Key struct {
	Branch string
	Method string
	Server bool // true for server transactions, false for client
}

func (k Key) String() string {
	role := "C"
	if k.Server {
		role = "S"
	}
	return fmt.Sprintf("%s/%s/%s", role, k.Method, k.Branch)
}

// ClientKeyForRequest returns the key a client transaction created to send
// req would be registered under.
func ClientKeyForRequest(req *message.Request) Key {
	return Key{Branch: message.ExtractBranch(req), Method: req.Method, Server: false}
}

// ServerKeyForRequest returns the key a server transaction handling an
// inbound req would be registered under. ACK matches the INVITE server
// transaction it acknowledges, so its key uses method "INVITE".
func ServerKeyForRequest(req *message.Request) Key {
	method := req.Method
	if method == "ACK" {
		method = "INVITE"
	}
	return Key{Branch: message.ExtractBranch(req), Method: method, Server: true}
}

// ClientKeyForResponse returns the key of the client transaction resp
// belongs to, derived from the response's own Via/CSeq (the response
// carries the same branch the request was sent with).
func ClientKeyForResponse(resp *message.Response) (Key, error) {
	via := resp.GetHeader("Via")
	branch := branchOf(via)
	if branch == "" {
		return Key{}, fmt.Errorf("%w: response missing branch", ErrInvalidResponse)
	}
	_, method, err := message.ParseCSeq(resp.GetHeader("CSeq"))
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return Key{Branch: branch, Method: method, Server: false}, nil
}

func branchOf(via string) string {
	const marker = ";branch="
	idx := strings.Index(via, marker)
	if idx < 0 {
		return ""
	}
	rest := via[idx+len(marker):]
	if end := strings.IndexByte(rest, ';'); end >= 0 {
		return rest[:end]
	}
	return rest
}

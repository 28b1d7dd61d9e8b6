// Package classify decides which HTTP-family protocol a connection speaks
// from the first bytes read from a client, and extracts whatever routing
// data that decision needs.
package classify

import (
	"strconv"
	"strings"

	"golang.org/x/net/http2"

	"fwdproxy/internal/wire"
)

// Kind tags the classifier's result. It intentionally has no behavior of
// its own — internal/proxy switches on it and dispatches to one handler
// per kind, rather than modeling each kind as a subtype.
type Kind int

const (
	Unknown Kind = iota
	HTTP10
	HTTP11
	HTTP2Cleartext
	WebSocketUpgrade
	ConnectTunnel
)

func (k Kind) String() string {
	switch k {
	case HTTP10:
		return "http/1.0"
	case HTTP11:
		return "http/1.1"
	case HTTP2Cleartext:
		return "http/2-cleartext"
	case WebSocketUpgrade:
		return "websocket-upgrade"
	case ConnectTunnel:
		return "connect"
	default:
		return "unknown"
	}
}

// Result tags a connection with its protocol kind. Host/Port/Key are
// populated only for the kinds that carry them.
type Result struct {
	Kind Kind
	Host string
	Port int
	Key  string // Sec-WebSocket-Key, only set for WebSocketUpgrade
}

// Classify runs a sequence of ordered tests against buf, the initial
// buffer read from a client connection.
func Classify(buf []byte) Result {
	if isHTTP2Preface(buf) {
		return Result{Kind: HTTP2Cleartext}
	}

	req := wire.Parse(buf)
	if req.Method == "" {
		return Result{Kind: Unknown}
	}

	if req.Method == "CONNECT" {
		host, port, ok := splitHostPortLast(req.Target)
		if !ok {
			return Result{Kind: Unknown}
		}
		return Result{Kind: ConnectTunnel, Host: host, Port: port}
	}

	if isWebSocketUpgrade(req) {
		key, _ := req.Header("Sec-WebSocket-Key")
		hostHeader, _ := req.Header("Host")
		host, port := SplitHostPortFirst(hostHeader)
		return Result{Kind: WebSocketUpgrade, Host: host, Port: port, Key: key}
	}

	if req.Version == "HTTP/1.0" {
		return Result{Kind: HTTP10}
	}
	return Result{Kind: HTTP11}
}

func isHTTP2Preface(buf []byte) bool {
	preface := []byte(http2.ClientPreface)
	return len(buf) >= len(preface) && string(buf[:len(preface)]) == string(preface)
}

func isWebSocketUpgrade(req wire.Request) bool {
	if !req.HasToken("Upgrade", "websocket") {
		return false
	}
	if !req.HasToken("Connection", "Upgrade") {
		return false
	}
	if _, ok := req.Header("Sec-WebSocket-Key"); !ok {
		return false
	}
	if _, ok := req.Header("Host"); !ok {
		return false
	}
	return true
}

// SplitHostPortFirst implements the Host:-header splitting rule: split at
// the first colon, default port 80, fall back to port 80 on a bad parse.
func SplitHostPortFirst(value string) (string, int) {
	if value == "" {
		return "", 80
	}
	host, portStr, found := strings.Cut(value, ":")
	if !found {
		return host, 80
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 80
	}
	return host, port
}

// splitHostPortLast implements the CONNECT-target splitting rule: split on
// the last colon; a missing or unparseable port is a classifier failure.
func splitHostPortLast(target string) (string, int, bool) {
	i := strings.LastIndex(target, ":")
	if i < 0 {
		return "", 0, false
	}
	host := target[:i]
	port, err := strconv.Atoi(target[i+1:])
	if err != nil {
		return "", 0, false
	}
	return host, port, true
}

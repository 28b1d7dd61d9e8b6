package proxy

import (
	"context"
	"fmt"
	"net"
	"strings"

	"fwdproxy/internal/classify"
	"fwdproxy/internal/config"
	"fwdproxy/internal/relay"
	"fwdproxy/internal/wire"
)

// handleWebSocket proxies a WebSocket upgrade handshake and the data
// stream that follows it. The proxy only synthesizes the minimal upgrade
// request it needs (path, Host, Upgrade, Connection, Sec-WebSocket-Key,
// and a hardcoded Sec-WebSocket-Version: 13); client extension/protocol/
// cookie headers are intentionally dropped.
func (c *connection) handleWebSocket(ctx context.Context, result classify.Result, initial []byte) {
	target, err := c.dialUpstream(ctx, result.Host, result.Port)
	if err != nil {
		c.log().Infow("websocket dial failed", "host", result.Host, "port", result.Port, "error", err)
		wire.WriteError(c.client, "502 Bad Gateway", "could not connect to origin")
		return
	}
	c.target = target

	req := wire.Parse(initial)
	path := req.Target
	if path == "" {
		path = "/"
	}
	upgradeReq := fmt.Sprintf(
		"GET %s HTTP/1.1\r\nHost: %s:%d\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: %s\r\nSec-WebSocket-Version: 13\r\n\r\n",
		path, result.Host, result.Port, result.Key,
	)
	if _, err := target.Write([]byte(upgradeReq)); err != nil {
		c.log().Debugw("writing websocket upgrade request upstream failed", "error", err)
		wire.WriteError(c.client, "502 Bad Gateway", "failed writing upgrade request upstream")
		return
	}

	resp, ok := readUpstreamResponse(target)
	if !ok {
		wire.WriteError(c.client, "502 Bad Gateway", "upstream closed before responding to upgrade")
		return
	}
	if !isSwitchingProtocols(resp) {
		// Forward the upstream's non-101 response to the client verbatim
		// and stop: the client sees whatever the origin actually said.
		c.client.Write(resp)
		return
	}

	if _, err := c.client.Write(resp); err != nil {
		c.log().Debugw("forwarding 101 response to client failed", "error", err)
		return
	}

	stats := relay.Relay(c.client, target, relay.Options{
		ReadTimeout:  c.server.cfg.ReadTimeout,
		WriteTimeout: c.server.cfg.WriteTimeout,
	})
	c.log().Infow("websocket tunnel closed", "host", result.Host, "port", result.Port,
		"bytes_client_to_upstream", stats.AToB, "bytes_upstream_to_client", stats.BToA)
}

// readUpstreamResponse reads up to the WebSocket response budget from the
// upstream connection.
func readUpstreamResponse(target net.Conn) ([]byte, bool) {
	buf := make([]byte, config.WebSocketResponseBudget)
	n, err := target.Read(buf)
	if err != nil || n == 0 {
		return nil, false
	}
	return buf[:n], true
}

func isSwitchingProtocols(resp []byte) bool {
	firstLine, _, _ := strings.Cut(string(resp), wire.CRLF)
	return strings.Contains(firstLine, "HTTP/1.1 101") || strings.Contains(firstLine, "HTTP/1.0 101")
}

package proxy

import (
	"context"
	"io"
	"strings"

	"fwdproxy/internal/classify"
	"fwdproxy/internal/relay"
	"fwdproxy/internal/wire"
)

// http2DialFailedResponse is a bare status line rather than the generic
// error template: an HTTP/2 client reads a status line before any frames,
// so the dial failure has to look like one.
const http2DialFailedResponse = "HTTP/1.1 502 Bad Gateway\r\nContent-Length: 0\r\n\r\n"

// handleHTTP2 forwards HTTP/2 cleartext connections: they are never
// terminated, only routed. Routing falls back to a Host: header on the
// initial buffer, which works for upgrade-style negotiation but not
// prior-knowledge HTTP/2 without a Host line, so a missing header is a
// hard 400.
func (c *connection) handleHTTP2(ctx context.Context, initial []byte) {
	hostHeader, ok := findHostAnywhere(initial)
	if !ok {
		wire.WriteError(c.client, "400 Bad Request", "HTTP/2 cleartext requires a Host header for routing")
		return
	}
	host, port := classify.SplitHostPortFirst(hostHeader)

	target, err := c.dialUpstream(ctx, host, port)
	if err != nil {
		c.log().Infow("http2 dial failed", "host", host, "port", port, "error", err)
		io.WriteString(c.client, http2DialFailedResponse)
		return
	}
	c.target = target

	if _, err := target.Write(initial); err != nil {
		c.log().Debugw("writing HTTP/2 preface upstream failed", "error", err)
		return
	}

	stats := relay.Relay(c.client, target, relay.Options{
		ReadTimeout:  c.server.cfg.ReadTimeout,
		WriteTimeout: c.server.cfg.WriteTimeout,
	})
	c.log().Infow("http2 forward closed", "host", host, "port", port,
		"bytes_client_to_upstream", stats.AToB, "bytes_upstream_to_client", stats.BToA)
}

// findHostAnywhere locates a Host header by scanning the raw buffer text for
// the literal "Host:" rather than walking it line by line. The HTTP/2
// cleartext preface embeds a blank line of its own (between the request
// line and the "SM\r\n\r\n" magic), so a parser that stops at the first
// blank line never reaches a Host header placed after the preface.
func findHostAnywhere(buf []byte) (string, bool) {
	text := string(buf)
	idx := strings.Index(text, "Host:")
	if idx < 0 {
		return "", false
	}
	rest := text[idx+len("Host:"):]
	end := strings.IndexAny(rest, "\r\n")
	if end < 0 {
		end = len(rest)
	}
	host := strings.TrimSpace(rest[:end])
	if host == "" {
		return "", false
	}
	return host, true
}

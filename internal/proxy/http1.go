package proxy

import (
	"context"

	"fwdproxy/internal/classify"
	"fwdproxy/internal/relay"
	"fwdproxy/internal/wire"
)

// handleHTTP1 forwards HTTP/1.0 and HTTP/1.1 connections: the upstream
// target comes from the Host header, not the request-URI, and the initial
// buffer is forwarded verbatim before any relay read is issued. The proxy
// never rewrites the request to origin-form and never closes after one
// request, so keep-alive pipelining passes through transparently.
func (c *connection) handleHTTP1(ctx context.Context, kind classify.Kind, initial []byte) {
	req := wire.Parse(initial)
	hostHeader, _ := req.Header("Host")
	host, port := classify.SplitHostPortFirst(hostHeader)

	target, err := c.dialUpstream(ctx, host, port)
	if err != nil {
		c.log().Infow("http1 dial failed", "host", host, "port", port, "error", err)
		version := "HTTP/1.1"
		if kind == classify.HTTP10 {
			version = "HTTP/1.0"
		}
		wire.WriteErrorVersion(c.client, version, "502 Bad Gateway", "could not connect to origin")
		return
	}
	c.target = target

	if _, err := target.Write(initial); err != nil {
		c.log().Debugw("writing initial buffer upstream failed", "error", err)
		return
	}

	stats := relay.Relay(c.client, target, relay.Options{
		ReadTimeout:  c.server.cfg.ReadTimeout,
		WriteTimeout: c.server.cfg.WriteTimeout,
	})
	c.log().Infow("http1 forward closed", "kind", kind.String(), "host", host, "port", port,
		"bytes_client_to_upstream", stats.AToB, "bytes_upstream_to_client", stats.BToA)
}

package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"

	"fwdproxy/internal/classify"
	"fwdproxy/internal/relay"
	"fwdproxy/internal/wire"
)

// handleConnect runs the CONNECT tunnel state machine: dial upstream first
// (so a failure can be reported as a true 5xx), then send the 200 response,
// then relay opaquely. The relay tolerates read/write timeouts rather than
// tearing down the tunnel, since a CONNECT tunnel typically carries TLS and
// can go idle for long stretches between application-layer exchanges.
func (c *connection) handleConnect(ctx context.Context, result classify.Result) {
	target, err := c.dialUpstream(ctx, result.Host, result.Port)
	if err != nil {
		c.log().Infow("connect dial failed", "host", result.Host, "port", result.Port, "error", err)
		if isDialTimeout(err) {
			wire.WriteError(c.client, "504 Gateway Timeout",
				fmt.Sprintf("timed out connecting to %s:%d", result.Host, result.Port))
		} else {
			wire.WriteError(c.client, "502 Bad Gateway",
				fmt.Sprintf("could not connect to %s:%d", result.Host, result.Port))
		}
		return
	}
	c.target = target

	c.client.SetWriteDeadline(deadline(c.server.cfg.WriteTimeout))
	if err := wire.WriteConnectionEstablished(c.client); err != nil {
		c.log().Debugw("writing 200 Connection Established failed, relaying anyway", "error", err)
	}
	c.client.SetWriteDeadline(noDeadline)

	stats := relay.Relay(c.client, target, relay.Options{
		ReadTimeout:      c.server.cfg.ReadTimeout,
		WriteTimeout:     c.server.cfg.WriteTimeout,
		TolerateTimeouts: true,
	})
	c.log().Infow("connect tunnel closed", "host", result.Host, "port", result.Port,
		"bytes_client_to_upstream", stats.AToB, "bytes_upstream_to_client", stats.BToA)
}

func isDialTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

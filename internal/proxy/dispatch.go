package proxy

import (
	"context"
	"net"
	"strconv"

	"go.uber.org/zap"

	"fwdproxy/internal/classify"
	"fwdproxy/internal/config"
	"fwdproxy/internal/wire"
)

// connection owns the client socket (and, once dialed, the upstream
// socket) for exactly one accepted TCP connection. It is never shared
// between goroutines other than the single task that runs handle.
type connection struct {
	id     string
	client net.Conn
	target net.Conn
	server *Server
}

func (c *connection) log() *zap.SugaredLogger {
	return c.server.logger.With("id", c.id, "remote", c.client.RemoteAddr())
}

func (c *connection) close() {
	c.client.Close()
	if c.target != nil {
		c.target.Close()
	}
}

// handle is the per-connection dispatcher: read the initial buffer,
// authorize, classify, and invoke the matching handler.
func (c *connection) handle(ctx context.Context) {
	defer c.close()

	buf := make([]byte, config.MaxInitialBufferBytes)
	c.client.SetReadDeadline(deadline(c.server.cfg.ReadTimeout))
	n, err := c.client.Read(buf)
	c.client.SetReadDeadline(noDeadline)
	if err != nil || n == 0 {
		return
	}
	initial := buf[:n]

	req := wire.Parse(initial)
	authHeader, _ := req.Header("Proxy-Authorization")
	if !c.server.validator.Authorize(authHeader) {
		c.log().Infow("authorization failed")
		wire.WriteProxyAuthRequired(c.client)
		return
	}

	result := classify.Classify(initial)
	c.log().Infow("classified connection", "kind", result.Kind.String(), "host", result.Host, "port", result.Port)

	switch result.Kind {
	case classify.ConnectTunnel:
		c.handleConnect(ctx, result)
	case classify.WebSocketUpgrade:
		c.handleWebSocket(ctx, result, initial)
	case classify.HTTP2Cleartext:
		c.handleHTTP2(ctx, initial)
	case classify.HTTP10, classify.HTTP11:
		c.handleHTTP1(ctx, result.Kind, initial)
	default:
		wire.WriteError(c.client, "400 Bad Request", "unrecognized protocol")
	}
}

// dialUpstream dials host:port under the configured connect timeout.
func (c *connection) dialUpstream(ctx context.Context, host string, port int) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.server.cfg.ConnectTimeout}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dctx, cancel := context.WithTimeout(ctx, c.server.cfg.ConnectTimeout)
	defer cancel()
	return dialer.DialContext(dctx, "tcp", addr)
}

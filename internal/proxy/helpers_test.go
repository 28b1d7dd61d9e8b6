package proxy

import (
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"fwdproxy/internal/auth"
	"fwdproxy/internal/config"
)

func testServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	return &Server{
		cfg:       cfg,
		validator: auth.New(cfg),
		logger:    zap.NewNop().Sugar(),
	}
}

// newTestConnection wires up an in-memory client socket (net.Pipe) paired
// with a *connection whose handle method can be driven directly, without an
// accept loop.
func newTestConnection(t *testing.T, cfg config.Config) (*connection, net.Conn) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	c := &connection{
		id:     "test",
		client: serverSide,
		server: testServer(t, cfg),
	}
	return c, clientSide
}

// startOrigin starts a TCP listener that hands each accepted connection to
// handle, returning the listener's host and port for routing.
func startOrigin(t *testing.T, handle func(net.Conn)) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handle(conn)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func baseConfig() config.Config {
	cfg := config.Default()
	cfg.ConnectTimeout = time.Second
	cfg.ReadTimeout = time.Second
	cfg.WriteTimeout = time.Second
	return cfg
}

func readAtLeast(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	total := 0
	for total < n {
		m, err := conn.Read(buf[total:])
		total += m
		if err != nil {
			break
		}
	}
	return buf[:total]
}

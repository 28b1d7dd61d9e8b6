package proxy

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"

	"fwdproxy/internal/classify"
)

func TestHandleConnectSuccess(t *testing.T) {
	host, port := startOrigin(t, func(conn net.Conn) {
		defer conn.Close()
		buf := make([]byte, 64)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		conn.Write(buf[:n]) // echo
	})

	c, client := newTestConnection(t, baseConfig())
	go func() {
		c.handleConnect(context.Background(), classify.Result{Kind: classify.ConnectTunnel, Host: host, Port: port})
	}()

	got := readAtLeast(t, client, len("HTTP/1.0 200 Connection Established\r\n\r\n"))
	if !strings.HasPrefix(string(got), "HTTP/1.0 200 Connection Established\r\n\r\n") {
		t.Fatalf("got %q, want 200 Connection Established prefix", got)
	}

	io.WriteString(client, "ping")
	echoed := readAtLeast(t, client, 4)
	if string(echoed) != "ping" {
		t.Errorf("echoed = %q, want ping", echoed)
	}
	client.Close()
}

func TestHandleConnectDialFailure(t *testing.T) {
	// Nothing listens on this port once closed; dial should fail quickly.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	c, client := newTestConnection(t, baseConfig())
	go func() {
		c.handleConnect(context.Background(), classify.Result{Kind: classify.ConnectTunnel, Host: "127.0.0.1", Port: addr.Port})
	}()

	got := string(readAtLeast(t, client, len("HTTP/1.0 502")))
	if !strings.HasPrefix(got, "HTTP/1.0 502") {
		t.Fatalf("got %q, want a 502 prefix on dial failure", got)
	}
	client.Close()
}

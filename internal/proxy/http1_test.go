package proxy

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"

	"fwdproxy/internal/classify"
)

func TestHandleHTTP1ForwardsInitialBufferVerbatim(t *testing.T) {
	received := make(chan []byte, 1)
	host, port := startOrigin(t, func(conn net.Conn) {
		defer conn.Close()
		buf := make([]byte, 4096)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		received <- append([]byte(nil), buf[:n]...)
		conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"))
	})

	initial := []byte("GET /ip HTTP/1.1\r\nHost: " + net.JoinHostPort(host, strconv.Itoa(port)) + "\r\n\r\n")

	c, client := newTestConnection(t, baseConfig())
	go c.handleHTTP1(context.Background(), classify.HTTP11, initial)

	select {
	case got := <-received:
		if string(got) != string(initial) {
			t.Errorf("upstream got %q, want verbatim %q", got, initial)
		}
	case <-clientClosed(client):
		t.Fatal("client connection closed before origin received anything")
	}

	resp := readAtLeast(t, client, len("HTTP/1.1 200 OK"))
	if !strings.HasPrefix(string(resp), "HTTP/1.1 200 OK") {
		t.Errorf("client got %q, want the origin's response relayed back", resp)
	}
	client.Close()
}

func TestHandleHTTP1DialFailureEchoesRequestVersion(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	initial := []byte("GET / HTTP/1.0\r\nHost: 127.0.0.1:" + strconv.Itoa(addr.Port) + "\r\n\r\n")

	c, client := newTestConnection(t, baseConfig())
	go c.handleHTTP1(context.Background(), classify.HTTP10, initial)

	got := string(readAtLeast(t, client, len("HTTP/1.0 502")))
	if !strings.HasPrefix(got, "HTTP/1.0 502") {
		t.Fatalf("got %q, want an HTTP/1.0-versioned 502", got)
	}
	client.Close()
}

func clientClosed(conn net.Conn) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		conn.Read(buf)
		close(ch)
	}()
	return ch
}

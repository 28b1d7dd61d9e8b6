// Package relay implements the bidirectional byte-pump shared by every
// forwarding handler in internal/proxy: two concurrent copiers that run
// until either direction ends, at which point both streams are closed.
package relay

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"fwdproxy/internal/config"
)

// bufferPool holds reusable 8 KiB buffers for the copy loops.
var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, config.RelayBufferBytes)
		return &buf
	},
}

func getBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

func putBuffer(buf *[]byte) {
	bufferPool.Put(buf)
}

// Options configures per-read/per-write deadlines for a Relay call.
// A zero Duration disables that deadline. TolerateTimeouts, when true,
// makes a read/write timeout retry its own direction rather than ending
// it, which the CONNECT handler uses to tolerate brief stalls on
// long-lived tunnels; every other handler leaves this false so a stalled
// direction terminates the relay promptly.
type Options struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	TolerateTimeouts bool
}

// Stats reports how many bytes moved in each direction before the relay
// ended, for access logging.
type Stats struct {
	AToB int64
	BToA int64
}

// Relay pumps bytes between a and b until either direction ends (EOF or
// error), then closes both connections and returns. No ordering is implied
// between the two directions.
func Relay(a, b net.Conn, opts Options) Stats {
	var stats Stats
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		stats.AToB = pump(b, a, opts)
		b.Close()
	}()

	go func() {
		defer wg.Done()
		stats.BToA = pump(a, b, opts)
		a.Close()
	}()

	wg.Wait()
	return stats
}

// pump copies from src to dst using a pooled buffer, honoring opts, until
// src returns EOF, a non-timeout error occurs on either side, or the dst
// write fails. It returns the number of bytes successfully written.
func pump(dst io.Writer, src net.Conn, opts Options) int64 {
	bufp := getBuffer()
	defer putBuffer(bufp)
	buf := *bufp

	var total int64
	for {
		if opts.ReadTimeout > 0 {
			src.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			written, werr := writeFull(dst, buf[:n], opts)
			total += written
			if werr != nil {
				return total
			}
		}
		if rerr != nil {
			if isTimeout(rerr) && opts.TolerateTimeouts {
				continue
			}
			return total
		}
	}
}

// writeFull writes all of data to dst, retrying a tolerated write timeout
// until the whole chunk is delivered rather than discarding whatever
// SetWriteDeadline cut off mid-write. A read from src was already
// committed to this chunk by the time pump calls this, so a dropped tail
// here would silently corrupt the relayed byte stream.
func writeFull(dst io.Writer, data []byte, opts Options) (int64, error) {
	var total int64
	for len(data) > 0 {
		if wdst, ok := dst.(net.Conn); ok && opts.WriteTimeout > 0 {
			wdst.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
		}
		written, err := dst.Write(data)
		total += int64(written)
		data = data[written:]
		if err != nil {
			if isTimeout(err) && opts.TolerateTimeouts && len(data) > 0 {
				continue
			}
			return total, err
		}
	}
	return total, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

package proxy

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"fwdproxy/internal/auth"
	"fwdproxy/internal/config"
)

// acceptPollInterval bounds how long Accept blocks before the loop
// re-checks ctx.Done, a periodic-deadline technique for making a blocking
// Accept cancellable.
const acceptPollInterval = 2 * time.Second

// Server binds a listener and dispatches each accepted connection to the
// connection dispatcher, bounding concurrency with an admission semaphore.
type Server struct {
	cfg       config.Config
	validator auth.Validator
	logger    *zap.SugaredLogger

	sem *semaphore.Weighted

	conns       sync.Map // map[*connection]struct{}
	activeCount int32
}

// NewServer constructs a Server from an already-validated Config.
func NewServer(cfg config.Config, logger *zap.SugaredLogger) *Server {
	return &Server{
		cfg:       cfg,
		validator: auth.New(cfg),
		logger:    logger,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConnections)),
	}
}

// ListenAndServe binds the configured listen address and serves
// connections until ctx is canceled. It returns early only if the listener
// cannot be bound; accept errors are logged and the loop continues.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("proxy: listen on %s: %w", s.cfg.ListenAddr(), err)
	}
	defer ln.Close()

	s.logger.Infow("listening",
		"addr", s.cfg.ListenAddr(),
		"auth_enabled", s.cfg.AuthEnabled(),
		"max_connections", s.cfg.MaxConnections,
	)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		if tcpLn, ok := ln.(*net.TCPListener); ok {
			tcpLn.SetDeadline(time.Now().Add(acceptPollInterval))
		}
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.logger.Errorw("accept failed", "error", err)
			continue
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			conn.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		c := s.newConnection(conn)
		go func() {
			defer s.sem.Release(1)
			defer s.remove(c)
			c.handle(ctx)
		}()
	}
}

// Shutdown closes every currently tracked connection. It does not wait for
// ListenAndServe to return; callers cancel the context passed to
// ListenAndServe for that.
func (s *Server) Shutdown() {
	s.conns.Range(func(key, _ any) bool {
		key.(*connection).close()
		return true
	})
}

func (s *Server) newConnection(client net.Conn) *connection {
	c := &connection{
		id:     uuid.NewString(),
		client: client,
		server: s,
	}
	s.conns.Store(c, struct{}{})
	n := atomic.AddInt32(&s.activeCount, 1)
	s.logger.Debugw("connection accepted", "id", c.id, "remote", client.RemoteAddr(), "active", n)
	return c
}

func (s *Server) remove(c *connection) {
	s.conns.Delete(c)
	n := atomic.AddInt32(&s.activeCount, -1)
	s.logger.Debugw("connection closed", "id", c.id, "active", n)
}

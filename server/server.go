// Package server implements the control-channel protocol, the transfer
// negotiator, and the dual-listener dispatcher described by the wire
// protocol in package wire.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gonzalop/drop/internal/ratelimit"
	"github.com/gonzalop/drop/internal/token"
	"github.com/gonzalop/drop/wire"
)

// Server is the dual-listener dispatcher: one listener for the JSON control
// protocol, one for data-channel transfers, both wrapped in the same TLS
// configuration and gated by the same session token.
type Server struct {
	controlAddr string
	dataAddr    string
	dataPort    int
	tlsConfig   *tls.Config
	logger      *zap.Logger
	limiter     *ratelimit.Limiter
	initialDir  string

	tok token.Token

	mu              sync.Mutex
	controlListener net.Listener
	dataListener    net.Listener
	conns           map[net.Conn]struct{}
	activeConns     atomic.Int32
	inShutdown      atomic.Bool

	ready chan struct{}

	reaper *cron.Cron
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger sets the structured logger used by the server and every
// worker it spawns. If not set, a no-op logger is used.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithBandwidthLimit caps data-channel throughput at bytesPerSecond,
// applied to both get and put directions.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(s *Server) { s.limiter = ratelimit.New(bytesPerSecond) }
}

// WithHomeDir overrides the directory each control session's cwd is seeded
// from. Production deployments leave this unset, which defaults every
// session to os.UserHomeDir() per spec.md §3; embedders and tests use it to
// avoid seeding sessions from the real process home directory.
func WithHomeDir(dir string) Option {
	return func(s *Server) { s.initialDir = dir }
}

// New constructs a Server bound to controlAddr/dataAddr (host:port strings)
// once Serve is called. Both ports are validated by the caller (see
// cmd/dropserver's Config) — New itself only wires dependencies.
func New(controlAddr, dataAddr string, dataPort int, tlsConfig *tls.Config, opts ...Option) (*Server, error) {
	if tlsConfig == nil {
		return nil, fmt.Errorf("server: tlsConfig must not be nil")
	}

	tok, err := token.New()
	if err != nil {
		return nil, fmt.Errorf("server: generate session token: %w", err)
	}

	s := &Server{
		controlAddr: controlAddr,
		dataAddr:    dataAddr,
		dataPort:    dataPort,
		tlsConfig:   tlsConfig,
		logger:      zap.NewNop(),
		tok:         tok,
		conns:       make(map[net.Conn]struct{}),
		ready:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Serve binds both listeners and runs the accept loops until ctx is
// canceled, at which point it closes both listeners and returns.
func (s *Server) Serve(ctx context.Context) error {
	controlLn, err := net.Listen("tcp", s.controlAddr)
	if err != nil {
		return fmt.Errorf("server: listen control %s: %w", s.controlAddr, err)
	}
	dataLn, err := net.Listen("tcp", s.dataAddr)
	if err != nil {
		controlLn.Close()
		return fmt.Errorf("server: listen data %s: %w", s.dataAddr, err)
	}

	s.mu.Lock()
	s.controlListener = controlLn
	s.dataListener = dataLn
	s.mu.Unlock()
	close(s.ready)

	s.reaper = cron.New()
	if _, err := s.reaper.AddFunc("*/5 * * * *", s.reap); err != nil {
		s.logger.Warn("reaper schedule did not parse, housekeeping disabled", zap.Error(err))
	} else {
		s.reaper.Start()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.acceptLoop(ctx, controlLn, s.serveControl)
	}()
	go func() {
		defer wg.Done()
		s.acceptLoop(ctx, dataLn, s.serveData)
	}()

	<-ctx.Done()
	s.inShutdown.Store(true)
	if s.reaper != nil {
		s.reaper.Stop()
	}
	controlLn.Close()
	dataLn.Close()
	wg.Wait()
	return nil
}

// Token returns the server's session token, for tests and for logging at
// startup; it is never persisted.
func (s *Server) Token() token.Token { return s.tok }

// Ready is closed once both listeners are bound, so callers (chiefly tests)
// can wait for ControlAddr/DataAddr to become valid before dialing.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// ControlAddr returns the bound control listener address. Only valid after
// Ready is closed.
func (s *Server) ControlAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controlListener.Addr()
}

// DataAddr returns the bound data listener address. Only valid after Ready
// is closed.
func (s *Server) DataAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataListener.Addr()
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, handle func(net.Conn)) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || s.inShutdown.Load() {
				return
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}

		s.trackConn(conn)
		go func() {
			defer s.untrackConn(conn)
			s.handshakeAndServe(conn, handle)
		}()
	}
}

func (s *Server) trackConn(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	s.activeConns.Add(1)
}

func (s *Server) untrackConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.activeConns.Add(-1)
}

// handshakeAndServe performs the TLS handshake inside the worker, under a
// bounded timeout, so a slow or malicious client cannot stall accept.
func (s *Server) handshakeAndServe(conn net.Conn, handle func(net.Conn)) {
	tlsConn := tls.Server(conn, s.tlsConfig)

	ctx, cancel := context.WithTimeout(context.Background(), wire.HandshakeTimeout)
	defer cancel()

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		s.logger.Warn("tls handshake failed", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
		tlsConn.Close()
		return
	}

	handle(tlsConn)
}

// reap logs a periodic snapshot of connection counts. Goroutines need no
// explicit joining (unlike the original Python server's OS-process workers, which the
// reaper originally existed to wait(2) on), so this is housekeeping for
// operators, not correctness — see DESIGN.md. untrackConn already removes
// closed connections from the bookkeeping map as soon as their worker
// exits, so there is nothing left for this sweep to prune.
func (s *Server) reap() {
	active := s.activeConns.Load()
	s.logger.Info("reaper_sweep", zap.Int32("active_connections", active))
}

// Package server implements the chatrelay server: the connection dispatcher,
// the per-session state machine, and the nickname/room registry.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Server is the chatrelay server. It owns the set of live connections and the
// registry of nicknames and rooms.
//
// Each connection gets its own reader goroutine, so mu serializes every state
// machine transition end to end, including its broadcast fan-out: "register
// nickname" can never interleave with "check availability", nor "join room"
// with "enumerate members".
type Server struct {
	cfg      Config
	metrics  *Metrics
	mu       sync.Mutex // guards registry, conns, and session send/close
	registry *Registry
	conns    map[uint64]*session // session ID -> live transport

	ln     net.Listener
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		metrics:  NewMetrics(),
		registry: NewRegistry(),
		conns:    make(map[uint64]*session),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the bound TCP listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start binds the listeners and launches the accept loops. It does not block.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.ln = ln
	slog.Info("chat relay listening", "addr", ln.Addr())

	go s.acceptLoop(ln)

	if err := s.startWS(); err != nil {
		_ = ln.Close()
		return err
	}
	s.startMetricsHTTP()
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				slog.Error("accept error", "err", err)
				continue
			}
		}
		go s.handleConn(newTCPLineConn(conn, s.cfg.MaxLineLen))
	}
}

// Run starts the server and blocks until a shutdown signal arrives.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	// Periodic metrics logging (every 60s)
	s.metrics.StartPeriodicLog(60*time.Second, s.ctx.Done())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	s.Shutdown()
	return nil
}

// Shutdown stops the listeners and closes all live connections.
func (s *Server) Shutdown() {
	s.cancel()
	if s.ln != nil {
		_ = s.ln.Close()
	}

	// Closing the transports wakes each reader, which funnels the session
	// through the normal teardown path.
	s.mu.Lock()
	open := make([]*session, 0, len(s.conns))
	for _, sess := range s.conns {
		open = append(open, sess)
	}
	s.mu.Unlock()
	for _, sess := range open {
		_ = sess.conn.Close()
	}
}

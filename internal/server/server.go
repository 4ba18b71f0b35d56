// Package server implements the Listener and Connection Driver
// components of spec.md §4.5 and §4.6: a TCP accept loop that hands each
// connection its own goroutine (bounded by Config.MaxClients, via
// sourcegraph/conc) driving the text protocol against one shared Store.
package server

import (
	"fmt"
	"net"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/ketralnis/gomemcached/internal/config"
	"github.com/ketralnis/gomemcached/internal/protocol"
	"github.com/ketralnis/gomemcached/internal/store"
)

// Server is the Listener: it owns the shared Store and fans accepted
// connections out to a bounded goroutine pool.
type Server struct {
	cfg    *config.Config
	store  *store.Store
	logger *zap.SugaredLogger
	parser *protocol.Parser

	listener net.Listener
	pool     *pool.Pool
	bufs     *bufPool
	stats    *stats
}

// New constructs a Server. store must already be sized per cfg.MaxBytes.
func New(cfg *config.Config, st *store.Store, logger *zap.SugaredLogger) *Server {
	return &Server{
		cfg:    cfg,
		store:  st,
		logger: logger,
		parser: protocol.NewParser(cfg.MaxLineLength),
		pool:   pool.New().WithMaxGoroutines(cfg.MaxClients),
		bufs:   newBufPool(),
		stats:  newStats(),
	}
}

// ListenAndServe binds the configured address and accepts connections
// until Shutdown closes the listener. It returns once every in-flight
// connection driver has exited.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.logger.Infow("listening", "addr", addr, "max_clients", s.cfg.MaxClients, "max_bytes", s.store.MaxBytes())

	for {
		nc, err := ln.Accept()
		if err != nil {
			if isClosedConnError(err) {
				break
			}
			s.logger.Warnw("accept error", "error", err)
			continue
		}
		s.configureConn(nc)

		// pool.Go blocks once MaxClients goroutines are already running,
		// applying backpressure directly on the accept loop — the
		// teacher's MaxClients field existed but was never enforced.
		s.pool.Go(func() {
			s.handleConnection(nc)
		})
	}

	s.pool.Wait()
	snap := s.stats.snapshot()
	s.logger.Infow("stopped", "total_ops", snap.TotalOps, "get_ops", snap.GetOps,
		"set_ops", snap.SetOps, "del_ops", snap.DelOps, "connections_served", snap.Connections)
	return nil
}

// Shutdown closes the listener so no new connections are accepted. Open
// connections are not closed: each driver keeps serving until its client
// quits or disconnects, a deadline passes, or an I/O error occurs, and
// ListenAndServe returns only after all of them have exited.
func (s *Server) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}
}

func (s *Server) configureConn(nc net.Conn) {
	tc, ok := nc.(*net.TCPConn)
	if !ok {
		return
	}
	if s.cfg.TCPKeepAlive {
		tc.SetKeepAlive(true)
		tc.SetKeepAlivePeriod(30 * time.Second)
	}
}

func isClosedConnError(err error) bool {
	ne, ok := err.(*net.OpError)
	return ok && ne.Err.Error() == "use of closed network connection"
}

// Package server implements the newline-delimited JSON protocol over TCP:
// one connection per client, strict request/response per connection, and
// best-effort push notifications to other connected peers.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/example/campus-rideshare/internal/application"
	"github.com/example/campus-rideshare/internal/observability"
	"github.com/example/campus-rideshare/internal/presence"
)

// Config carries the collaborators a Server needs.
type Config struct {
	ListenAddr string
	Users      *application.UserService
	Rides      *application.RideService
	Schedules  *application.ScheduleService
	Registry   *presence.Registry
	Logger     *slog.Logger
}

// Server accepts client connections and runs one session per connection.
type Server struct {
	listenAddr string
	users      *application.UserService
	rides      *application.RideService
	schedules  *application.ScheduleService
	registry   *presence.Registry
	logger     *slog.Logger

	ln net.Listener
	wg sync.WaitGroup

	mu       sync.Mutex
	sessions map[*session]struct{}
}

// New builds a server from its configuration.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		listenAddr: cfg.ListenAddr,
		users:      cfg.Users,
		rides:      cfg.Rides,
		schedules:  cfg.Schedules,
		registry:   cfg.Registry,
		logger:     logger,
		sessions:   make(map[*session]struct{}),
	}
}

// Listen binds the TCP listener. Serve calls it implicitly; tests call it
// first to learn the bound address when listening on port 0.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until the context is canceled, then closes every
// live session and waits for their workers to finish.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			return err
		}

		sess := newSession(conn, s)
		s.track(sess)
		observability.ConnectionsOpen.Inc()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer observability.ConnectionsOpen.Dec()
			defer s.untrack(sess)
			sess.run(ctx)
		}()
	}

	s.closeSessions()
	s.wg.Wait()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) track(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess] = struct{}{}
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess)
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sess := range s.sessions {
		sess.conn.Close()
	}
}

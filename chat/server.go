// Package chat implements the relay: one Session per client connection,
// a shared Registry of display names and a Bus that fans chat lines out to
// every other session.
//
// Wire protocol, newline-delimited text:
//
//	server -> client  "Welcome! Your ID is <id>. Use '/nick NAME' to set a nickname.\n"
//	client -> server  "/nick NAME\n"   sets the display name, nothing is broadcast
//	client -> server  "<text>\n"       broadcast to others as "<name>> <text>\n"
package chat

import (
	"net"

	"github.com/cyberinferno/go-chatrelay/bus"
	"github.com/cyberinferno/go-chatrelay/logger"
	"github.com/cyberinferno/go-chatrelay/registry"
	"github.com/cyberinferno/go-chatrelay/tcpserver"
	"github.com/cyberinferno/go-chatrelay/throttle"
)

// ErrServerClosed is returned by Serve after Stop.
var ErrServerClosed = tcpserver.ErrServerClosed

// Server wires the listener, registry and bus together.
type Server struct {
	cfg      Config
	log      logger.Logger
	registry *registry.Registry
	bus      *bus.Bus
	throttle *throttle.Throttle
	tcp      *tcpserver.TCPServer
}

// NewServer builds a relay from cfg. Invalid values fall back to defaults.
//
// Parameters:
//   - cfg: Relay settings
//   - log: Logger for server and session events
//
// Returns:
//   - A Server ready for Start
func NewServer(cfg Config, log logger.Logger) *Server {
	cfg = cfg.sanitized()
	s := &Server{
		cfg:      cfg,
		log:      log,
		registry: registry.New(),
		bus:      bus.New(cfg.BusCapacity),
		throttle: throttle.New(cfg.ReconnectCooldown),
	}

	s.tcp = tcpserver.New("chat", cfg.Addr, s.newSession, log.With(logger.Field{Key: "component", Value: "listener"}))
	s.tcp.ContinueOnAcceptError = cfg.ContinueOnAcceptError
	if s.throttle.Enabled() {
		s.tcp.Admit = s.admit
	}

	return s
}

// Start binds the listen address. A failure here is fatal for the relay.
func (s *Server) Start() error {
	return s.tcp.Start()
}

// Serve accepts connections until Stop, or until an accept error when
// ContinueOnAcceptError is false.
func (s *Server) Serve() error {
	return s.tcp.Serve()
}

// Stop closes the listener, every session connection and the bus. Sessions
// then run their normal cleanup; use Wait to block until they are done.
func (s *Server) Stop() {
	s.tcp.Stop()
	s.bus.Close()
}

// Wait blocks until every session has finished.
func (s *Server) Wait() {
	s.tcp.Wait()
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.tcp.ListenAddr()
}

// Registry returns the shared name registry.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Sessions returns the number of running sessions.
func (s *Server) Sessions() int {
	return s.tcp.SessionCount()
}

// newSession registers the default name before the session goroutine
// starts, so the session always finds its own entry.
func (s *Server) newSession(id uint32, conn net.Conn) tcpserver.Session {
	s.registry.Insert(id, registry.DefaultName(id))
	return NewSession(id, conn, s.registry, s.bus, s.cfg, s.log)
}

func (s *Server) admit(conn net.Conn) bool {
	host := conn.RemoteAddr().String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	if s.throttle.Allow(host) {
		return true
	}

	s.log.Info("connection refused by reconnect cooldown", logger.Field{Key: "remote_addr", Value: conn.RemoteAddr().String()})
	return false
}

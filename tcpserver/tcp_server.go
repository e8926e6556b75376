// Package tcpserver implements the listener loop: it binds one TCP address,
// accepts connections, numbers them and runs one session goroutine per
// connection.
package tcpserver

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/go-chatrelay/idgenerator"
	"github.com/cyberinferno/go-chatrelay/logger"
	"github.com/cyberinferno/go-chatrelay/safemap"
)

var (
	// ErrServerRunning is returned by Start when the server is already listening.
	ErrServerRunning = errors.New("server already running")

	// ErrServerClosed is returned by Serve after Stop has been called.
	ErrServerClosed = errors.New("server closed")

	errNotStarted = errors.New("server not started")
)

const acceptRetryDelay = 50 * time.Millisecond

// NewSessionFunc creates the Session for an accepted connection. It is called
// from the accept goroutine before the session goroutine is started, so any
// state it records is visible to Handle.
type NewSessionFunc func(id uint32, conn net.Conn) Session

// TCPServer accepts connections on Addr and delegates each one to a session
// created by NewSession.
type TCPServer struct {
	Logger     logger.Logger
	Name       string
	Addr       string
	NewSession NewSessionFunc

	// Admit, when set, is consulted before an ID is assigned. Rejected
	// connections are closed and consume no ID.
	Admit func(conn net.Conn) bool

	// ContinueOnAcceptError makes Serve log accept failures and keep going
	// instead of returning them.
	ContinueOnAcceptError bool

	IdGenerator *idgenerator.IdGenerator

	listener net.Listener
	sessions *safemap.SafeMap[uint32, Session]
	running  atomic.Bool
	wg       sync.WaitGroup
}

// New returns a TCPServer with an empty session table and IDs starting at 1.
//
// Parameters:
//   - name: Server name used in log messages and errors
//   - addr: The "host:port" to listen on
//   - newSession: Factory for per-connection sessions
//   - log: Logger for server events
//
// Returns:
//   - A TCPServer ready for Start
func New(name, addr string, newSession NewSessionFunc, log logger.Logger) *TCPServer {
	return &TCPServer{
		Logger:      log,
		Name:        name,
		Addr:        addr,
		NewSession:  newSession,
		IdGenerator: idgenerator.NewIdGenerator(0),
		sessions:    safemap.NewSafeMap[uint32, Session](),
	}
}

// Start binds Addr. It does not accept connections; call Serve for that.
//
// Returns:
//   - ErrServerRunning if already started, or the wrapped listen error
func (s *TCPServer) Start() error {
	if s.running.Load() {
		s.Logger.Error("server already running")
		return fmt.Errorf("server %s: %w", s.Name, ErrServerRunning)
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		s.Logger.Error("server failed to start", logger.Field{Key: "error", Value: err})
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	s.listener = ln
	s.running.Store(true)

	s.Logger.Info(fmt.Sprintf("%s server started", s.Name), logger.Field{Key: "addr", Value: ln.Addr().String()})
	return nil
}

// Serve runs the accept loop until Stop is called or, unless
// ContinueOnAcceptError is set, Accept fails. Connections are numbered in
// accept order.
//
// Returns:
//   - ErrServerClosed after Stop, or the wrapped accept error
func (s *TCPServer) Serve() error {
	if s.listener == nil {
		return fmt.Errorf("server %s: %w", s.Name, errNotStarted)
	}

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return ErrServerClosed
			}

			s.Logger.Error(fmt.Sprintf("%s server accept error", s.Name), logger.Field{Key: "error", Value: err})
			if !s.ContinueOnAcceptError {
				return fmt.Errorf("server %s accept failed: %w", s.Name, err)
			}

			time.Sleep(acceptRetryDelay)
			continue
		}

		if s.Admit != nil && !s.Admit(conn) {
			_ = conn.Close()
			continue
		}

		s.spawn(conn)
	}
}

func (s *TCPServer) spawn(conn net.Conn) {
	id := s.IdGenerator.Next()
	s.Logger.Info("new connection",
		logger.Field{Key: "session_id", Value: id},
		logger.Field{Key: "remote_addr", Value: conn.RemoteAddr().String()},
	)

	session := s.NewSession(id, conn)
	s.sessions.Store(id, session)
	if !s.running.Load() {
		_ = session.Close()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sessions.Delete(id)
		session.Handle()
	}()
}

// Stop closes the listener and every live session. Safe to call when the
// server is not running.
func (s *TCPServer) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		s.Logger.Info(fmt.Sprintf("%s server not running", s.Name))
		return
	}

	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.sessions.Range(func(_ uint32, session Session) bool {
		_ = session.Close()
		return true
	})

	s.Logger.Info(fmt.Sprintf("%s server stopped", s.Name))
}

// Wait blocks until every session goroutine has returned.
func (s *TCPServer) Wait() {
	s.wg.Wait()
}

// Listening reports whether Start succeeded and Stop has not been called.
func (s *TCPServer) Listening() bool {
	return s.running.Load()
}

// ListenAddr returns the bound address, or nil before Start.
func (s *TCPServer) ListenAddr() net.Addr {
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// GetSession returns the live session with the given id.
//
// Parameters:
//   - id: The session ID to look up
//
// Returns:
//   - The session and true if found, or nil and false otherwise
func (s *TCPServer) GetSession(id uint32) (Session, bool) {
	return s.sessions.Load(id)
}

// SessionCount returns the number of sessions whose Handle has not returned.
func (s *TCPServer) SessionCount() int {
	return s.sessions.Len()
}

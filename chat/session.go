package chat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/go-chatrelay/bus"
	"github.com/cyberinferno/go-chatrelay/logger"
	"github.com/cyberinferno/go-chatrelay/registry"
)

// State is the lifecycle position of a Session.
type State int32

const (
	StateNew      State = iota // Created, Handle not yet running
	StateGreeting              // Sending the welcome line
	StateActive                // Relaying client lines and broadcasts
	StateClosing               // Cleaning up
	StateClosed                // Finished
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateGreeting:
		return "Greeting"
	case StateActive:
		return "Active"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

type readResult struct {
	line string
	err  error
}

// Session serves one client connection. It reads newline-terminated lines
// from the client and relays broadcasts from other sessions back to it.
type Session struct {
	id       uint32
	conn     net.Conn
	reader   *bufio.Reader
	registry *registry.Registry
	bus      *bus.Bus
	sub      *bus.Subscription
	log      logger.Logger

	echoNick     bool
	writeTimeout time.Duration

	state     atomic.Int32
	writeMu   sync.Mutex
	writer    *bufio.Writer
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// NewSession creates a Session and subscribes it to b, so every message
// published from now on is queued for it. The caller must have inserted id
// into reg already.
//
// Parameters:
//   - id: The session ID
//   - conn: The accepted connection; the session owns it from now on
//   - reg: Shared registry holding the session's display name
//   - b: Shared broadcast bus
//   - cfg: Relay settings (EchoNick, WriteTimeout)
//   - log: Logger; session fields are added here
//
// Returns:
//   - The new Session; run Handle to serve it
func NewSession(id uint32, conn net.Conn, reg *registry.Registry, b *bus.Bus, cfg Config, log logger.Logger) *Session {
	return &Session{
		id:           id,
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writer:       bufio.NewWriter(conn),
		registry:     reg,
		bus:          b,
		sub:          b.Subscribe(),
		log:          log.With(logger.Field{Key: "session_id", Value: id}),
		echoNick:     cfg.EchoNick,
		writeTimeout: cfg.WriteTimeout,
		done:         make(chan struct{}),
	}
}

// ID implements tcpserver.Session.
func (s *Session) ID() uint32 {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Handle greets the client and then relays until the client disconnects,
// a write fails or the bus closes. Whatever the cause, only this session
// ends: its registry entry is removed and its connection closed.
func (s *Session) Handle() {
	defer s.cleanup()

	s.setState(StateGreeting)
	if err := s.Send([]byte(Welcome(s.id))); err != nil {
		s.log.Warn("failed to send welcome", logger.Field{Key: "error", Value: err})
		return
	}

	s.setState(StateActive)
	if err := s.run(); err != nil {
		s.log.Warn("session ended with error", logger.Field{Key: "error", Value: err})
	}
}

// Close implements tcpserver.Session. It closes the connection, which makes
// Handle finish its cleanup.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})

	return s.closeErr
}

// Send writes data to the client and flushes it. Safe for concurrent use.
//
// Parameters:
//   - data: The bytes to send
//
// Returns:
//   - An error if the write, flush or deadline setup failed
func (s *Session) Send(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}

	if _, err := s.writer.Write(data); err != nil {
		return err
	}

	return s.writer.Flush()
}

// HandleLine applies one client line: a nickname command updates the
// registry, anything else is rendered with the current name and published.
//
// Parameters:
//   - line: The line as received, including its terminator if any
//
// Returns:
//   - An error if the session has no registry entry or the echo write failed
func (s *Session) HandleLine(line string) error {
	if nick, ok := ParseNick(line); ok {
		s.registry.Insert(s.id, nick)
		s.log.Debug("nickname changed", logger.Field{Key: "nick", Value: nick})
		if s.echoNick {
			return s.Send([]byte(NickAck(nick)))
		}

		return nil
	}

	name, err := s.registry.Get(s.id)
	if err != nil {
		return err
	}

	s.bus.Publish(bus.Message{Origin: s.id, Text: Render(name, line)})
	return nil
}

// run is the active loop. Each iteration handles either one client line or
// one bus event, whichever is ready. The reader goroutine waits for a line
// to be fully handled before reading the next one.
func (s *Session) run() error {
	lines := make(chan readResult)
	resume := make(chan struct{})
	go s.readLines(lines, resume)

	for {
		select {
		case r := <-lines:
			if r.err != nil {
				if errors.Is(r.err, io.EOF) || errors.Is(r.err, net.ErrClosed) {
					return nil
				}

				return fmt.Errorf("read from client: %w", r.err)
			}

			if err := s.HandleLine(r.line); err != nil {
				return err
			}

			resume <- struct{}{}
		case <-s.sub.Ready():
			if err := s.relayNext(); err != nil {
				if errors.Is(err, bus.ErrClosed) {
					s.log.Info("broadcast bus closed")
					return nil
				}

				return err
			}
		}
	}
}

func (s *Session) readLines(lines chan<- readResult, resume <-chan struct{}) {
	for {
		line, err := s.reader.ReadString('\n')
		if line != "" {
			select {
			case lines <- readResult{line: line}:
			case <-s.done:
				return
			}

			select {
			case <-resume:
			case <-s.done:
				return
			}
		}

		if err != nil {
			select {
			case lines <- readResult{err: err}:
			case <-s.done:
			}

			return
		}
	}
}

// relayNext delivers at most one bus message to the client. Messages the
// session published itself are dropped.
func (s *Session) relayNext() error {
	msg, err := s.sub.TryRecv()
	if err != nil {
		var lag *bus.LagError
		switch {
		case errors.Is(err, bus.ErrEmpty):
			return nil
		case errors.As(err, &lag):
			s.log.Warn("session lagged behind broadcasts", logger.Field{Key: "skipped", Value: lag.Skipped})
			return nil
		default:
			return fmt.Errorf("receive broadcast: %w", err)
		}
	}

	if msg.Origin == s.id {
		return nil
	}

	if err := s.Send([]byte(msg.Text)); err != nil {
		return fmt.Errorf("relay to client: %w", err)
	}

	return nil
}

func (s *Session) cleanup() {
	s.setState(StateClosing)
	close(s.done)
	s.sub.Close()
	s.registry.Remove(s.id)
	s.log.Info("client disconnected")
	_ = s.Close()
	s.setState(StateClosed)
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

// Package chatclient is a line-oriented TCP client for the chat relay. It
// delivers every received line, terminator included, to a registered
// handler in arrival order and can reconnect on its own when the relay
// drops the connection.
package chatclient

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/backoff"
)

// State represents the current state of the client connection.
type State int

const (
	Disconnected State = iota // Not connected and not trying to
	Connecting                // Dial in progress
	Connected                 // Connected to the relay
	Reconnecting              // Waiting to redial after a lost connection
	Closed                    // Closed for good
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

var (
	// ErrNotConnected is returned by SendLine while no connection is up.
	ErrNotConnected = errors.New("not connected")

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("client is closed")

	// ErrAlreadyConnected is returned by Connect when a connection is up or being dialed.
	ErrAlreadyConnected = errors.New("already connected or connecting")
)

// StateEvent is passed to the OnState handler on every state change.
type StateEvent struct {
	State     State
	Address   string
	Timestamp time.Time
	Error     error // non-nil when the change was caused by an error
}

// LineHandler receives one line from the relay, including its trailing
// newline (absent only for a final partial line).
type LineHandler func(line string)

// StateHandler receives state changes.
type StateHandler func(event StateEvent)

// Config holds client settings.
type Config struct {
	// Address is the relay "host:port".
	Address string
	// AutoReconnect redials with exponential backoff when the connection is lost.
	AutoReconnect bool
	// MinReconnectDelay and MaxReconnectDelay bound the backoff between redials.
	MinReconnectDelay time.Duration
	MaxReconnectDelay time.Duration
	// ConnectionTimeout bounds each dial.
	ConnectionTimeout time.Duration
	// WriteTimeout bounds each SendLine; 0 means no deadline.
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config for address without auto-reconnect.
//
// Parameters:
//   - address: The relay "host:port"
//
// Returns:
//   - A Config with reconnect delays 500ms..10s, dial timeout 10s and write timeout 10s
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		MinReconnectDelay: 500 * time.Millisecond,
		MaxReconnectDelay: 10 * time.Second,
		ConnectionTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Client is a chat relay client. Handlers run on the client's read
// goroutine, so lines arrive in order; a handler must not call Close.
type Client struct {
	config  Config
	backoff *backoff.Backoff

	mu      sync.RWMutex
	conn    net.Conn
	state   State
	closed  bool
	onLine  LineHandler
	onState StateHandler

	writeMu sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New creates a Client in the Disconnected state.
func New(config Config) *Client {
	return &Client{
		config: config,
		backoff: &backoff.Backoff{
			Min:    config.MinReconnectDelay,
			Max:    config.MaxReconnectDelay,
			Factor: 2,
			Jitter: true,
		},
		state: Disconnected,
		stop:  make(chan struct{}),
	}
}

// OnLine registers the line handler, replacing any previous one.
func (c *Client) OnLine(handler LineHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLine = handler
}

// OnState registers the state handler, replacing any previous one.
func (c *Client) OnState(handler StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = handler
}

// Connect dials the relay and starts reading.
//
// Returns:
//   - nil on success, ErrClosed, ErrAlreadyConnected or the dial error
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == Connected || c.state == Connecting || c.state == Reconnecting {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	conn, err := c.dial()
	if err != nil {
		c.setState(Disconnected, err)
		return err
	}

	c.wg.Add(1)
	go c.readLoop(conn)
	return nil
}

// SendLine writes line to the relay, appending "\n" if it is missing.
//
// Parameters:
//   - line: The text to send, e.g. "hello" or "/nick Alice"
//
// Returns:
//   - ErrNotConnected while disconnected, or the write error
func (c *Client) SendLine(line string) error {
	c.mu.RLock()
	conn, state := c.conn, c.state
	c.mu.RUnlock()

	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}
	}

	if _, err := conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("send line: %w", err)
	}

	return nil
}

// SetNick sends a nickname command.
func (c *Client) SetNick(name string) error {
	return c.SendLine("/nick " + name)
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Close closes the connection and stops reconnecting. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	close(c.stop)
	c.wg.Wait()
	c.setState(Closed, nil)
	return nil
}

func (c *Client) dial() (net.Conn, error) {
	c.setState(Connecting, nil)

	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}
	conn, err := dialer.Dial("tcp", c.config.Address)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return nil, ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(Connected, nil)
	return conn, nil
}

func (c *Client) readLoop(conn net.Conn) {
	defer c.wg.Done()

	for conn != nil {
		err := c.readLines(conn)
		if c.isClosed() {
			return
		}

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()

		if !c.config.AutoReconnect {
			c.setState(Disconnected, err)
			return
		}

		c.setState(Reconnecting, err)
		conn = c.redial()
	}
}

func (c *Client) readLines(conn net.Conn) error {
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			c.emitLine(line)
		}

		if err != nil {
			return err
		}
	}
}

// redial retries until a connection is up or the client is closed.
func (c *Client) redial() net.Conn {
	for {
		select {
		case <-c.stop:
			return nil
		case <-time.After(c.backoff.Duration()):
		}

		conn, err := c.dial()
		if err == nil {
			c.backoff.Reset()
			return conn
		}

		if errors.Is(err, ErrClosed) {
			return nil
		}

		c.setState(Reconnecting, err)
	}
}

func (c *Client) setState(state State, err error) {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return
	}
	c.state = state
	handler := c.onState
	c.mu.Unlock()

	if handler != nil {
		handler(StateEvent{
			State:     state,
			Address:   c.config.Address,
			Timestamp: time.Now(),
			Error:     err,
		})
	}
}

func (c *Client) emitLine(line string) {
	c.mu.RLock()
	handler := c.onLine
	c.mu.RUnlock()

	if handler != nil {
		handler(line)
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

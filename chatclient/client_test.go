package chatclient

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-chatrelay/chat"
	"github.com/cyberinferno/go-chatrelay/logger"
)

func startRelay(t *testing.T) string {
	t.Helper()
	srv := chat.NewServer(chat.Config{Addr: "127.0.0.1:0"}, logger.NewNopLogger())
	require.NoError(t, srv.Start())
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() {
		srv.Stop()
		srv.Wait()
	})

	return srv.Addr().String()
}

func newCollectingClient(t *testing.T, cfg Config) (*Client, <-chan string) {
	t.Helper()
	lines := make(chan string, 32)
	c := New(cfg)
	c.OnLine(func(line string) { lines <- line })
	t.Cleanup(func() { _ = c.Close() })
	return c, lines
}

func next(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case line := <-lines:
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("no line received")
		return ""
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Disconnected", Disconnected.String())
	assert.Equal(t, "Connecting", Connecting.String())
	assert.Equal(t, "Connected", Connected.String())
	assert.Equal(t, "Reconnecting", Reconnecting.String())
	assert.Equal(t, "Closed", Closed.String())
	assert.Equal(t, "Unknown", State(99).String())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("127.0.0.1:7711")
	assert.Equal(t, "127.0.0.1:7711", cfg.Address)
	assert.False(t, cfg.AutoReconnect)
	assert.Equal(t, 500*time.Millisecond, cfg.MinReconnectDelay)
	assert.Equal(t, 10*time.Second, cfg.MaxReconnectDelay)
}

func TestClient_chat_through_relay(t *testing.T) {
	addr := startRelay(t)

	alice, aliceLines := newCollectingClient(t, DefaultConfig(addr))
	require.NoError(t, alice.Connect())
	assert.Equal(t, chat.Welcome(1), next(t, aliceLines))
	assert.Equal(t, Connected, alice.State())

	bob, bobLines := newCollectingClient(t, DefaultConfig(addr))
	require.NoError(t, bob.Connect())
	assert.Equal(t, chat.Welcome(2), next(t, bobLines))

	require.NoError(t, alice.SetNick("Alice"))
	require.NoError(t, alice.SendLine("hello"))
	assert.Equal(t, "Alice> hello\n", next(t, bobLines))

	require.NoError(t, bob.SendLine("hi Alice\n"))
	assert.Equal(t, "user:2> hi Alice\n", next(t, aliceLines))
}

func TestClient_SendLine_requires_connection(t *testing.T) {
	c, _ := newCollectingClient(t, DefaultConfig("127.0.0.1:1"))
	assert.ErrorIs(t, c.SendLine("hi"), ErrNotConnected)
}

func TestClient_Connect(t *testing.T) {
	t.Run("second connect is rejected", func(t *testing.T) {
		c, lines := newCollectingClient(t, DefaultConfig(startRelay(t)))
		require.NoError(t, c.Connect())
		next(t, lines)
		assert.ErrorIs(t, c.Connect(), ErrAlreadyConnected)
	})

	t.Run("dial failure leaves client disconnected", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		require.NoError(t, ln.Close())

		cfg := DefaultConfig(addr)
		cfg.ConnectionTimeout = time.Second
		c, _ := newCollectingClient(t, cfg)
		assert.Error(t, c.Connect())
		assert.Equal(t, Disconnected, c.State())
	})
}

func TestClient_Close(t *testing.T) {
	c, lines := newCollectingClient(t, DefaultConfig(startRelay(t)))
	require.NoError(t, c.Connect())
	next(t, lines)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, Closed, c.State())
	assert.ErrorIs(t, c.Connect(), ErrClosed)
	assert.ErrorIs(t, c.SendLine("x"), ErrNotConnected)
}

// flakyRelay accepts connections and writes one numbered line to each
// before hanging up.
func flakyRelay(t *testing.T, greetings ...string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for _, greeting := range greetings {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_, _ = conn.Write([]byte(greeting))
			_ = conn.Close()
		}
	}()

	return ln.Addr().String()
}

func TestClient_connection_loss_without_reconnect(t *testing.T) {
	c, lines := newCollectingClient(t, DefaultConfig(flakyRelay(t, "only\n")))

	var mu sync.Mutex
	var states []State
	c.OnState(func(e StateEvent) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, e.State)
	})

	require.NoError(t, c.Connect())
	assert.Equal(t, "only\n", next(t, lines))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{Connecting, Connected, Disconnected}, states)
	assert.Equal(t, Disconnected, c.State())
}

func TestClient_AutoReconnect(t *testing.T) {
	cfg := DefaultConfig(flakyRelay(t, "one\n", "two\n"))
	cfg.AutoReconnect = true
	cfg.MinReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 50 * time.Millisecond
	c, lines := newCollectingClient(t, cfg)

	reconnecting := make(chan struct{}, 8)
	c.OnState(func(e StateEvent) {
		if e.State == Reconnecting {
			select {
			case reconnecting <- struct{}{}:
			default:
			}
		}
	})

	require.NoError(t, c.Connect())
	assert.Equal(t, "one\n", next(t, lines))
	assert.Equal(t, "two\n", next(t, lines))

	select {
	case <-reconnecting:
	case <-time.After(2 * time.Second):
		t.Fatal("no reconnect attempt observed")
	}
}

func TestClient_partial_final_line(t *testing.T) {
	c, lines := newCollectingClient(t, DefaultConfig(flakyRelay(t, "no newline")))
	require.NoError(t, c.Connect())
	assert.Equal(t, "no newline", next(t, lines))
}

package chat

import (
	"time"

	"github.com/cyberinferno/go-chatrelay/bus"
)

// DefaultAddr is the listen address used when none is configured. Port 7711
// is the stable contract; the host part is a deployment choice.
const DefaultAddr = "0.0.0.0:7711"

// Config holds the relay settings.
type Config struct {
	// Addr is the "host:port" to listen on.
	Addr string
	// BusCapacity is how many undelivered messages each session may queue
	// before the oldest are dropped.
	BusCapacity int
	// EchoNick sends "You are now known as <name>." back to a session that
	// changes its nickname. Other sessions never see it.
	EchoNick bool
	// WriteTimeout bounds each write to a client; 0 means no deadline.
	WriteTimeout time.Duration
	// ContinueOnAcceptError logs accept failures and keeps accepting instead
	// of stopping the server.
	ContinueOnAcceptError bool
	// ReconnectCooldown refuses a host that connected less than this long
	// ago; 0 disables the check.
	ReconnectCooldown time.Duration
}

// DefaultConfig returns the relay defaults: listen on DefaultAddr, queue 10
// messages per session, no nick echo, no write deadline, fatal accept
// errors and no reconnect cooldown.
func DefaultConfig() Config {
	return Config{
		Addr:        DefaultAddr,
		BusCapacity: bus.DefaultCapacity,
	}
}

func (c Config) sanitized() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}

	if c.BusCapacity <= 0 {
		c.BusCapacity = bus.DefaultCapacity
	}

	if c.WriteTimeout < 0 {
		c.WriteTimeout = 0
	}

	return c
}

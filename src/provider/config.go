package provider

import (
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultSendAttempts is the number of times Send tries to claim a sequence
// number before giving up with PutFailed.
const DefaultSendAttempts = 3

// Config configures a Provider.
type Config struct {
	// EnforceTimeOrder rejects inbound messages whose time does not advance
	// past the author's previous message. Disable it only where clocks are
	// known to be unreliable.
	EnforceTimeOrder bool

	// SendAttempts bounds the sequencing retries of Send.
	SendAttempts int

	// MinBudget is the execution time a send attempt needs. Attempts are not
	// started with less time left on the context.
	MinBudget time.Duration

	// Clock stamps envelopes. Tests use a mock.
	Clock clock.Clock
}

// NewDefaultConfig ...
func NewDefaultConfig() *Config {
	return &Config{
		EnforceTimeOrder: true,
		SendAttempts:     DefaultSendAttempts,
		MinBudget:        time.Second,
		Clock:            clock.New(),
	}
}

func (c *Config) clock() clock.Clock {
	if c.Clock == nil {
		return clock.New()
	}
	return c.Clock
}

func (c *Config) sendAttempts() int {
	if c.SendAttempts < 1 {
		return DefaultSendAttempts
	}
	return c.SendAttempts
}

func nowMillis(c clock.Clock) int64 {
	return c.Now().UnixNano() / int64(time.Millisecond)
}

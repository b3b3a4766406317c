package config

import (
	"fmt"
	"strings"
	"time"
)

type SessionConfig struct {
	IdleTimeout   time.Duration `koanf:"idletimeout"`
	SweepInterval time.Duration `koanf:"sweepinterval"`
}

const defaultSessionIdleTimeout = 30 * time.Minute
const defaultSessionSweepInterval = time.Minute

// String returns a string representation of the SessionConfig.
func (c *SessionConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Session ---\n")
	b.WriteString(fmt.Sprintf("  idletimeout: %s\n", c.IdleTimeout))
	b.WriteString(fmt.Sprintf("  sweepinterval: %s\n", c.SweepInterval))
	return b.String()
}

func (c *SessionConfig) Validate() error {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultSessionIdleTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSessionSweepInterval
	}
	return nil
}

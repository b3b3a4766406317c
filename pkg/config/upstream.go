package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// UpstreamConfig describes an HTTP service this application calls.
type UpstreamConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// String returns a string representation of the upstream configuration.
func (c *UpstreamConfig) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("  url: %s\n", c.URL))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	return b.String()
}

func (c *UpstreamConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("upstream URL is not configured")
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid upstream URL: %q", c.URL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("upstream timeout must be greater than 0: %s", c.URL)
	}
	return nil
}

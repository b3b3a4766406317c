package config

import (
	"fmt"
	"strings"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/config/configloader"
)

var _ configloader.Validator = (*Config)(nil)

type Config struct {
	HTTPServer     config.HTTPConfig           `koanf:"server"`
	GrpcServer     config.GrpcServerConfig     `koanf:"grpc"`
	Log            config.LogConfig            `koanf:"log"`
	PProf          config.PProfConfig          `koanf:"pprof"`
	Shutdown       config.ShutdownConfig       `koanf:"shutdown"`
	Storage        config.StorageConfig        `koanf:"storage"`
	Database       config.DatabaseConfig       `koanf:"database"`
	Nats           config.NATSConfig           `koanf:"nats"`
	Orders         config.UpstreamConfig       `koanf:"orders"`
	Catalog        config.UpstreamConfig       `koanf:"catalog"`
	CircuitBreaker config.CircuitBreakerConfig `koanf:"circuitbreaker"`
	Pricing        config.PricingConfig        `koanf:"pricing"`
	Session        config.SessionConfig        `koanf:"session"`
	IdP            config.IdP                  `koanf:"idp"`
	Telemetry      config.TelemetryConfig      `koanf:"telemetry"`
}

func (c *Config) String() string {
	var b strings.Builder
	b.WriteString(c.HTTPServer.String())
	b.WriteString(c.GrpcServer.String())
	b.WriteString(c.Storage.String())
	if c.Storage.Driver == config.StorageDriverPostgres {
		b.WriteString(c.Database.String())
	}
	b.WriteString(c.Nats.String())

	b.WriteString("\n--- External Services ---\n")
	b.WriteString("orders:\n")
	b.WriteString(c.Orders.String())
	b.WriteString("catalog:\n")
	b.WriteString(c.Catalog.String())
	b.WriteString(c.CircuitBreaker.String())

	b.WriteString(c.Pricing.String())
	b.WriteString(c.Session.String())

	b.WriteString("\n--- Observability & Logging ---\n")
	b.WriteString(fmt.Sprintf("  log.level: %s\n", c.Log.Level))
	b.WriteString(fmt.Sprintf("  idp.enabled: %t\n", c.IdP.Enabled))
	b.WriteString(c.PProf.String())
	b.WriteString(c.Telemetry.String())
	b.WriteString(c.Shutdown.String())
	return b.String()
}

// Validate checks every section and the dependencies between them.
func (c *Config) Validate() error {
	validators := []configloader.Validator{
		&c.HTTPServer, &c.GrpcServer, &c.Log, &c.PProf, &c.Shutdown, &c.Storage,
		&c.Nats, &c.CircuitBreaker, &c.Pricing, &c.Session, &c.IdP, &c.Telemetry,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if err := c.Orders.Validate(); err != nil {
		return fmt.Errorf("orders: %w", err)
	}
	if err := c.Catalog.Validate(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	switch c.Storage.Driver {
	case config.StorageDriverPostgres:
		if err := c.Database.Validate(); err != nil {
			return err
		}
	case config.StorageDriverNats:
		if !c.Nats.Enabled {
			return fmt.Errorf("storage driver %q requires nats.enabled", c.Storage.Driver)
		}
	}
	return nil
}

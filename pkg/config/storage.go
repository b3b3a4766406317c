package config

import (
	"fmt"
	"strings"
)

// Storage drivers understood by StorageConfig.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	StorageDriverNats     = "nats"
)

// StorageConfig selects the durable medium used for cart and wishlist collections.
type StorageConfig struct {
	Driver string `koanf:"driver"`
	// Bucket is the JetStream key-value bucket, used by the nats driver only.
	Bucket string `koanf:"bucket"`
	// Migrate applies the embedded schema migrations on startup, postgres driver only.
	Migrate bool `koanf:"migrate"`
}

// String returns a string representation of the storage configuration.
func (c *StorageConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Storage ---\n")
	b.WriteString(fmt.Sprintf("  driver: %s\n", c.Driver))
	b.WriteString(fmt.Sprintf("  bucket: %s\n", c.Bucket))
	b.WriteString(fmt.Sprintf("  migrate: %t\n", c.Migrate))
	return b.String()
}

func (c *StorageConfig) Validate() error {
	switch c.Driver {
	case StorageDriverMemory, StorageDriverPostgres:
	case StorageDriverNats:
		if c.Bucket == "" {
			return fmt.Errorf("storage bucket is required for the nats driver")
		}
	default:
		return fmt.Errorf("unsupported storage driver: %q", c.Driver)
	}
	return nil
}

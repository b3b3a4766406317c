package config

import (
	"fmt"
	"strings"
)

// PricingConfig holds the display pricing parameters for order totals.
// Values are decimal strings, e.g. "0.10" and "10.00".
type PricingConfig struct {
	TaxRate      string `koanf:"taxrate"`
	FlatShipping string `koanf:"flatshipping"`
}

// String returns a string representation of the pricing configuration.
func (c *PricingConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Pricing ---\n")
	b.WriteString(fmt.Sprintf("  taxrate: %s\n", c.TaxRate))
	b.WriteString(fmt.Sprintf("  flatshipping: %s\n", c.FlatShipping))
	return b.String()
}

func (c *PricingConfig) Validate() error {
	if c.TaxRate == "" {
		c.TaxRate = "0"
	}
	if c.FlatShipping == "" {
		c.FlatShipping = "0"
	}
	return nil
}

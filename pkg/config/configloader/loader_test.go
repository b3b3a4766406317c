package configloader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Storage struct {
		Driver string `koanf:"driver"`
	} `koanf:"storage"`
	Orders struct {
		URL     string        `koanf:"url"`
		Timeout time.Duration `koanf:"timeout"`
	} `koanf:"orders"`
}

func (c *testConfig) Validate() error {
	if c.Storage.Driver == "" {
		return errors.New("storage driver is required")
	}
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func Test_LoadFrom_Layering(t *testing.T) {
	// given
	dir := t.TempDir()
	yamlFile := writeFile(t, dir, "config.yaml", "storage:\n  driver: memory\norders:\n  url: http://yaml\n  timeout: 2s\n")
	envFile := writeFile(t, dir, ".env", "TESTSVC_ORDERS_URL=http://dotenv\nOTHER_ORDERS_URL=http://ignored\n")
	t.Setenv("TESTSVC_STORAGE_DRIVER", "postgres")

	// when
	cfg, err := LoadFrom[*testConfig]("testsvc", yamlFile, envFile)

	// then
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "http://dotenv", cfg.Orders.URL)
	assert.Equal(t, 2*time.Second, cfg.Orders.Timeout)
}

func Test_LoadFrom_MissingFilesAndInvalidConfig(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFrom[*testConfig]("testsvc", filepath.Join(dir, "absent.yaml"), filepath.Join(dir, ".env"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func Test_Load_ConfigFileFromEnv(t *testing.T) {
	dir := t.TempDir()
	yamlFile := writeFile(t, dir, "custom.yaml", "storage:\n  driver: nats\n")
	t.Setenv("TESTSVC_CONFIG_FILE", yamlFile)

	cfg, err := Load[*testConfig]("testsvc")

	require.NoError(t, err)
	assert.Equal(t, "nats", cfg.Storage.Driver)
}

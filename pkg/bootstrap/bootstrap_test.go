package bootstrap

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_toLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, toLevel("debug"))
	assert.Equal(t, slog.LevelWarn, toLevel("warn"))
	assert.Equal(t, slog.LevelError, toLevel("error"))
	assert.Equal(t, slog.LevelInfo, toLevel("info"))
	assert.Equal(t, slog.LevelInfo, toLevel(""))
}

func Test_NewLoggerTo_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, "warn")

	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	"pricestate/config"
	"pricestate/logger"

	"github.com/stretchr/testify/require"
)

func TestNew_InvalidLevel(t *testing.T) {
	_, err := logger.New(config.LogConfig{Level: "loud"})
	require.Error(t, err)
}

// go test -v --run TestNew_WritesRotatedFile
func TestNew_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pricestate.log")

	log, err := logger.New(config.LogConfig{Level: "info", Format: "json", OutputFile: path})
	require.NoError(t, err)

	log.Info("price upstreams connected")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "price upstreams connected")
}

package logging_test

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/km-arc/go-container/framework/config"
	"github.com/km-arc/go-container/framework/logging"
)

func TestNew_UsesConfiguredLevel(t *testing.T) {
	cfg := &config.Config{
		App: config.AppConfig{Name: "test", Env: "production"},
		Log: config.LogConfig{Level: "warn"},
	}

	logger, err := logging.New(cfg)
	require.NoError(t, err)

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_DevelopmentEnablesDebug(t *testing.T) {
	cfg := &config.Config{
		App: config.AppConfig{Name: "test", Env: "local", Debug: true},
		Log: config.LogConfig{Level: "debug"},
	}

	logger, err := logging.New(cfg)
	require.NoError(t, err)

	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	cfg := &config.Config{Log: config.LogConfig{Level: "loud"}}

	_, err := logging.New(cfg)

	assert.True(t, errors.Is(err, errors.NotValid))
}

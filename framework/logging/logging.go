// Package logging builds the application's zap logger from configuration.
package logging

import (
	"github.com/juju/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/km-arc/go-container/framework/config"
)

// New returns a console logger for local or debug environments and a JSON
// production logger otherwise, at the level named by cfg.Log.Level.
func New(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, errors.NotValidf("log level %q", cfg.Log.Level)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.App.Env == "local" || cfg.App.Debug {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build(zap.Fields(zap.String("app", cfg.App.Name)))
	if err != nil {
		return nil, errors.Annotate(err, "building logger")
	}
	return logger, nil
}

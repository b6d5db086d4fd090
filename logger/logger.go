package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.Logger
	once sync.Once
)

// Init builds the process-wide logger. ENV=production gets the JSON
// production encoder, anything else the colored development one.
func Init(env string) {
	once.Do(func() {
		var (
			l   *zap.Logger
			err error
		)
		if env == "production" {
			l, err = zap.NewProduction()
		} else {
			cfg := zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
			l, err = cfg.Build()
		}
		if err != nil {
			panic("failed to initialize logger: " + err.Error())
		}
		log = l
		zap.ReplaceGlobals(l)
	})
}

// L returns the global logger, initializing it from ENV on first use.
func L() *zap.Logger {
	if log == nil {
		Init(os.Getenv("ENV"))
	}
	return log
}

// Sync flushes buffered entries. Call it before the process exits.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}

// Named returns a child logger tagged with a component name.
func Named(component string) *zap.Logger {
	return L().Named(component)
}

package config

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapConfig translates the logging section into a zap configuration.
// The "console" format uses the development encoder, anything else is JSON.
func (l LoggingConfig) ZapConfig() (zap.Config, error) {
	var zc zap.Config
	if strings.EqualFold(l.Format, "console") {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}

	level := zapcore.InfoLevel
	if l.Level != "" {
		parsed, err := zapcore.ParseLevel(l.Level)
		if err != nil {
			return zap.Config{}, fmt.Errorf("invalid log level %q: %w", l.Level, err)
		}
		level = parsed
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	if l.Output != "" {
		zc.OutputPaths = []string{l.Output}
	}

	return zc, nil
}

// BuildLogger builds the application logger from the logging section
func (l LoggingConfig) BuildLogger() (*zap.Logger, error) {
	zc, err := l.ZapConfig()
	if err != nil {
		return nil, err
	}
	return zc.Build()
}

// Package logging builds the zap loggers handed to quantumnet components.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls basic logger behaviour.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

// New constructs a zap logger writing to stderr with the provided config.
func New(cfg Config) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), ParseLevel(cfg.Level))
	return zap.New(core)
}

// NewFromEnv constructs a logger from QNET_LOG_LEVEL and QNET_LOG_FORMAT,
// defaulting to a console encoder at info level.
func NewFromEnv() *zap.Logger {
	return New(Config{
		Level:  os.Getenv("QNET_LOG_LEVEL"),
		Format: os.Getenv("QNET_LOG_FORMAT"),
	})
}

// Noop returns a logger that drops everything.
func Noop() *zap.Logger { return zap.NewNop() }

// OrNop returns l, or a no-op logger if l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

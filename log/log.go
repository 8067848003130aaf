// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package log provides the CORE's structured logging surface, a thin
// wrapper over go.uber.org/zap matching the logging dependency already
// carried by the example pack (joeycumines-go-utilpkg's go-sql module).
// Every CORE package logs through this package rather than fmt/log, so
// the --log-level CLI option (spec §6) has one place to take effect.
// --syslog is not applied here: output never goes to syslog.
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the interface CORE packages log through. Keeping it small and
// zap-shaped (rather than exporting *zap.Logger everywhere) lets tests
// substitute a no-op or observed logger without pulling zap into every
// package's test imports.
type Logger interface {
	Debugw(msg string, kv ...any)
	Infow(msg string, kv ...any)
	Warnw(msg string, kv ...any)
	Errorw(msg string, kv ...any)
	Sync() error
}

type zapLogger struct {
	z *zap.SugaredLogger
}

func (l *zapLogger) Debugw(msg string, kv ...any) { l.z.Debugw(msg, kv...) }
func (l *zapLogger) Infow(msg string, kv ...any)  { l.z.Infow(msg, kv...) }
func (l *zapLogger) Warnw(msg string, kv ...any)  { l.z.Warnw(msg, kv...) }
func (l *zapLogger) Errorw(msg string, kv ...any) { l.z.Errorw(msg, kv...) }
func (l *zapLogger) Sync() error                  { return l.z.Sync() }

// Level mirrors the --log-level CLI option (spec §6).
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (lv Level) zapLevel() zapcore.Level {
	switch lv {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel parses --log-level's string form, defaulting to
// [LevelInfo] on an unrecognized value.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// New builds a production-shaped zap logger (JSON encoding, ISO8601
// timestamps) at the requested level, writing to zap's production default
// output (stderr). It has no syslog option.
func New(level Level) Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build()
	if err != nil {
		// zap.NewProductionConfig().Build() only fails on a malformed
		// encoder/sink configuration, which this package never produces;
		// fall back to a no-op logger rather than panic at startup.
		return &zapLogger{z: zap.NewNop().Sugar()}
	}
	return &zapLogger{z: z.Sugar()}
}

// Nop returns a logger that discards everything, for tests.
func Nop() Logger {
	return &zapLogger{z: zap.NewNop().Sugar()}
}

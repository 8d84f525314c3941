// Package logging contains the structured logger shared by the spatial acceleration packages.
package logging

import (
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Names of the subloggers each subsystem logs under.
const (
	AccelLoggerName  = "accel"
	StatsLoggerName  = "stats"
	FTDCLoggerName   = "ftdc"
	ConfigLoggerName = "config"
)

var (
	defaultOnce   sync.Once
	defaultLogger Logger
)

// Default returns the process wide logger used when a component is constructed without one. It
// writes Info+ logs to stdout under the "spatialaccel" name.
func Default() Logger {
	defaultOnce.Do(func() {
		defaultLogger = NewLogger("spatialaccel")
	})
	return defaultLogger
}

// consoleEncoderConfig is the encoder shared by every console appender. Colored levels are only
// wanted on a terminal.
func consoleEncoderConfig(colorLevels bool) zapcore.EncoderConfig {
	levels := zapcore.CapitalLevelEncoder
	if colorLevels {
		levels = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  zapcore.OmitKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    levels,
		EncodeTime:     zapcore.TimeEncoderOfLayout(DefaultTimeFormatStr),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// NewLogger returns a new logger that outputs Info+ logs to stdout in UTC.
func NewLogger(name string) Logger {
	return &impl{name: name, level: NewAtomicLevelAt(INFO), inUTC: true, appenders: []Appender{NewStdoutAppender()}}
}

// NewBlankLogger returns a Debug+ logger without any appenders. Useful when only an observer
// or a custom appender should receive output.
func NewBlankLogger(name string) Logger {
	return &impl{name: name, level: NewAtomicLevelAt(DEBUG), inUTC: true}
}

// NewTestLogger returns a new logger that outputs Debug+ logs to the test's log in local time.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is like NewTestLogger but also keeps every entry in memory so tests can
// assert on clamp warnings and statistics lines.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	logger := &impl{level: NewAtomicLevelAt(DEBUG)}
	logger.AddAppender(NewTestAppender(tb))

	observerCore, observedLogs := observer.New(zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled))
	logger.AddAppender(observerCore)

	return logger, observedLogs
}

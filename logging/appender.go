package logging

import (
	"io"
	"os"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultTimeFormatStr is the default time format string for log appenders.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. This is a subset of the `zapcore.Core` interface.
type Appender interface {
	// Write submits a structured log entry to the appender for logging.
	Write(zapcore.Entry, []zapcore.Field) error
	// Sync is for signaling that any buffered logs to `Write` should be flushed. E.g: at shutdown.
	Sync() error
}

// NewStdoutAppender creates a new appender that outputs console formatted logs with colored
// levels to stdout.
func NewStdoutAppender() Appender {
	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoderConfig(true)),
		zapcore.Lock(os.Stdout),
		zapcore.DebugLevel,
	)
}

// NewWriterAppender creates a new appender that outputs uncolored console formatted logs to w.
func NewWriterAppender(w io.Writer) Appender {
	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoderConfig(false)),
		zapcore.Lock(zapcore.AddSync(w)),
		zapcore.DebugLevel,
	)
}

// NewFileAppender creates an appender that writes console formatted logs to a size rotated file
// at path. The returned closer releases the file.
func NewFileAppender(path string) (Appender, io.Closer) {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    64,
		MaxBackups: 2,
		Compress:   true,
	}
	return NewWriterAppender(rotator), rotator
}

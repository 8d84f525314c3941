package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

// testAppender renders entries with the console encoder and hands each line to tb.Log so that
// output from parallel tests stays with the test that produced it.
type testAppender struct {
	tb      testing.TB
	encoder zapcore.Encoder
}

// NewTestAppender returns an appender that logs to tb in local time without colors.
func NewTestAppender(tb testing.TB) Appender {
	return &testAppender{tb: tb, encoder: zapcore.NewConsoleEncoder(consoleEncoderConfig(false))}
}

// Write logs one line per entry, fields encoded after the message.
func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	tapp.tb.Helper()
	buf, err := tapp.encoder.EncodeEntry(entry, fields)
	if err != nil {
		tapp.tb.Logf("%s\t%s\t%s\t(unencodable fields: %v)", entry.Level.CapitalString(), entry.LoggerName, entry.Message, err)
		return err
	}
	defer buf.Free()
	tapp.tb.Log(strings.TrimSuffix(buf.String(), "\n"))
	return nil
}

// Sync is a no-op.
func (tapp *testAppender) Sync() error {
	return nil
}

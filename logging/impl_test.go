package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

func TestObservedLevels(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)

	logger.Debug("debug line")
	logger.Infof("info %d", 7)
	logger.Warnw("warn line", "field", 3.5, "id", 11)
	test.That(t, logs.Len(), test.ShouldEqual, 3)

	entries := logs.All()
	test.That(t, entries[0].Message, test.ShouldEqual, "debug line")
	test.That(t, entries[0].Level, test.ShouldEqual, zapcore.DebugLevel)
	test.That(t, entries[1].Message, test.ShouldEqual, "info 7")
	test.That(t, entries[2].Level, test.ShouldEqual, zapcore.WarnLevel)

	ctx := entries[2].ContextMap()
	test.That(t, ctx["field"], test.ShouldEqual, 3.5)
	test.That(t, ctx["id"], test.ShouldEqual, int64(11))

	logger.SetLevel(WARN)
	logger.Info("dropped")
	logger.Error("kept")
	test.That(t, logs.Len(), test.ShouldEqual, 4)
	test.That(t, logs.FilterMessage("dropped").Len(), test.ShouldEqual, 0)
	test.That(t, logger.GetLevel(), test.ShouldEqual, WARN)
}

func TestUnpairedKey(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Infow("odd", "lonely")
	test.That(t, logs.Len(), test.ShouldEqual, 1)
	_, ok := logs.All()[0].ContextMap()["lonely"]
	test.That(t, ok, test.ShouldBeTrue)
}

func TestSublogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	sub := logger.Sublogger("bvh")
	sub.Info("hi")
	test.That(t, logs.All()[0].LoggerName, test.ShouldEqual, "bvh")

	subsub := sub.Sublogger("refit")
	subsub.Info("again")
	test.That(t, logs.All()[1].LoggerName, test.ShouldEqual, "bvh.refit")

	// Sublogger levels are independent of the parent.
	subsub.SetLevel(ERROR)
	sub.Info("still logged")
	subsub.Info("not logged")
	test.That(t, logs.Len(), test.ShouldEqual, 3)
	test.That(t, logger.Sync(), test.ShouldBeNil)
}

func TestCallerIsUserCode(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Info("where")
	caller := logs.All()[0].Caller
	test.That(t, caller.Defined, test.ShouldBeTrue)
	test.That(t, caller.File, test.ShouldEndWith, "impl_test.go")
}

func TestLevelStrings(t *testing.T) {
	for _, level := range []Level{DEBUG, INFO, WARN, ERROR} {
		parsed, err := LevelFromString(level.String())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, parsed, test.ShouldEqual, level)

		data, err := level.MarshalJSON()
		test.That(t, err, test.ShouldBeNil)
		var back Level
		test.That(t, back.UnmarshalJSON(data), test.ShouldBeNil)
		test.That(t, back, test.ShouldEqual, level)
	}

	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestWriterAppender(t *testing.T) {
	var buf bytes.Buffer
	logger := NewBlankLogger("tool")
	logger.AddAppender(NewWriterAppender(&buf))
	logger.SetLevel(INFO)

	logger.Debugw("hidden", "k", 1)
	logger.Warnw("rebuild scheduled", "reason", "churn")
	test.That(t, logger.Sync(), test.ShouldBeNil)

	out := buf.String()
	test.That(t, out, test.ShouldNotContainSubstring, "hidden")
	test.That(t, out, test.ShouldContainSubstring, "WARN")
	test.That(t, out, test.ShouldContainSubstring, "tool")
	test.That(t, out, test.ShouldContainSubstring, "rebuild scheduled")
	test.That(t, out, test.ShouldContainSubstring, "churn")
}

func TestFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bvh.log")
	appender, closer := NewFileAppender(path)
	logger := NewBlankLogger("tool")
	logger.AddAppender(appender)
	logger.Infow("scene rebuilt", "entities", 12)
	test.That(t, logger.Sync(), test.ShouldBeNil)
	test.That(t, closer.Close(), test.ShouldBeNil)

	contents, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(contents), test.ShouldContainSubstring, "scene rebuilt")
	test.That(t, string(contents), test.ShouldContainSubstring, "INFO")
}

// lineRecorder captures what would be written to a test's log.
type lineRecorder struct {
	testing.TB
	lines []string
}

func (r *lineRecorder) Helper() {}

func (r *lineRecorder) Log(args ...any) {
	for _, arg := range args {
		r.lines = append(r.lines, arg.(string))
	}
}

func TestTestAppenderWritesOneLinePerEntry(t *testing.T) {
	rec := &lineRecorder{TB: t}
	logger := NewBlankLogger(AccelLoggerName)
	logger.AddAppender(NewTestAppender(rec))

	logger.Warnw("clamping out of range acceleration config value", "field", "max_leaf_refs")
	logger.Debug("no fields")
	test.That(t, rec.lines, test.ShouldHaveLength, 2)
	test.That(t, rec.lines[0], test.ShouldContainSubstring, "WARN")
	test.That(t, rec.lines[0], test.ShouldContainSubstring, "accel")
	test.That(t, rec.lines[0], test.ShouldContainSubstring, "max_leaf_refs")
	test.That(t, rec.lines[1], test.ShouldContainSubstring, "no fields")
	for _, line := range rec.lines {
		test.That(t, strings.HasSuffix(line, "\n"), test.ShouldBeFalse)
	}
}

func TestDefaultLoggerIsShared(t *testing.T) {
	test.That(t, Default(), test.ShouldEqual, Default())
	test.That(t, Default().GetLevel(), test.ShouldEqual, INFO)
}

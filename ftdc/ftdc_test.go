package ftdc

import (
	"bytes"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"go.viam.com/spatialaccel/logging"
)

type frame struct {
	Visible int64
	Culled  int64
}

type treeStats struct {
	Nodes    int
	Pending  bool
	Label    string
	Frame    frame
	BuildSec float64
}

type counter struct {
	n int
}

func (c *counter) Stats() any {
	c.n++
	return struct{ Calls int }{c.n}
}

func TestCaptureAndParse(t *testing.T) {
	logger := logging.NewTestLogger(t)
	mock := clock.NewMock()
	mock.Set(time.Unix(100, 0))
	var buf bytes.Buffer
	f := New(&buf, logger, WithClock(mock))

	stats := treeStats{Nodes: 7, Label: "ignored", Frame: frame{Visible: 3, Culled: 4}, BuildSec: 0.25}
	test.That(t, f.Add("scene", StatserFunc(func() any { return stats })), test.ShouldBeNil)
	test.That(t, f.Capture(), test.ShouldBeNil)

	mock.Add(time.Second)
	stats.Pending = true
	stats.Frame.Visible = 5
	test.That(t, f.Capture(), test.ShouldBeNil)

	// a new statser changes the schema
	mock.Add(time.Second)
	test.That(t, f.Add("calls", &counter{}), test.ShouldBeNil)
	test.That(t, f.Capture(), test.ShouldBeNil)
	test.That(t, f.Captures(), test.ShouldEqual, 3)

	datums, err := Parse(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(datums), test.ShouldEqual, 3)

	test.That(t, datums[0].ConvertedTime().Equal(time.Unix(100, 0)), test.ShouldBeTrue)
	test.That(t, datums[0].Readings, test.ShouldResemble, []Reading{
		{"scene.Nodes", 7},
		{"scene.Pending", 0},
		{"scene.Frame.Visible", 3},
		{"scene.Frame.Culled", 4},
		{"scene.BuildSec", 0.25},
	})

	pending, ok := datums[1].Value("scene.Pending")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, pending, test.ShouldEqual, float32(1))
	visible, _ := datums[1].Value("scene.Frame.Visible")
	test.That(t, visible, test.ShouldEqual, float32(5))
	nodes, _ := datums[1].Value("scene.Nodes")
	test.That(t, nodes, test.ShouldEqual, float32(7))

	// statsers are laid out in name order
	test.That(t, datums[2].Readings[0], test.ShouldResemble, Reading{"calls.Calls", 1})
	test.That(t, datums[2].Time-datums[0].Time, test.ShouldEqual, int64(2*time.Second))

	hydrated := datums[2].asDatum()
	test.That(t, hydrated.Data["scene"], test.ShouldResemble, map[string]float32{
		"Nodes": 7, "Pending": 1, "Frame.Visible": 5, "Frame.Culled": 4, "BuildSec": 0.25,
	})
}

func TestUnchangedValuesAreNotRewritten(t *testing.T) {
	var buf bytes.Buffer
	f := New(&buf, logging.NewTestLogger(t))
	test.That(t, f.Add("scene", StatserFunc(func() any { return frame{Visible: 1, Culled: 2} })), test.ShouldBeNil)
	test.That(t, f.Capture(), test.ShouldBeNil)
	first := buf.Len()
	test.That(t, f.Capture(), test.ShouldBeNil)
	// one diff byte plus the time
	test.That(t, buf.Len()-first, test.ShouldEqual, 1+8)

	datums, err := Parse(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, datums[1].Readings, test.ShouldResemble, datums[0].Readings)
}

func TestAddValidation(t *testing.T) {
	f := New(&bytes.Buffer{}, logging.NewTestLogger(t))
	noop := StatserFunc(func() any { return frame{} })
	test.That(t, f.Add("", noop), test.ShouldNotBeNil)
	test.That(t, f.Add("a.b", noop), test.ShouldNotBeNil)
	test.That(t, f.Add("scene", noop), test.ShouldBeNil)
	test.That(t, f.Add("scene", noop), test.ShouldNotBeNil)
	f.Remove("scene")
	test.That(t, f.Add("scene", noop), test.ShouldBeNil)
}

func TestNonStructStatsersAreSkipped(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	var buf bytes.Buffer
	f := New(&buf, logger)
	test.That(t, f.Add("broken", StatserFunc(func() any { return 5 })), test.ShouldBeNil)
	test.That(t, f.Add("scene", StatserFunc(func() any { return frame{Visible: 2} })), test.ShouldBeNil)
	test.That(t, f.Capture(), test.ShouldBeNil)
	test.That(t, logs.FilterMessage("skipping statser without struct stats").Len(), test.ShouldEqual, 1)

	datums, err := Parse(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(datums), test.ShouldEqual, 1)
	test.That(t, datums[0].Readings, test.ShouldResemble, []Reading{{"scene.Visible", 2}, {"scene.Culled", 0}})
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte{0x0, 0x0}))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = Parse(bytes.NewReader([]byte("\x01[\"a.b\"")))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = Parse(bytes.NewReader([]byte("\x01[\"nodot\"]\n")))
	test.That(t, err, test.ShouldNotBeNil)

	// a truncated datum keeps the datums before it
	var buf bytes.Buffer
	f := New(&buf, logging.NewTestLogger(t))
	test.That(t, f.Add("scene", StatserFunc(func() any { return frame{Visible: 1} })), test.ShouldBeNil)
	test.That(t, f.Capture(), test.ShouldBeNil)
	test.That(t, f.Capture(), test.ShouldBeNil)
	raw := buf.Bytes()
	datums, err := Parse(bytes.NewReader(raw[:len(raw)-3]))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, len(datums), test.ShouldEqual, 1)

	datums, err = Parse(&bytes.Buffer{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, datums, test.ShouldBeEmpty)
}

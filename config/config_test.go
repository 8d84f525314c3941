package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"go.viam.com/spatialaccel/accel"
	"go.viam.com/spatialaccel/bvh"
	"go.viam.com/spatialaccel/logging"
)

func TestFromReaderOverlaysDefaults(t *testing.T) {
	logger := logging.NewTestLogger(t)
	cfg, err := FromReader("inline", strings.NewReader(`{
		"log_level": "debug",
		"accel": {"enable_bvh_culling": false, "mesh_split_strategy": "center", "max_leaf_refs": 8}
	}`), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, "inline")
	test.That(t, cfg.LogLevel, test.ShouldEqual, logging.DEBUG)

	want := accel.DefaultConfig()
	want.EnableBVHCulling = false
	want.MeshSplitStrategy = bvh.SplitCenter
	want.MaxLeafRefs = 8
	test.That(t, cfg.Accel, test.ShouldResemble, want)
}

func TestFromReaderErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	_, err := FromReader("", strings.NewReader(`{`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "failed to decode Config from json")

	_, err = FromReader("", strings.NewReader(`{"accel": {"max_leaf_refs": "many"}}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFromReaderToleratesUnknownStrategy(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	cfg, err := FromReader("inline", strings.NewReader(
		`{"accel": {"mesh_split_strategy": "octree", "scene_split_strategy": "Average", "max_leaf_refs": 0}}`), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Accel.MeshSplitStrategy, test.ShouldEqual, bvh.SplitUnknown)
	test.That(t, cfg.Accel.SceneSplitStrategy, test.ShouldEqual, bvh.SplitAverage)

	warnings := logs.FilterMessage("config has out of range values that will be clamped").All()
	test.That(t, warnings, test.ShouldHaveLength, 1)
	issues := warnings[0].ContextMap()["error"]
	test.That(t, issues, test.ShouldContainSubstring, "mesh_split_strategy")
	test.That(t, issues, test.ShouldContainSubstring, "max_leaf_refs")

	sanitized := cfg.Accel.Sanitize(logger)
	test.That(t, sanitized.MeshSplitStrategy, test.ShouldEqual, bvh.SplitSAH)
	test.That(t, sanitized.MaxLeafRefs, test.ShouldEqual, accel.MinLeafSize)
}

func TestFromReaderWarnsOnOutOfRange(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	cfg, err := FromReader("", strings.NewReader(`{"accel": {"max_leaf_triangles": 0, "churn_fraction": -2}}`), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Accel.MaxLeafTriangles, test.ShouldEqual, 0)
	test.That(t, cfg.Validate(), test.ShouldNotBeNil)
	test.That(t, logs.FilterMessage("config has out of range values that will be clamped").Len(), test.ShouldEqual, 1)
}

func TestRead(t *testing.T) {
	logger := logging.NewTestLogger(t)
	t.Setenv("ACCEL_LEAF_TRIANGLES", "16")
	path := filepath.Join(t.TempDir(), "accel.json")
	err := os.WriteFile(path, []byte(`{"accel": {"max_leaf_triangles": ${ACCEL_LEAF_TRIANGLES}}}`), 0o600)
	test.That(t, err, test.ShouldBeNil)

	cfg, err := Read(path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Accel.MaxLeafTriangles, test.ShouldEqual, 16)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)

	_, err = Read(filepath.Join(t.TempDir(), "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFromAttributes(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	cfg, err := FromAttributes(map[string]interface{}{
		"enable_bvh_raycasts": false,
		"mesh_split_strategy": "average",
		"sah_bins":            32,
		"debug":               map[string]interface{}{"enabled": true},
		"octree_depth":        3,
	}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.EnableBVHRaycasts, test.ShouldBeFalse)
	test.That(t, cfg.MeshSplitStrategy, test.ShouldEqual, bvh.SplitAverage)
	test.That(t, cfg.SAHBins, test.ShouldEqual, 32)
	test.That(t, cfg.Debug.Enabled, test.ShouldBeTrue)
	test.That(t, cfg.Debug.IntervalSeconds, test.ShouldEqual, 5.0)
	test.That(t, cfg.EnableBVHCulling, test.ShouldBeTrue)

	unknown := logs.FilterMessage("ignoring unknown acceleration attributes").All()
	test.That(t, len(unknown), test.ShouldEqual, 1)
	test.That(t, unknown[0].ContextMap()["keys"], test.ShouldResemble, []interface{}{"octree_depth"})

	cfg, err = FromAttributes(map[string]interface{}{"mesh_split_strategy": "octree"}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.MeshSplitStrategy, test.ShouldEqual, bvh.SplitUnknown)
	test.That(t, logs.FilterMessage("attributes have out of range values that will be clamped").Len(), test.ShouldEqual, 1)
	_, err = FromAttributes(map[string]interface{}{"max_leaf_refs": "many"}, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

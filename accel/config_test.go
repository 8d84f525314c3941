package accel

import (
	"math"
	"testing"

	"go.viam.com/test"

	"go.viam.com/spatialaccel/bvh"
	"go.viam.com/spatialaccel/logging"
	"go.viam.com/spatialaccel/spatialmath"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	test.That(t, cfg.Validate("accel"), test.ShouldBeNil)
	test.That(t, cfg.EnableBVHCulling, test.ShouldBeTrue)
	test.That(t, cfg.EnableBVHRaycasts, test.ShouldBeTrue)
	test.That(t, cfg.MaxLeafTriangles, test.ShouldEqual, 4)
	test.That(t, cfg.MaxLeafRefs, test.ShouldEqual, 4)
	test.That(t, cfg.MeshSplitStrategy, test.ShouldEqual, bvh.SplitSAH)
	test.That(t, cfg.cullMode(), test.ShouldEqual, spatialmath.CullNone)
}

func TestConfigSanitize(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	cfg := DefaultConfig()
	cfg.MaxLeafTriangles = 10000
	cfg.MaxLeafRefs = -3
	cfg.SAHBins = 1
	cfg.RefitDebtFraction = math.NaN()
	cfg.Debug.IntervalSeconds = 0
	cfg.MeshSplitStrategy = bvh.SplitStrategy(9)

	err := cfg.Validate("accel")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "accel: max_leaf_triangles: 10000 is out of range, using 256")

	sanitized := cfg.Sanitize(logger)
	test.That(t, sanitized.MaxLeafTriangles, test.ShouldEqual, MaxLeafSize)
	test.That(t, sanitized.MaxLeafRefs, test.ShouldEqual, MinLeafSize)
	test.That(t, sanitized.SAHBins, test.ShouldEqual, MinSAHBins)
	test.That(t, sanitized.RefitDebtFraction, test.ShouldEqual, 0)
	test.That(t, sanitized.Debug.IntervalSeconds, test.ShouldEqual, MinDebugSeconds)
	test.That(t, sanitized.MeshSplitStrategy, test.ShouldEqual, bvh.SplitSAH)
	test.That(t, logs.FilterMessage("clamping out of range acceleration config value").Len(), test.ShouldEqual, 6)
	test.That(t, sanitized.Validate("accel"), test.ShouldBeNil)

	cfg = DefaultConfig()
	cfg.BackfaceCulling = true
	test.That(t, cfg.cullMode(), test.ShouldEqual, spatialmath.CullBack)
	test.That(t, cfg.sceneOptions().Strategy, test.ShouldEqual, bvh.SplitCenter)
	cfg.SceneSplitStrategy = bvh.SplitSAH
	test.That(t, cfg.sceneOptions().Strategy, test.ShouldEqual, bvh.SplitSAH)
}

func TestConfigReplacesUnknownStrategies(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	cfg := DefaultConfig()
	cfg.MeshSplitStrategy = bvh.SplitUnknown
	cfg.SceneSplitStrategy = bvh.SplitUnknown
	cfg.RebuildEntityBudget = -5

	err := cfg.Validate("accel")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "mesh_split_strategy: unknown is out of range, using sah")
	test.That(t, err.Error(), test.ShouldContainSubstring, "scene_split_strategy: unknown is out of range, using center")

	sanitized := cfg.Sanitize(logger)
	test.That(t, sanitized.MeshSplitStrategy, test.ShouldEqual, bvh.SplitSAH)
	test.That(t, sanitized.SceneSplitStrategy, test.ShouldEqual, bvh.SplitCenter)
	test.That(t, sanitized.RebuildEntityBudget, test.ShouldEqual, 0)
	test.That(t, logs.FilterMessage("clamping out of range acceleration config value").Len(), test.ShouldEqual, 3)
}

func TestZeroRefitDebtFractionDisablesTracking(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RefitDebtFraction = 0
	test.That(t, cfg.Validate("accel"), test.ShouldBeNil)
	test.That(t, cfg.sceneOptions().RefitDebtFraction, test.ShouldEqual, 0)
}

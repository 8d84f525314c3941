package accel

import (
	"math"

	"go.uber.org/multierr"

	"go.viam.com/spatialaccel/bvh"
	"go.viam.com/spatialaccel/logging"
	"go.viam.com/spatialaccel/spatialmath"
	"go.viam.com/spatialaccel/utils"
)

// Limits applied by Config.Sanitize.
const (
	MinLeafSize     = 1
	MaxLeafSize     = 256
	MinSAHBins      = 2
	MaxSAHBins      = 256
	MinFraction     = 0.001
	MinDebugSeconds = 0.01
)

// DebugConfig controls the periodic statistics logger.
type DebugConfig struct {
	Enabled         bool    `json:"enabled"`
	IntervalSeconds float64 `json:"interval_seconds"`
}

// Config is the acceleration manager configuration. Every field may be changed at runtime with
// Manager.Reconfigure.
type Config struct {
	EnableBVHCulling         bool              `json:"enable_bvh_culling"`
	EnableBVHRaycasts        bool              `json:"enable_bvh_raycasts"`
	MaxLeafTriangles         int               `json:"max_leaf_triangles"`
	MaxLeafRefs              int               `json:"max_leaf_refs"`
	MeshSplitStrategy        bvh.SplitStrategy `json:"mesh_split_strategy"`
	SceneSplitStrategy       bvh.SplitStrategy `json:"scene_split_strategy"`
	EnableIncrementalUpdates bool              `json:"enable_incremental_updates"`
	// RefitDebtFraction is the fraction of scene leaves that may be refit before a rebuild. Zero
	// disables refit debt tracking.
	RefitDebtFraction float64 `json:"refit_debt_fraction"`
	// ChurnFraction is the fraction of the scene tree size that added, removed, or stale entities
	// may reach before a rebuild.
	ChurnFraction   float64 `json:"churn_fraction"`
	BackfaceCulling bool    `json:"backface_culling"`
	SAHBins         int     `json:"sah_bins"`
	// RebuildEntityBudget caps how many entities Commit will rebuild the scene tree over. Above it
	// the rebuild stays pending until ForceRebuild. Zero means no cap.
	RebuildEntityBudget int         `json:"rebuild_entity_budget"`
	Debug               DebugConfig `json:"debug"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		EnableBVHCulling:         true,
		EnableBVHRaycasts:        true,
		MaxLeafTriangles:         4,
		MaxLeafRefs:              4,
		MeshSplitStrategy:        bvh.SplitSAH,
		SceneSplitStrategy:       bvh.SplitCenter,
		EnableIncrementalUpdates: true,
		RefitDebtFraction:        0.5,
		ChurnFraction:            0.1,
		BackfaceCulling:          false,
		SAHBins:                  bvh.DefaultSAHBins,
		Debug: DebugConfig{
			Enabled:         false,
			IntervalSeconds: 5,
		},
	}
}

func clampInt(field string, v, lo, hi int, issues *[]error) int {
	clamped := utils.ClampInt(v, lo, hi)
	if clamped != v {
		*issues = append(*issues, utils.NewOutOfRangeConfigError(field, v, clamped))
	}
	return clamped
}

func clampMin(field string, v, lo float64, issues *[]error) float64 {
	if math.IsNaN(v) || v < lo {
		*issues = append(*issues, utils.NewOutOfRangeConfigError(field, v, lo))
		return lo
	}
	if math.IsInf(v, 1) {
		*issues = append(*issues, utils.NewOutOfRangeConfigError(field, v, math.MaxFloat64))
		return math.MaxFloat64
	}
	return v
}

// clamped returns a copy with every out of range value replaced by the nearest usable one, along
// with a description of each replacement.
func (c Config) clamped() (Config, []error) {
	var issues []error
	c.MaxLeafTriangles = clampInt("max_leaf_triangles", c.MaxLeafTriangles, MinLeafSize, MaxLeafSize, &issues)
	c.MaxLeafRefs = clampInt("max_leaf_refs", c.MaxLeafRefs, MinLeafSize, MaxLeafSize, &issues)
	c.SAHBins = clampInt("sah_bins", c.SAHBins, MinSAHBins, MaxSAHBins, &issues)
	c.RefitDebtFraction = clampMin("refit_debt_fraction", c.RefitDebtFraction, 0, &issues)
	c.ChurnFraction = clampMin("churn_fraction", c.ChurnFraction, MinFraction, &issues)
	c.Debug.IntervalSeconds = clampMin("debug.interval_seconds", c.Debug.IntervalSeconds, MinDebugSeconds, &issues)
	if c.RebuildEntityBudget < 0 {
		issues = append(issues, utils.NewOutOfRangeConfigError("rebuild_entity_budget", c.RebuildEntityBudget, 0))
		c.RebuildEntityBudget = 0
	}
	c.MeshSplitStrategy = knownStrategy("mesh_split_strategy", c.MeshSplitStrategy, bvh.SplitSAH, &issues)
	c.SceneSplitStrategy = knownStrategy("scene_split_strategy", c.SceneSplitStrategy, bvh.SplitCenter, &issues)
	return c, issues
}

func knownStrategy(field string, s, fallback bvh.SplitStrategy, issues *[]error) bvh.SplitStrategy {
	switch s {
	case bvh.SplitSAH, bvh.SplitCenter, bvh.SplitAverage:
		return s
	}
	*issues = append(*issues, utils.NewOutOfRangeConfigError(field, s, fallback))
	return fallback
}

// Sanitize returns a copy of c that is safe to use. Out of range values are clamped and each
// clamp is logged as a warning; it never fails.
func (c Config) Sanitize(logger logging.Logger) Config {
	sanitized, issues := c.clamped()
	for _, issue := range issues {
		logger.Warnw("clamping out of range acceleration config value", "error", issue)
	}
	return sanitized
}

// Validate returns every out of range value in c combined into one error. The path is used as a
// prefix to locate the config.
func (c Config) Validate(path string) error {
	_, issues := c.clamped()
	var errs error
	for _, issue := range issues {
		errs = multierr.Append(errs, utils.PrefixError(path, issue))
	}
	return errs
}

func (c Config) meshOptions() bvh.MeshOptions {
	return bvh.MeshOptions{MaxLeafTriangles: c.MaxLeafTriangles, Strategy: c.MeshSplitStrategy, Bins: c.SAHBins}
}

func (c Config) sceneOptions() bvh.SceneOptions {
	return bvh.SceneOptions{
		MaxLeafRefs:       c.MaxLeafRefs,
		Strategy:          c.SceneSplitStrategy,
		Bins:              c.SAHBins,
		RefitDebtFraction: c.RefitDebtFraction,
	}
}

func (c Config) cullMode() spatialmath.CullMode {
	if c.BackfaceCulling {
		return spatialmath.CullBack
	}
	return spatialmath.CullNone
}

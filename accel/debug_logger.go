package accel

import (
	"sync"
	"time"

	"go.viam.com/spatialaccel/logging"
)

// StatisticsSource is anything that can report manager statistics, usually a *Manager.
type StatisticsSource interface {
	Statistics() Statistics
}

// DebugLogger periodically logs manager statistics. It is driven by the caller's frame delta
// rather than a timer so that logging stays in step with the frame loop.
type DebugLogger struct {
	logger logging.Logger

	mu       sync.Mutex
	enabled  bool
	interval time.Duration
	elapsed  time.Duration
}

// NewDebugLogger returns a debug logger using cfg's toggle and interval.
func NewDebugLogger(logger logging.Logger, cfg DebugConfig) *DebugLogger {
	if cfg.IntervalSeconds < MinDebugSeconds {
		cfg.IntervalSeconds = MinDebugSeconds
	}
	return &DebugLogger{
		logger:   logger,
		enabled:  cfg.Enabled,
		interval: time.Duration(cfg.IntervalSeconds * float64(time.Second)),
	}
}

// SetEnabled turns periodic and immediate logging on or off.
func (dl *DebugLogger) SetEnabled(enabled bool) {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	dl.enabled = enabled
}

// Enabled reports whether logging is on.
func (dl *DebugLogger) Enabled() bool {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	return dl.enabled
}

// Interval returns the time between periodic logs.
func (dl *DebugLogger) Interval() time.Duration {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	return dl.interval
}

// Update advances the logger by dt and logs statistics once the interval has elapsed. It returns
// whether it logged.
func (dl *DebugLogger) Update(dt time.Duration, src StatisticsSource) bool {
	dl.mu.Lock()
	if !dl.enabled {
		dl.mu.Unlock()
		return false
	}
	dl.elapsed += dt
	due := dl.elapsed >= dl.interval
	if due {
		dl.elapsed = 0
	}
	dl.mu.Unlock()

	if due {
		dl.LogStatistics(src)
	}
	return due
}

// LogStatistics logs a statistics summary regardless of the toggle.
func (dl *DebugLogger) LogStatistics(src StatisticsSource) {
	stats := src.Statistics()
	m := stats.Metrics

	dl.logger.Infow("acceleration statistics",
		"meshes", m.MeshCount,
		"triangles", m.TotalTriangles,
		"scene_refs", m.SceneRefs,
		"overflow", m.OverflowEntities)

	if m.MeshBuildTime > 0 || m.SceneBuildTime > 0 {
		dl.logger.Infow("build times",
			"mesh", m.MeshBuildTime,
			"scene", m.SceneBuildTime,
			"refit", m.RefitTime)
	}

	if m.Frame.Visible > 0 || m.Frame.Culled > 0 {
		var efficiency float64
		if total := m.Frame.Visible + m.Frame.Culled; total > 0 {
			efficiency = float64(m.Frame.Visible) / float64(total) * 100
		}
		dl.logger.Infow("last frame culling",
			"visible", m.Frame.Visible,
			"culled", m.Frame.Culled,
			"visible_pct", efficiency)
	}

	if m.Frame.Raycasts > 0 {
		dl.logger.Infow("last frame raycasts",
			"raycasts", m.Frame.Raycasts,
			"triangle_tests", m.Frame.RayTriangleTests)
	}

	dl.logger.Infow("scene hierarchy",
		"nodes", stats.Scene.Nodes,
		"internal", stats.Scene.InternalNodes,
		"leaves", stats.Scene.Leaves,
		"max_depth", stats.Scene.MaxDepth,
		"min_refs_per_leaf", stats.Scene.MinLeafSize,
		"max_refs_per_leaf", stats.Scene.MaxLeafSize)
}

// LogConfiguration logs the active configuration.
func (dl *DebugLogger) LogConfiguration(src StatisticsSource) {
	cfg := src.Statistics().Config
	dl.logger.Infow("acceleration configuration",
		"culling", cfg.EnableBVHCulling,
		"raycasts", cfg.EnableBVHRaycasts,
		"max_leaf_triangles", cfg.MaxLeafTriangles,
		"max_leaf_refs", cfg.MaxLeafRefs,
		"mesh_split_strategy", cfg.MeshSplitStrategy.String(),
		"scene_split_strategy", cfg.SceneSplitStrategy.String(),
		"incremental", cfg.EnableIncrementalUpdates,
		"rebuild_entity_budget", cfg.RebuildEntityBudget)
}

// LogNow logs statistics immediately if enabled.
func (dl *DebugLogger) LogNow(src StatisticsSource) bool {
	if !dl.Enabled() {
		return false
	}
	dl.LogStatistics(src)
	return true
}

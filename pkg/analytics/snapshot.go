package analytics

import "sort"

// GazeStats is the per-target heatmap total.
type GazeStats struct {
	TargetID    string `json:"target_id"`
	DwellTimeMs int64  `json:"dwell_time_ms"`
	VisitCount  int    `json:"visit_count"`
}

// Snapshot is an immutable view of a session's analytics. It is safe for
// concurrent use.
type Snapshot struct {
	Ts      int64   `json:"ts"`
	Metrics Metrics `json:"metrics"`

	points []HeatmapPoint
	issues []Issue
}

// EmptySnapshot returns a snapshot with default metrics and no heatmap.
func EmptySnapshot() *Snapshot {
	return &Snapshot{Metrics: DefaultMetrics()}
}

// Heatmap returns the topN keys ranked by importance, computed now. topN
// <= 0 returns every key.
func (s *Snapshot) Heatmap(topN int) []HeatmapPoint {
	out := make([]HeatmapPoint, len(s.points))
	copy(out, s.points)
	for i := range out {
		out[i].Importance = Importance(out[i].DwellTimeMs, out[i].VisitCount)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].Key < out[j].Key
	})
	if topN > 0 && topN < len(out) {
		out = out[:topN]
	}
	return out
}

// GazeStats returns totals for one target. Unvisited targets report zeros.
func (s *Snapshot) GazeStats(targetID string) GazeStats {
	for _, p := range s.points {
		if p.TargetID == targetID {
			return GazeStats{TargetID: targetID, DwellTimeMs: p.DwellTimeMs, VisitCount: p.VisitCount}
		}
	}
	return GazeStats{TargetID: targetID}
}

// Issues returns the advisory UI issues.
func (s *Snapshot) Issues() []Issue {
	out := make([]Issue, len(s.issues))
	copy(out, s.issues)
	return out
}

// Len returns the number of heatmap keys.
func (s *Snapshot) Len() int { return len(s.points) }

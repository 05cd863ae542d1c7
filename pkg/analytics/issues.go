package analytics

// IssueKind is an advisory UI signal.
type IssueKind string

const (
	IssueHardToRead IssueKind = "hard-to-read"
	IssueConfusing  IssueKind = "confusing"
)

// Issue flags a target or region whose gaze pattern suggests a usability
// problem.
type Issue struct {
	Kind          IssueKind `json:"kind"`
	Key           string    `json:"key"`
	TargetID      string    `json:"target_id,omitempty"`
	VisitCount    int       `json:"visit_count"`
	DwellTimeMs   int64     `json:"dwell_time_ms"`
	AvgFixationMs float64   `json:"avg_fixation_ms"`
}

// DetectIssues flags hard-to-read and confusing keys among points.
//
// A key is hard-to-read when its average fixation stays below
// HardToReadFixationMs across at least HardToReadMinVisits visits. It is
// confusing when its visits are at least ConfusingVisitRatio times the mean
// across keys while the dwell per visit stays below ConfusingMaxDwellMs.
func DetectIssues(points []HeatmapPoint, cfg Config) []Issue {
	if len(points) == 0 {
		return nil
	}
	total := 0
	for _, p := range points {
		total += p.VisitCount
	}
	meanVisits := float64(total) / float64(len(points))

	var out []Issue
	for _, p := range points {
		if p.VisitCount == 0 || p.FixationCount == 0 {
			continue
		}
		avgFix := float64(p.DwellTimeMs) / float64(p.FixationCount)
		perVisit := float64(p.DwellTimeMs) / float64(p.VisitCount)
		base := Issue{
			Key:           p.Key,
			TargetID:      p.TargetID,
			VisitCount:    p.VisitCount,
			DwellTimeMs:   p.DwellTimeMs,
			AvgFixationMs: avgFix,
		}
		if p.VisitCount >= cfg.HardToReadMinVisits && avgFix < cfg.HardToReadFixationMs {
			is := base
			is.Kind = IssueHardToRead
			out = append(out, is)
		}
		if p.VisitCount >= cfg.ConfusingMinVisits &&
			float64(p.VisitCount) >= cfg.ConfusingVisitRatio*meanVisits &&
			perVisit < cfg.ConfusingMaxDwellMs {
			is := base
			is.Kind = IssueConfusing
			out = append(out, is)
		}
	}
	return out
}

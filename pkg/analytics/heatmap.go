package analytics

import (
	"fmt"
	"math"
	"sort"
)

// Cell is a grid cell in yaw/pitch space.
type Cell struct {
	YawDeg   float64 `json:"yaw_deg"` // Cell center
	PitchDeg float64 `json:"pitch_deg"`
	SizeDeg  float64 `json:"size_deg"`
}

// HeatmapPoint is one aggregated heatmap key.
type HeatmapPoint struct {
	Key           string  `json:"key"`
	TargetID      string  `json:"target_id,omitempty"`
	Cell          *Cell   `json:"cell,omitempty"`
	DwellTimeMs   int64   `json:"dwell_time_ms"`
	VisitCount    int     `json:"visit_count"`
	FixationCount int     `json:"fixation_count"`
	Importance    float64 `json:"importance"`
}

// Importance ranks heatmap keys by attentional weight.
func Importance(dwellTimeMs int64, visitCount int) float64 {
	if dwellTimeMs <= 0 || visitCount <= 0 {
		return 0
	}
	return float64(dwellTimeMs) * math.Sqrt(float64(visitCount))
}

type cellIndex struct{ x, y int }

type heatEntry struct {
	dwellMs   int64
	visits    int
	fixations int
}

// heatmap accumulates fixation dwell per target id, or per grid cell when a
// fixation lands on no target.
type heatmap struct {
	targets  map[string]*heatEntry
	cells    map[cellIndex]*heatEntry
	cellSize float64
	maxCells int

	// Last key a fixation landed on, for visit counting
	lastTarget string
	lastCell   cellIndex
	hasLast    bool
	lastIsCell bool

	compactions int
}

func newHeatmap(cellSize float64, maxCells int) *heatmap {
	return &heatmap{
		targets:  make(map[string]*heatEntry),
		cells:    make(map[cellIndex]*heatEntry),
		cellSize: cellSize,
		maxCells: maxCells,
	}
}

func (h *heatmap) cellOf(yaw, pitch float64) cellIndex {
	return cellIndex{
		x: int(math.Floor(yaw / h.cellSize)),
		y: int(math.Floor(pitch / h.cellSize)),
	}
}

// recordTarget adds a fixation on a registered target.
func (h *heatmap) recordTarget(id string, durationMs int64) {
	e := h.targets[id]
	if e == nil {
		e = &heatEntry{}
		h.targets[id] = e
	}
	if !h.hasLast || h.lastIsCell || h.lastTarget != id {
		e.visits++
	}
	e.dwellMs += durationMs
	e.fixations++
	h.hasLast, h.lastIsCell, h.lastTarget = true, false, id
}

// recordCell adds a fixation off every target.
func (h *heatmap) recordCell(yaw, pitch float64, durationMs int64) {
	idx := h.cellOf(yaw, pitch)
	e := h.cells[idx]
	if e == nil {
		e = &heatEntry{}
		h.cells[idx] = e
	}
	if !h.hasLast || !h.lastIsCell || h.lastCell != idx {
		e.visits++
	}
	e.dwellMs += durationMs
	e.fixations++
	h.hasLast, h.lastIsCell, h.lastCell = true, true, idx
}

// compact doubles the cell size until the grid fits maxCells, merging
// counters. Returns whether anything changed.
func (h *heatmap) compact() bool {
	changed := false
	for len(h.cells) > h.maxCells {
		merged := make(map[cellIndex]*heatEntry, len(h.cells)/2+1)
		for idx, e := range h.cells {
			to := cellIndex{x: floorDiv2(idx.x), y: floorDiv2(idx.y)}
			m := merged[to]
			if m == nil {
				m = &heatEntry{}
				merged[to] = m
			}
			m.dwellMs += e.dwellMs
			m.visits += e.visits
			m.fixations += e.fixations
		}
		h.cells = merged
		h.cellSize *= 2
		h.lastCell = cellIndex{x: floorDiv2(h.lastCell.x), y: floorDiv2(h.lastCell.y)}
		h.compactions++
		changed = true
	}
	return changed
}

func floorDiv2(i int) int {
	if i >= 0 {
		return i / 2
	}
	return -((-i + 1) / 2)
}

// points returns every key with raw counters. Importance is left zero and
// filled in at query time.
func (h *heatmap) points() []HeatmapPoint {
	out := make([]HeatmapPoint, 0, len(h.targets)+len(h.cells))
	for id, e := range h.targets {
		out = append(out, HeatmapPoint{
			Key:           "target:" + id,
			TargetID:      id,
			DwellTimeMs:   e.dwellMs,
			VisitCount:    e.visits,
			FixationCount: e.fixations,
		})
	}
	for idx, e := range h.cells {
		c := &Cell{
			YawDeg:   (float64(idx.x) + 0.5) * h.cellSize,
			PitchDeg: (float64(idx.y) + 0.5) * h.cellSize,
			SizeDeg:  h.cellSize,
		}
		out = append(out, HeatmapPoint{
			Key:           fmt.Sprintf("cell:%g:%d:%d", h.cellSize, idx.x, idx.y),
			Cell:          c,
			DwellTimeMs:   e.dwellMs,
			VisitCount:    e.visits,
			FixationCount: e.fixations,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

package models

import (
	"fmt"
	"time"
)

// Thresholds are the two independent filters applied when segmenting pulls.
type Thresholds struct {
	// MinThrottle marks a row as in-pull when Throttle Pos (%) >= MinThrottle.
	MinThrottle float64 `json:"minThrottle" yaml:"min_throttle"`
	// TimeFilter drops pulls whose duration is <= TimeFilter seconds.
	TimeFilter float64 `json:"timeFilter" yaml:"time_filter"`
}

// Pull is one maximal run of rows at or above the throttle threshold.
type Pull struct {
	Number   int      `json:"number"`   // 1-based position in the result
	StartRow int      `json:"startRow"` // first row in the parent log
	EndRow   int      `json:"endRow"`   // last row in the parent log, inclusive
	Data     *Datalog `json:"-"`
}

// Len returns the number of rows in the pull.
func (p Pull) Len() int {
	return p.Data.Len()
}

// PullSummary is the derived start time and duration of one pull.
type PullSummary struct {
	Start    float64 `json:"start" msgpack:"start"`
	Duration float64 `json:"duration" msgpack:"duration"`
}

// StartText formats the start time the way pull pickers display it.
func (s PullSummary) StartText() string {
	return fmt.Sprintf("Start: %.2f sec", s.Start)
}

// DurationText formats the duration the way pull pickers display it.
func (s PullSummary) DurationText() string {
	return fmt.Sprintf("Duration: %.2f sec", s.Duration)
}

// PullLabel is the display title of pull n.
func PullLabel(n int) string {
	return fmt.Sprintf("Pull %d", n)
}

// PullSet is the result of one segmentation call. A new PullSet replaces
// the previous one whenever thresholds change.
type PullSet struct {
	Thresholds Thresholds          `json:"thresholds"`
	Pulls      []Pull              `json:"pulls"`
	Summary    map[int]PullSummary `json:"summary"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// Empty reports whether no pull survived the filters.
func (ps *PullSet) Empty() bool {
	return ps == nil || len(ps.Pulls) == 0
}

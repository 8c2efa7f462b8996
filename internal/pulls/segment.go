// Package pulls segments a datalog into pulls: maximal runs of rows where
// throttle position stays at or above a threshold, kept only when they last
// longer than a time filter.
package pulls

import (
	"time"

	"github.com/datalog-plotter/backend/internal/models"
)

// run is a span of parent rows, both ends inclusive.
type run struct {
	start, end int
}

// Validate checks that log carries the channels segmentation reads.
func Validate(log *models.Datalog) error {
	var missing []string
	for _, ch := range []string{models.TimeChannel, models.ThrottleChannel} {
		if log == nil || !log.HasChannel(ch) {
			missing = append(missing, ch)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}

	// Every column is sliced per pull, so all must match the time column.
	times, ok := log.Column(models.TimeChannel)
	if !ok {
		return &ValidationError{Ragged: []string{models.TimeChannel}}
	}
	var ragged []string
	for c, ch := range log.Channels {
		if c >= len(log.Values) || len(log.Values[c]) != len(times) {
			ragged = append(ragged, ch)
		}
	}
	if len(ragged) > 0 {
		return &ValidationError{Ragged: ragged}
	}
	return nil
}

// Segment returns the pulls of log in chronological order. A row is in a
// pull iff its throttle reading is >= minThrottle; a run of such rows is
// kept iff time(last) - time(first) > timeFilter. Each pull's Data is a
// copy re-indexed from row 0, so log is never modified. No qualifying run
// yields an empty slice, not an error.
func Segment(log *models.Datalog, minThrottle, timeFilter float64) ([]models.Pull, error) {
	if err := Validate(log); err != nil {
		return nil, err
	}
	times, _ := log.Column(models.TimeChannel)
	throttle, _ := log.Column(models.ThrottleChannel)

	pulls := make([]models.Pull, 0)
	for _, r := range findRuns(throttle, minThrottle) {
		duration := times[r.end] - times[r.start]
		// Negated so a NaN duration is dropped too.
		if !(duration > timeFilter) {
			continue
		}
		pulls = append(pulls, models.Pull{
			Number:   len(pulls) + 1,
			StartRow: r.start,
			EndRow:   r.end,
			Data:     log.Slice(r.start, r.end+1),
		})
	}
	return pulls, nil
}

// findRuns run-length encodes the in-pull classification of each reading
// and returns only the in-pull runs. NaN readings are never in a pull.
func findRuns(throttle []float64, minThrottle float64) []run {
	var runs []run
	start := -1
	for i, v := range throttle {
		inPull := v >= minThrottle
		switch {
		case inPull && start < 0:
			start = i
		case !inPull && start >= 0:
			runs = append(runs, run{start: start, end: i - 1})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, run{start: start, end: len(throttle) - 1})
	}
	return runs
}

// Summarize derives the start time and duration of each pull, keyed by its
// 1-based position in pulls.
func Summarize(pulls []models.Pull) map[int]models.PullSummary {
	summary := make(map[int]models.PullSummary, len(pulls))
	for i, p := range pulls {
		times, ok := p.Data.Column(models.TimeChannel)
		if !ok || len(times) == 0 {
			continue
		}
		first, last := times[0], times[len(times)-1]
		summary[i+1] = models.PullSummary{Start: first, Duration: last - first}
	}
	return summary
}

// Analyze segments log and summarizes the result in one PullSet.
func Analyze(log *models.Datalog, th models.Thresholds) (*models.PullSet, error) {
	pulls, err := Segment(log, th.MinThrottle, th.TimeFilter)
	if err != nil {
		return nil, err
	}
	return &models.PullSet{
		Thresholds: th,
		Pulls:      pulls,
		Summary:    Summarize(pulls),
		CreatedAt:  time.Now(),
	}, nil
}

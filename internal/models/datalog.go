// Package models contains domain types for the Datalog Pull Plotter.
package models

import "math"

const (
	// TimeChannel is the timestamp column, in seconds since the log started.
	TimeChannel = "Time (sec)"
	// ThrottleChannel is the throttle position column used to detect pulls.
	ThrottleChannel = "Throttle Pos (%)"
)

// Datalog is a column-labeled time series decoded from one datalog file.
// Values are stored column-major: Values[c][r] is channel c at row r.
// Empty cells are NaN.
type Datalog struct {
	Channels []string    `json:"channels" msgpack:"channels"`
	Values   [][]float64 `json:"-" msgpack:"values"`
	Info     string      `json:"info,omitempty" msgpack:"info,omitempty"`

	index map[string]int
}

// NewDatalog builds a Datalog and indexes its channels by name.
// If a channel name repeats, the first occurrence wins lookups.
func NewDatalog(channels []string, values [][]float64, info string) *Datalog {
	d := &Datalog{
		Channels: channels,
		Values:   values,
		Info:     info,
		index:    make(map[string]int, len(channels)),
	}
	for i, ch := range channels {
		if _, dup := d.index[ch]; !dup {
			d.index[ch] = i
		}
	}
	return d
}

// Len returns the number of rows.
func (d *Datalog) Len() int {
	if d == nil || len(d.Values) == 0 {
		return 0
	}
	return len(d.Values[0])
}

func (d *Datalog) channelIndex(name string) (int, bool) {
	if d.index != nil {
		i, ok := d.index[name]
		return i, ok
	}
	for i, ch := range d.Channels {
		if ch == name {
			return i, true
		}
	}
	return -1, false
}

// HasChannel reports whether the log carries the named channel.
func (d *Datalog) HasChannel(name string) bool {
	_, ok := d.channelIndex(name)
	return ok
}

// Column returns the readings of one channel. The slice is shared with the
// Datalog and must not be modified.
func (d *Datalog) Column(name string) ([]float64, bool) {
	i, ok := d.channelIndex(name)
	if !ok || i >= len(d.Values) {
		return nil, false
	}
	return d.Values[i], true
}

// Slice copies rows [start, end) into a standalone Datalog whose rows are
// re-indexed from 0. The receiver is not modified.
func (d *Datalog) Slice(start, end int) *Datalog {
	values := make([][]float64, len(d.Values))
	for c, col := range d.Values {
		values[c] = append([]float64(nil), col[start:end]...)
	}
	channels := append([]string(nil), d.Channels...)
	return NewDatalog(channels, values, d.Info)
}

// TimeRange returns the first and last finite Time (sec) readings. It
// reports false when the log has no finite time reading.
func (d *Datalog) TimeRange() (*TimeRange, bool) {
	times, ok := d.Column(TimeChannel)
	if !ok {
		return nil, false
	}
	first, last := -1, -1
	for i, t := range times {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first < 0 {
		return nil, false
	}
	return &TimeRange{Start: times[first], End: times[last]}, true
}

// TimeRange is a window of log time in seconds.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End - Start.
func (r TimeRange) Duration() float64 {
	return r.End - r.Start
}

// NullableRow converts row i to a map where NaN readings become nil, which
// keeps it encodable as JSON.
func (d *Datalog) NullableRow(i int) map[string]*float64 {
	row := make(map[string]*float64, len(d.Channels))
	for c, ch := range d.Channels {
		if _, seen := row[ch]; seen {
			continue
		}
		v := d.Values[c][i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			row[ch] = nil
			continue
		}
		row[ch] = &v
	}
	return row
}

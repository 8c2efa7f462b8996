package pulls

import (
	"math"

	"github.com/datalog-plotter/backend/internal/models"
)

// Bounds are the inclusive ranges accepted for each threshold.
type Bounds struct {
	MinThrottle   float64 `yaml:"min_throttle"`
	MaxThrottle   float64 `yaml:"max_throttle"`
	MinTimeFilter float64 `yaml:"min_time_filter"`
	MaxTimeFilter float64 `yaml:"max_time_filter"`
}

// DefaultBounds returns the ranges offered to users picking thresholds.
func DefaultBounds() Bounds {
	return Bounds{
		MinThrottle:   1,
		MaxThrottle:   100,
		MinTimeFilter: 0.001,
		MaxTimeFilter: 10,
	}
}

// DefaultThresholds returns the thresholds used when none are given.
func DefaultThresholds() models.Thresholds {
	return models.Thresholds{MinThrottle: 50, TimeFilter: 0.5}
}

// Clamp snaps each threshold into its range. NaN snaps to the lower bound.
func Clamp(th models.Thresholds, b Bounds) models.Thresholds {
	return models.Thresholds{
		MinThrottle: clamp(th.MinThrottle, b.MinThrottle, b.MaxThrottle),
		TimeFilter:  clamp(th.TimeFilter, b.MinTimeFilter, b.MaxTimeFilter),
	}
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v) || v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

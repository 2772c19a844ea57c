package tracker

import (
	"math"
	"time"

	"github.com/samber/lo"
)

const (
	MinMinute     = 1
	MaxMinute     = 3
	DefaultMinute = 2

	minute = time.Minute
)

// Interval turns a poll interval in minutes into the tick duration.
// NaN, zero and negative values fall back to DefaultMinute, anything else is
// clamped to [MinMinute, MaxMinute].
func Interval(minutes float64) time.Duration {
	if math.IsNaN(minutes) || minutes <= 0 {
		minutes = DefaultMinute
	}
	minutes = lo.Clamp(minutes, MinMinute, MaxMinute)
	return time.Duration(minutes * float64(minute))
}

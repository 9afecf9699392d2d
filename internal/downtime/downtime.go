// Package downtime measures how long a machine or line stayed down.
package downtime

import (
	"time"

	"github.com/ukydev/plant-maintenance/internal/clock"
)

// Minutes returns whole minutes between start and end, truncated toward zero.
// A nil start means the entity never went down. A nil end means the interval is
// still open and is measured against now. Negative intervals count as zero.
func Minutes(start, end *time.Time, now time.Time) int64 {
	if start == nil {
		return 0
	}
	stop := now
	if end != nil {
		stop = *end
	}
	m := int64(stop.Sub(*start) / time.Minute)
	if m < 0 {
		return 0
	}
	return m
}

// Calculator binds Minutes to a clock.
type Calculator struct {
	Clock clock.Clock
}

// NewCalculator returns a calculator on c, or the system clock when c is nil.
func NewCalculator(c clock.Clock) Calculator {
	if c == nil {
		c = clock.Real{}
	}
	return Calculator{Clock: c}
}

// Minutes measures the interval using the calculator's clock for open ends.
func (c Calculator) Minutes(start, end *time.Time) int64 {
	return Minutes(start, end, c.Clock.Now())
}

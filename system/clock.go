package system

import (
	"time"

	"github.com/rickb777/date/v2/timespan"
)

// TimeSpan re-exports the span type used for measured intervals.
type TimeSpan = timespan.TimeSpan

const epsilon = time.Millisecond

// Clock is the capability boundary to a time source.
type Clock interface {
	CurrentTimeMillis() int64
	Now() time.Time
	// Span returns the interval from a past instant to the clock's now.
	Span(from time.Time) TimeSpan
}

// Around returns a span that safely contains t, absorbing clock
// granularity.
func Around(t time.Time) TimeSpan {
	return timespan.BetweenTimes(t.Add(-1*epsilon), t.Add(epsilon))
}

// SystemClock reads the host's wall clock.
type SystemClock struct{}

func (SystemClock) CurrentTimeMillis() int64 {
	return time.Now().UnixMilli()
}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Span(from time.Time) TimeSpan {
	return timespan.BetweenTimes(from, time.Now())
}

// FixedClock always reports the same instant. For tests.
type FixedClock struct {
	Instant time.Time
}

func (c FixedClock) CurrentTimeMillis() int64 { return c.Instant.UnixMilli() }
func (c FixedClock) Now() time.Time           { return c.Instant }

func (c FixedClock) Span(from time.Time) TimeSpan {
	return timespan.BetweenTimes(from, c.Instant)
}

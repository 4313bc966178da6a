// Package clock pins the service-day boundary. Every daily counter, the
// duplicate-active check, and the "not from today" guard partition on the
// DateKey produced here, so the facility timezone is configured once and
// nothing else in the codebase calls time.Now for day math.
package clock

import "time"

const dateKeyLayout = "2006-01-02"

type Clock interface {
	Now() time.Time
	// DateKey returns the service-day key (YYYY-MM-DD) for t in the facility
	// timezone.
	DateKey(t time.Time) string
}

type facilityClock struct {
	loc *time.Location
}

// New returns a Clock for the given IANA timezone name. An empty or invalid
// name falls back to UTC.
func New(tz string) Clock {
	loc := time.UTC
	if tz != "" {
		if parsed, err := time.LoadLocation(tz); err == nil {
			loc = parsed
		}
	}
	return &facilityClock{loc: loc}
}

func (c *facilityClock) Now() time.Time {
	return time.Now().UTC()
}

func (c *facilityClock) DateKey(t time.Time) string {
	return t.In(c.loc).Format(dateKeyLayout)
}

// Fixed returns a Clock frozen at now, for tests.
func Fixed(now time.Time, tz string) Clock {
	loc := time.UTC
	if tz != "" {
		if parsed, err := time.LoadLocation(tz); err == nil {
			loc = parsed
		}
	}
	return &fixedClock{now: now, loc: loc}
}

type fixedClock struct {
	now time.Time
	loc *time.Location
}

func (c *fixedClock) Now() time.Time { return c.now }

func (c *fixedClock) DateKey(t time.Time) string {
	return t.In(c.loc).Format(dateKeyLayout)
}

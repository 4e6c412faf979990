package services

import (
	"fmt"
	"time"
)

const dayKeyLayout = "2006-01-02"

// DayClock maps instants onto calendar days of one reference timezone.
type DayClock struct {
	loc *time.Location
	now func() time.Time
}

// NewDayClock returns a clock for loc. A nil now uses time.Now.
func NewDayClock(loc *time.Location, now func() time.Time) *DayClock {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &DayClock{loc: loc, now: now}
}

// Now returns the current instant in UTC.
func (c *DayClock) Now() time.Time {
	return c.now().UTC()
}

// DayKey formats t as a calendar day in the reference timezone.
func (c *DayClock) DayKey(t time.Time) string {
	return t.In(c.loc).Format(dayKeyLayout)
}

// Today is the day key of Now.
func (c *DayClock) Today() string {
	return c.DayKey(c.now())
}

// ShiftDay returns the day key days away from key.
func (c *DayClock) ShiftDay(key string, days int) string {
	d, err := time.ParseInLocation(dayKeyLayout, key, c.loc)
	if err != nil {
		return ""
	}
	return d.AddDate(0, 0, days).Format(dayKeyLayout)
}

// WeekKey returns the ISO year-week of the day key, e.g. "2026-W42".
func (c *DayClock) WeekKey(key string) string {
	d, err := time.ParseInLocation(dayKeyLayout, key, c.loc)
	if err != nil {
		return ""
	}
	year, week := d.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// Package temporal holds the calendar rules of the call center: the civil
// timezone, business hours and the minute arithmetic behind reactivity.
package temporal

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kursadbilgin/relance-engine/internal/domain"
)

const (
	DefaultTimezone = "Europe/Paris"

	openingHour         = 9
	weekdayClosingHour  = 19
	weekendClosingHour  = 18
	crmLayout           = "02/01/2006 15:04"
	maxDSTShiftDetected = 2 * time.Hour
)

var civilLayouts = []string{
	crmLayout,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Clock converts between instants and the configured civil timezone.
// Instants returned by Clock are always in UTC.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc, now: time.Now}
}

// LoadClock resolves an IANA timezone name, defaulting to Europe/Paris.
func LoadClock(name string) (*Clock, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return NewClock(loc), nil
}

// WithNow returns a copy of the clock reading the current time from fn.
func (c *Clock) WithNow(fn func() time.Time) *Clock {
	return &Clock{loc: c.loc, now: fn}
}

func (c *Clock) Location() *time.Location { return c.loc }

func (c *Clock) Now() time.Time { return c.now().UTC() }

func (c *Clock) InBusinessHours(t time.Time) bool {
	return InBusinessHours(t, c.loc)
}

// InBusinessHours reports whether t, read in loc, falls within opening hours:
// Monday to Friday 09:00-19:00, Saturday and Sunday 09:00-18:00. The closing hour
// is exclusive.
func InBusinessHours(t time.Time, loc *time.Location) bool {
	local := t.In(loc)
	closing := weekdayClosingHour
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		closing = weekendClosingHour
	}
	h := local.Hour()
	return h >= openingHour && h < closing
}

// ReactivityMinutes is the whole number of minutes from created to first, floored
// toward negative infinity.
func ReactivityMinutes(created, first time.Time) int64 {
	d := first.Sub(created)
	m := d / time.Minute
	if d%time.Minute < 0 {
		m--
	}
	return int64(m)
}

// ParseCivil reads a timestamp crossing the API boundary. RFC 3339 values carry their
// own offset; every other accepted layout is a civil time in the clock's timezone.
// Civil times that do not exist or exist twice around a DST transition are rejected.
func (c *Clock) ParseCivil(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: timestamp is required", domain.ErrValidation)
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}

	for _, layout := range civilLayouts {
		wall, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return c.resolveCivil(wall, s)
	}

	return time.Time{}, fmt.Errorf("%w: unrecognised timestamp %q (expected DD/MM/YYYY HH:mm or YYYY-MM-DDTHH:mm)", domain.ErrValidation, s)
}

func (c *Clock) resolveCivil(wall time.Time, raw string) (time.Time, error) {
	t := time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), 0, c.loc)

	if !sameWallClock(t.In(c.loc), wall) {
		return time.Time{}, fmt.Errorf("%w: %q does not exist in %s (DST gap)", domain.ErrValidation, raw, c.loc)
	}

	if shift := c.offsetShiftAround(t); shift != 0 {
		for _, alt := range []time.Time{t.Add(shift), t.Add(-shift)} {
			if sameWallClock(alt.In(c.loc), wall) {
				return time.Time{}, fmt.Errorf("%w: %q is ambiguous in %s (DST overlap)", domain.ErrValidation, raw, c.loc)
			}
		}
	}

	return t.UTC(), nil
}

// offsetShiftAround returns the size of a UTC offset change close to t, or zero.
func (c *Clock) offsetShiftAround(t time.Time) time.Duration {
	_, before := t.Add(-maxDSTShiftDetected).In(c.loc).Zone()
	_, after := t.Add(maxDSTShiftDetected).In(c.loc).Zone()
	diff := time.Duration(after-before) * time.Second
	if diff < 0 {
		diff = -diff
	}
	return diff
}

func sameWallClock(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd &&
		a.Hour() == b.Hour() && a.Minute() == b.Minute() && a.Second() == b.Second()
}

// FormatCivil renders t in the clock's timezone with the CRM layout.
func (c *Clock) FormatCivil(t time.Time) string {
	return t.In(c.loc).Format(crmLayout)
}

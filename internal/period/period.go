// Package period implements the YYYY-MM billing period used as the invoice key.
package period

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Period is a calendar month in the literal form "YYYY-MM". The value is
// stored verbatim in the record store, so it stays a string type end to end.
type Period string

var pattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

var ErrInvalidPeriod = errors.New("invalid_period")

// Parse validates the YYYY-MM format and returns the typed period.
func Parse(raw string) (Period, error) {
	if !pattern.MatchString(raw) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
	}
	return Period(raw), nil
}

// FromTime returns the period containing t, evaluated in UTC.
func FromTime(t time.Time) Period {
	return Period(t.UTC().Format("2006-01"))
}

func (p Period) String() string { return string(p) }

// Bounds returns the first instant of the month and the first instant of the
// next month, so membership is start <= t < end.
func (p Period) Bounds() (start, end time.Time) {
	t, err := time.Parse("2006-01", string(p))
	if err != nil {
		return time.Time{}, time.Time{}
	}
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// Contains reports whether t falls inside the month.
func (p Period) Contains(t time.Time) bool {
	start, end := p.Bounds()
	if start.IsZero() {
		return false
	}
	t = t.UTC()
	return !t.Before(start) && t.Before(end)
}

// Prev returns the preceding month. Scheduled runs bill the month that just
// closed.
func (p Period) Prev() Period {
	start, _ := p.Bounds()
	return FromTime(start.AddDate(0, -1, 0))
}

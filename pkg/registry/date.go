package registry

import (
	"time"

	"github.com/regdelta/regdelta/pkg/errors"
)

// Date is a calendar date. Snapshots and change records are keyed by
// calendar date, never by time of day.
type Date struct {
	t time.Time
}

// ParseDate parses an ISO-8601 calendar date (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(canonicalDateFormat, s)
	if err != nil {
		return Date{}, errors.NewValidationError("date", s, "expected YYYY-MM-DD")
	}
	return Date{t: t}, nil
}

// DateOf truncates a time to its calendar date in UTC.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return Date{t: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

// Today returns the current calendar date in UTC.
func Today() Date {
	return DateOf(time.Now())
}

// String renders the date in ISO-8601 form.
func (d Date) String() string {
	return d.t.Format(canonicalDateFormat)
}

// AddDays returns a date offset by n days (negative for the past).
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

// Before reports whether d falls before other.
func (d Date) Before(other Date) bool {
	return d.t.Before(other.t)
}

// After reports whether d falls after other.
func (d Date) After(other Date) bool {
	return d.t.After(other.t)
}

// Equal reports whether two dates name the same day.
func (d Date) Equal(other Date) bool {
	return d.t.Equal(other.t)
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.t.IsZero()
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Time returns the date as a UTC midnight time.
func (d Date) Time() time.Time {
	return d.t
}

// Package dates provides a calendar date value used for grant windows and
// repayment due dates. A Date has no time of day and no zone.
package dates

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const layout = "2006-01-02"

// Date is a calendar day stored as midnight UTC.
type Date struct {
	t time.Time
}

// New returns the given calendar day.
func New(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Of returns the calendar day of t in t's own location.
func Of(t time.Time) Date {
	y, m, d := t.Date()
	return New(y, m, d)
}

// ParseError reports a value that is not a valid calendar date.
type ParseError struct {
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", e.Value)
}

// IsParseError reports whether err carries a *ParseError.
func IsParseError(err error) bool {
	var perr *ParseError
	return errors.As(err, &perr)
}

// Parse reads a YYYY-MM-DD value.
func Parse(s string) (Date, error) {
	t, err := time.Parse(layout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, &ParseError{Value: s}
	}
	return Of(t), nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Date {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) IsZero() bool { return d.t.IsZero() }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(layout)
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time { return d.t }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }

// AddDays moves the date by n calendar days.
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// AddMonths moves the date by n months, normalising overflow like time.AddDate.
func (d Date) AddMonths(n int) Date { return Date{t: d.t.AddDate(0, n, 0)} }

// DaysSince returns d - o in whole days.
func (d Date) DaysSince(o Date) int {
	return int(d.t.Sub(o.t).Hours() / 24)
}

// Within reports whether from <= d <= to.
func (d Date) Within(from, to Date) bool {
	return !d.Before(from) && !d.After(to)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return &ParseError{Value: string(b)}
	}
	if strings.TrimSpace(s) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.t, nil
}

// Scan implements sql.Scanner for date columns.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
	case time.Time:
		*d = Of(v)
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*d = parsed
	case []byte:
		parsed, err := Parse(string(v))
		if err != nil {
			return err
		}
		*d = parsed
	default:
		return fmt.Errorf("dates: cannot scan %T", src)
	}
	return nil
}

// AddMonthsClamped adds n months keeping the day of month where possible;
// days past the end of the target month clamp to its last day.
func (d Date) AddMonthsClamped(n int) Date {
	y, m, day := d.t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return Date{t: time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)}
}

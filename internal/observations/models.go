package observations

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the canonical on-disk and wire form of a Date.
const DateLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// EarliestStart is the oldest date accepted as a cache start date.
var EarliestStart = NewDate(1900, time.January, 1)

// Date is a calendar day without a time component. Internally it is held as
// midnight UTC so that two Dates for the same day always compare equal.
type Date struct {
	t time.Time
}

// NewDate builds a Date from its parts. Out-of-range values are normalized the
// way time.Date normalizes them.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the UTC calendar day containing t.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return Date{t: t}, nil
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d.t.IsZero() }

// Time returns midnight UTC of d.
func (d Date) Time() time.Time { return d.t }

func (d Date) String() string { return d.t.Format(DateLayout) }

// AddDays returns d shifted by n days (n may be negative).
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// CachedDay is the unit of storage: the upstream document for one date.
type CachedDay struct {
	Date    Date            `json:"date"`
	Payload json.RawMessage `json:"payload"`
}

// DateRange is an inclusive span of days. A range whose To is before From is
// empty.
type DateRange struct {
	From Date `json:"from"`
	To   Date `json:"to"`
}

// Days returns the number of days in r, or 0 for an empty range.
func (r DateRange) Days() int {
	if r.To.Before(r.From) {
		return 0
	}
	return int((r.To.t.Unix()-r.From.t.Unix())/secondsPerDay) + 1
}

// Dates lists every day in r in ascending order.
func (r DateRange) Dates() []Date {
	n := r.Days()
	out := make([]Date, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.From.AddDays(i))
	}
	return out
}

// Contains reports whether d falls inside r.
func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.From) && !d.After(r.To)
}

// Coverage splits a window into the days that are cached and the ones that
// are not.
type Coverage struct {
	Window  DateRange `json:"window"`
	Present []Date    `json:"present"`
	Missing []Date    `json:"missing"`
}

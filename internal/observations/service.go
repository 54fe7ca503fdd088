package observations

import (
	"fmt"

	"github.com/jonboulle/clockwork"
)

// DefaultPickerDays is the span offered to date pickers when nothing is cached yet.
const DefaultPickerDays = 30

// Today resolves the current UTC calendar day from clock. Every component that
// needs "today" goes through here so the cache window and the UI defaults agree.
func Today(clock clockwork.Clock) Date {
	return DateOf(clock.Now())
}

// Window returns the reconciliation window [start, today]. It reports false when
// start is unset, and the returned range is empty when start is in the future.
func Window(start Date, today Date) (DateRange, bool) {
	if start.IsZero() {
		return DateRange{}, false
	}
	return DateRange{From: start, To: today}, true
}

// Service is the read side over the day store used by the HTTP API and CLI.
type Service struct {
	store DayStore
	clock clockwork.Clock
	start Date
}

// NewService creates a new Service. start may be the zero Date when background
// caching is disabled.
func NewService(store DayStore, clock clockwork.Clock, start Date) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		store: store,
		clock: clock,
		start: start,
	}
}

// CachedDateRange returns the min and max cached dates. ok is false when the
// cache is empty or absent. Safe to call before the worker has ever run.
func (s *Service) CachedDateRange() (DateRange, bool, error) {
	return s.store.ScanDateRange()
}

// DefaultPickerRange is the range a date picker should start from: the cached
// range when there is one, otherwise the last DefaultPickerDays ending today.
func (s *Service) DefaultPickerRange() DateRange {
	if r, ok, err := s.store.ScanDateRange(); err == nil && ok {
		return r
	}
	today := Today(s.clock)
	return DateRange{From: today.AddDays(-(DefaultPickerDays - 1)), To: today}
}

// Window returns the current reconciliation window.
func (s *Service) Window() (DateRange, bool) {
	return Window(s.start, Today(s.clock))
}

// Day reads a single cached day.
func (s *Service) Day(date Date) (CachedDay, error) {
	payload, err := s.store.Read(date)
	if err != nil {
		return CachedDay{}, err
	}
	return CachedDay{Date: date, Payload: payload}, nil
}

// Coverage reports which days of window are cached.
func (s *Service) Coverage(window DateRange) (Coverage, error) {
	if window.To.Before(window.From) {
		return Coverage{}, fmt.Errorf("window end %s is before start %s", window.To, window.From)
	}

	dates, err := s.store.Dates()
	if err != nil {
		return Coverage{}, err
	}

	present := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		if window.Contains(d) {
			present[d.String()] = struct{}{}
		}
	}

	cov := Coverage{
		Window:  window,
		Present: []Date{},
		Missing: []Date{},
	}
	for _, d := range window.Dates() {
		if _, ok := present[d.String()]; ok {
			cov.Present = append(cov.Present, d)
		} else {
			cov.Missing = append(cov.Missing, d)
		}
	}
	return cov, nil
}

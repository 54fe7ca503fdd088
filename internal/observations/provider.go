package observations

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrTransport covers network errors and timeouts.
	ErrTransport = errors.New("upstream transport failure")
	// ErrCircuitOpen is returned without contacting the upstream while the
	// circuit breaker is open.
	ErrCircuitOpen = errors.New("upstream circuit open")
	// ErrUpstreamRejected is returned when the upstream answers with a non-2xx status.
	ErrUpstreamRejected = errors.New("upstream rejected request")
	// ErrMalformedResponse is returned when the body is not a JSON object.
	ErrMalformedResponse = errors.New("malformed upstream response")
	// ErrStorage wraps local filesystem failures on write.
	ErrStorage = errors.New("day store failure")
	// ErrDayNotFound is returned when no payload is cached for a date.
	ErrDayNotFound = errors.New("no cached observations for date")
)

// Fetcher abstracts the upstream observation source (DMI metObs).
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, date Date) (json.RawMessage, error)
}

// DayStore is the contract the on-disk store (and its read-through cache) satisfies.
type DayStore interface {
	Exists(date Date) bool
	Read(date Date) (json.RawMessage, error)
	Write(date Date, payload json.RawMessage) error
	ScanDateRange() (DateRange, bool, error)
	Dates() ([]Date, error)
}

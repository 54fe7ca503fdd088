package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/dmi-observation-cache/internal/observations"
)

// DefaultOpenTimeout is how long an open circuit rejects calls.
const DefaultOpenTimeout = 2 * time.Minute

// BreakerConfig controls when the circuit opens in front of the upstream.
type BreakerConfig struct {
	// ConsecutiveFailures before the circuit opens. Zero disables tripping.
	// Only transport failures count; a non-2xx answer proves the upstream is up.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the circuit stays open before a probe is let through.
	OpenTimeout time.Duration
}

// UpstreamError carries the status of a rejected upstream request.
type UpstreamError struct {
	StatusCode int
	Status     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %s", e.Status)
}

func (e *UpstreamError) Unwrap() error {
	return observations.ErrUpstreamRejected
}

var errNoHTTPClient = errors.New("http client not configured")

func newBreaker(name string, cfg BreakerConfig, onChange func(name string, from, to gobreaker.State)) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful:  countsAsHealthy,
		OnStateChange: onChange,
	})
}

// countsAsHealthy keeps per-day rejections, such as dates the upstream has no
// data for, from tripping the breaker.
func countsAsHealthy(err error) bool {
	return err == nil || errors.Is(err, observations.ErrUpstreamRejected)
}

// doRequest executes one request through the circuit breaker. There are no
// retries: a failed day is picked up again by the next reconciliation pass.
//
// Returned errors wrap observations.ErrTransport, ErrUpstreamRejected or
// ErrCircuitOpen.
func doRequest(
	ctx context.Context,
	client *http.Client,
	cb *gobreaker.CircuitBreaker,
	buildRequest func(ctx context.Context) (*http.Request, error),
) (*http.Response, error) {
	if client == nil {
		return nil, errNoHTTPClient
	}

	req, err := buildRequest(ctx)
	if err != nil {
		return nil, err
	}

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := client.Do(req)
		if execErr != nil {
			return nil, fmt.Errorf("%w: %v", observations.ErrTransport, execErr)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, &UpstreamError{StatusCode: resp.StatusCode, Status: resp.Status}
		}
		return resp, nil
	})
	if err != nil {
		// Open circuit: the request never left the process.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", observations.ErrCircuitOpen, err)
		}
		return nil, err
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return resp, nil
}

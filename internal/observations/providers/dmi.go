package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/dmi-observation-cache/internal/observations"
)

// DefaultDMIURL is the DMI metObs observation collection endpoint.
const DefaultDMIURL = "https://dmigw.govcloud.dk/v2/metObs/collections/observation/items"

// maxBodyBytes caps a single day's document.
const maxBodyBytes = 64 << 20

// DMIProvider implements observations.Fetcher for the DMI metObs API.
type DMIProvider struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
	timeout time.Duration
	circuit *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// DMIConfig bundles the settings NewDMIProvider needs.
type DMIConfig struct {
	BaseURL string
	APIKey  string
	// Timeout bounds one request, including reading the body.
	Timeout time.Duration
	Breaker BreakerConfig
}

func NewDMIProvider(client *http.Client, cfg DMIConfig, logger *slog.Logger) *DMIProvider {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultDMIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	p := &DMIProvider{
		name:    "dmi",
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
	p.circuit = newBreaker("dmi", cfg.Breaker, func(name string, from, to gobreaker.State) {
		logger.Warn("dmi: circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	})
	return p
}

func (p *DMIProvider) Name() string {
	return p.name
}

// Fetch retrieves the observation document for date. The body must be a JSON
// object; its content is not inspected further.
func (p *DMIProvider) Fetch(ctx context.Context, date observations.Date) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("datetime", date.Time().Format("2006-01-02T15:04:05Z"))
		if p.apiKey != "" {
			values.Set("api-key", p.apiKey)
		}

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	p.logger.Debug("dmi: fetching observations", "date", date.String())

	resp, err := doRequest(ctx, p.client, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body for %s: %v", observations.ErrTransport, date, err)
	}

	if err := checkObject(body); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", observations.ErrMalformedResponse, date, err)
	}
	return json.RawMessage(body), nil
}

// checkObject verifies that body is a single well-formed JSON object.
func checkObject(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty body")
	}
	if trimmed[0] != '{' {
		return fmt.Errorf("body is not a JSON object")
	}
	if !json.Valid(trimmed) {
		return fmt.Errorf("body is not valid JSON")
	}
	return nil
}

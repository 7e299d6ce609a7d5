package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/model"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/resilience"
)

// Option configures the HTTP provider.
type Option func(*httpProvider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *httpProvider) {
		p.http = hc
	}
}

// WithAPIKey sets the bearer token sent on every request.
func WithAPIKey(key string) Option {
	return func(p *httpProvider) {
		p.apiKey = key
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(p *httpProvider) {
		p.retry = cfg
	}
}

type httpProvider struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewHTTP creates a Provider backed by the customer-data HTTP API at baseURL.
func NewHTTP(baseURL string, opts ...Option) Provider {
	p := &httpProvider{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type customerListResponse struct {
	Customers []struct {
		ID string `json:"id"`
	} `json:"customers"`
}

type factorScoresResponse struct {
	Scores map[string]float64 `json:"scores"`
}

type customerContextResponse struct {
	ContractEndDate *time.Time `json:"contract_end_date"`
	LastActivityAt  *time.Time `json:"last_activity_at"`
	LatestCSATScore *float64   `json:"latest_csat_score"`
}

func (p *httpProvider) ListCustomers(ctx context.Context) ([]string, error) {
	var parsed customerListResponse
	if err := p.getJSON(ctx, "/v1/customers", "", &parsed); err != nil {
		return nil, eris.Wrap(err, "provider: list customers")
	}
	ids := make([]string, 0, len(parsed.Customers))
	for _, c := range parsed.Customers {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (p *httpProvider) FactorScores(ctx context.Context, customerID string) (model.FactorScoreSet, error) {
	var parsed factorScoresResponse
	path := fmt.Sprintf("/v1/customers/%s/factors", customerID)
	if err := p.getJSON(ctx, path, customerID, &parsed); err != nil {
		return nil, err
	}

	scores := make(model.FactorScoreSet, len(parsed.Scores))
	for name, value := range parsed.Scores {
		scores[model.Factor(name)] = value
	}
	return scores, nil
}

func (p *httpProvider) CustomerContext(ctx context.Context, customerID string) (model.CustomerContext, error) {
	var parsed customerContextResponse
	path := fmt.Sprintf("/v1/customers/%s/context", customerID)
	if err := p.getJSON(ctx, path, customerID, &parsed); err != nil {
		return model.CustomerContext{}, err
	}

	return model.CustomerContext{
		CustomerID:      customerID,
		ContractEndDate: parsed.ContractEndDate,
		LastActivityAt:  parsed.LastActivityAt,
		LatestCSATScore: parsed.LatestCSATScore,
	}, nil
}

// getJSON performs a GET against path, retrying transient failures, and
// unmarshals the response into out. customerID is only used to build
// DataUnavailableError for 404/422 responses; empty means the endpoint is
// not customer-scoped.
func (p *httpProvider) getJSON(ctx context.Context, path, customerID string, out any) error {
	return resilience.Do(ctx, p.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
		if err != nil {
			return eris.Wrap(err, "provider: build request")
		}
		req.Header.Set("Accept", "application/json")
		if p.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

		resp, err := p.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "provider: read response body")
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(body, out); err != nil {
				return eris.Wrapf(err, "provider: unmarshal %s response", path)
			}
			return nil
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity:
			return &DataUnavailableError{
				CustomerID: customerID,
				Reason:     fmt.Sprintf("upstream returned %d", resp.StatusCode),
			}
		case resilience.IsTransientHTTPStatus(resp.StatusCode):
			return resilience.NewTransientError(
				eris.Errorf("provider: status %d: %s", resp.StatusCode, string(body)), resp.StatusCode)
		default:
			return eris.Errorf("provider: unexpected status %d: %s", resp.StatusCode, string(body))
		}
	})
}

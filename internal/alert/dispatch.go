package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/model"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/resilience"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/store"
)

// Dispatcher delivers generated alert events to wherever operators consume
// them. A dispatch failure never rolls back the already-persisted snapshot.
type Dispatcher interface {
	Dispatch(ctx context.Context, event model.AlertEvent) error
}

// DispatchError reports a failed delivery of one alert event.
type DispatchError struct {
	Event model.AlertEvent
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s alert for customer %s: %v", e.Event.RuleType, e.Event.CustomerID, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// StoreDispatcher records alerts in the engine store, which also feeds the
// dedup lookback set for subsequent cycles.
type StoreDispatcher struct {
	Store store.Store
}

func (d *StoreDispatcher) Dispatch(ctx context.Context, event model.AlertEvent) error {
	if err := d.Store.CreateAlert(ctx, event); err != nil {
		return &DispatchError{Event: event, Err: err}
	}
	return nil
}

// WebhookDispatcher posts alert events as JSON to a configured URL.
// Transient failures are retried with backoff; an outbound rate limit keeps a
// noisy batch from flooding the receiver.
type WebhookDispatcher struct {
	url     string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewWebhookDispatcher creates a webhook dispatcher for the given URL.
// ratePerSec caps outbound requests; zero or negative means 10/s.
func NewWebhookDispatcher(url string, ratePerSec int) *WebhookDispatcher {
	if ratePerSec <= 0 {
		ratePerSec = 10
	}
	return &WebhookDispatcher{
		url:     url,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		retry:   resilience.DefaultRetryConfig(),
	}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, event model.AlertEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return &DispatchError{Event: event, Err: eris.Wrap(err, "marshal alert")}
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return &DispatchError{Event: event, Err: err}
	}

	err = resilience.Do(ctx, d.retry, func(ctx context.Context) error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
		if reqErr != nil {
			return eris.Wrap(reqErr, "build webhook request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := d.http.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body) //nolint:errcheck

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		statusErr := eris.Errorf("webhook returned %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return statusErr
	})
	if err != nil {
		return &DispatchError{Event: event, Err: err}
	}
	return nil
}

// MultiDispatcher fans one event out to several dispatchers. All dispatchers
// are attempted; the first failure is returned.
type MultiDispatcher []Dispatcher

func (m MultiDispatcher) Dispatch(ctx context.Context, event model.AlertEvent) error {
	var firstErr error
	for _, d := range m {
		if err := d.Dispatch(ctx, event); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			zap.L().Warn("alert dispatch failed",
				zap.String("customer", event.CustomerID),
				zap.String("rule", string(event.RuleType)),
				zap.Error(err),
			)
		}
	}
	return firstErr
}

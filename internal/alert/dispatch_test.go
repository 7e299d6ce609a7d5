package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/model"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/resilience"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/store"
)

func testEvent() model.AlertEvent {
	return model.AlertEvent{
		ID:         "alert-1",
		CustomerID: "cust-1",
		RuleType:   model.RuleHealthDrop,
		Severity:   model.SeverityMedium,
		Message:    "health score dropped 7 points to 75",
		DedupKey:   DedupKey("cust-1", model.RuleHealthDrop, "2026-03-15"),
		CreatedAt:  testNow,
	}
}

func newTestWebhookDispatcher(url string) *WebhookDispatcher {
	return &WebhookDispatcher{
		url:     url,
		http:    &http.Client{Timeout: 5 * time.Second},
		limiter: rate.NewLimiter(rate.Inf, 1),
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			Multiplier:     2.0,
		},
	}
}

func TestWebhookDispatcher_PostsEventJSON(t *testing.T) {
	var got model.AlertEvent
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestWebhookDispatcher(srv.URL).Dispatch(context.Background(), testEvent())

	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "cust-1", got.CustomerID)
	assert.Equal(t, model.RuleHealthDrop, got.RuleType)
}

func TestWebhookDispatcher_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestWebhookDispatcher(srv.URL).Dispatch(context.Background(), testEvent())

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookDispatcher_PermanentStatusFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := newTestWebhookDispatcher(srv.URL).Dispatch(context.Background(), testEvent())

	require.Error(t, err)
	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, "cust-1", dispatchErr.Event.CustomerID)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookDispatcher_ExhaustedRetriesFail(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := newTestWebhookDispatcher(srv.URL).Dispatch(context.Background(), testEvent())

	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestStoreDispatcher_PersistsAlert(t *testing.T) {
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	d := &StoreDispatcher{Store: s}
	require.NoError(t, d.Dispatch(context.Background(), testEvent()))

	alerts, err := s.ListAlerts(context.Background(), "cust-1", 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.RuleHealthDrop, alerts[0].RuleType)
}

type recordingDispatcher struct {
	events []model.AlertEvent
	err    error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, event model.AlertEvent) error {
	d.events = append(d.events, event)
	return d.err
}

func TestMultiDispatcher_AttemptsAllAndReturnsFirstError(t *testing.T) {
	failing := &recordingDispatcher{err: eris.New("sink down")}
	ok := &recordingDispatcher{}

	err := MultiDispatcher{failing, ok}.Dispatch(context.Background(), testEvent())

	require.Error(t, err)
	assert.ErrorIs(t, err, failing.err)
	assert.Len(t, failing.events, 1, "failing dispatcher was attempted")
	assert.Len(t, ok.events, 1, "later dispatchers still run after a failure")
}

func TestMultiDispatcher_AllSucceed(t *testing.T) {
	a := &recordingDispatcher{}
	b := &recordingDispatcher{}

	err := MultiDispatcher{a, b}.Dispatch(context.Background(), testEvent())

	require.NoError(t, err)
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

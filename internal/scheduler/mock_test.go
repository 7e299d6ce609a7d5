package scheduler

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/model"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/provider"
)

// --- Provider fake ---

// fakeProvider serves factor data from in-memory maps. Customers listed in
// unavailable fail with DataUnavailableError. Safe for concurrent use: all
// maps are read-only after construction.
type fakeProvider struct {
	customers   []string
	factors     map[string]model.FactorScoreSet
	contexts    map[string]model.CustomerContext
	unavailable map[string]bool

	mu    sync.Mutex
	calls []string
}

func (p *fakeProvider) ListCustomers(context.Context) ([]string, error) {
	return p.customers, nil
}

func (p *fakeProvider) FactorScores(_ context.Context, customerID string) (model.FactorScoreSet, error) {
	p.mu.Lock()
	p.calls = append(p.calls, customerID)
	p.mu.Unlock()

	if p.unavailable[customerID] {
		return nil, &provider.DataUnavailableError{CustomerID: customerID, Reason: "upstream returned 404"}
	}
	return p.factors[customerID], nil
}

func (p *fakeProvider) CustomerContext(_ context.Context, customerID string) (model.CustomerContext, error) {
	cctx, ok := p.contexts[customerID]
	if !ok {
		return model.CustomerContext{CustomerID: customerID}, nil
	}
	return cctx, nil
}

// cancellingProvider cancels the batch context on the first factor fetch,
// simulating a shutdown signal arriving while a unit is in flight.
type cancellingProvider struct {
	*fakeProvider
	once   sync.Once
	cancel context.CancelFunc
}

func (p *cancellingProvider) FactorScores(ctx context.Context, customerID string) (model.FactorScoreSet, error) {
	p.once.Do(p.cancel)
	return p.fakeProvider.FactorScores(ctx, customerID)
}

// --- Dispatcher mocks ---

// recordingDispatcher collects dispatched events.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []model.AlertEvent
}

func (d *recordingDispatcher) Dispatch(_ context.Context, event model.AlertEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) all() []model.AlertEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.AlertEvent(nil), d.events...)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, event model.AlertEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

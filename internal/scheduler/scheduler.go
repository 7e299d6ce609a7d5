// Package scheduler orchestrates batch health recalculation across the
// customer base.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/alert"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/config"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/health"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/model"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/provider"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/store"
)

const defaultConcurrency = 8

// Scheduler runs the five-stage recalculation pipeline for each customer:
// fetch factors, compute, analyze trend, classify, persist, then evaluate and
// dispatch alerts. Customers are processed in parallel; per-customer failures
// are collected, never propagated.
type Scheduler struct {
	store      store.Store
	provider   provider.Provider
	calc       *health.Calculator
	dispatcher alert.Dispatcher

	// File-config fallbacks, used when no admin override is stored.
	thresholds config.ThresholdConfig
	rules      config.AlertRuleConfig

	concurrency int
	lookback    time.Duration

	// locks serializes units per customer so two overlapping batches can
	// never interleave one customer's read-compute-append sequence.
	locks sync.Map

	// clock is replaceable in tests.
	clock func() time.Time
}

// Options carries the scheduler's collaborators and tuning.
type Options struct {
	Store      store.Store
	Provider   provider.Provider
	Calculator *health.Calculator
	Dispatcher alert.Dispatcher
	Thresholds config.ThresholdConfig
	AlertRules config.AlertRuleConfig
	Batch      config.BatchConfig
}

// New creates a Scheduler from its collaborators.
func New(opts Options) *Scheduler {
	concurrency := opts.Batch.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	lookbackDays := opts.Batch.DedupLookbackDays
	if lookbackDays <= 0 {
		lookbackDays = 7
	}
	return &Scheduler{
		store:       opts.Store,
		provider:    opts.Provider,
		calc:        opts.Calculator,
		dispatcher:  opts.Dispatcher,
		thresholds:  opts.Thresholds,
		rules:       opts.AlertRules,
		concurrency: concurrency,
		lookback:    time.Duration(lookbackDays) * 24 * time.Hour,
		clock:       time.Now,
	}
}

// RunBatch recalculates health for the given customers, or for every customer
// the provider lists when customerIDs is nil. It blocks until all units
// finish. Units not yet started when ctx is cancelled are counted as
// cancelled, not failed; in-flight units run to completion against the
// background context so no partial snapshot is ever written.
//
// The returned BatchResult is non-nil whenever the batch started; the error
// return is reserved for failures that prevent the batch from starting at
// all, such as an unreachable customer roster.
func (s *Scheduler) RunBatch(ctx context.Context, customerIDs []string) (*model.BatchResult, error) {
	if customerIDs == nil {
		ids, err := s.provider.ListCustomers(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "scheduler: list customers")
		}
		customerIDs = ids
	}

	// Admin overrides are read once here; a config change mid-batch never
	// affects units already dispatched.
	thresholds, rules, err := s.effectiveConfig(ctx)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.Int("customers", len(customerIDs)), zap.Int("concurrency", s.concurrency))
	log.Info("starting recalculation batch")

	result := &model.BatchResult{
		State:     model.BatchRunning,
		StartedAt: s.clock().UTC(),
	}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for _, customerID := range customerIDs {
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				result.Cancelled++
				mu.Unlock()
				return nil
			}

			// Once started, a unit finishes even if the batch is cancelled:
			// snapshot append and alert dispatch stay atomic per customer.
			alerts, err := s.processCustomer(context.WithoutCancel(ctx), customerID, thresholds, rules)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, model.CustomerError{
					CustomerID: customerID,
					Err:        err.Error(),
				})
				zap.L().Warn("customer recalculation failed",
					zap.String("customer", customerID),
					zap.Error(err))
				return nil
			}
			result.Succeeded++
			result.Alerts += alerts
			return nil
		})
	}

	g.Wait() //nolint:errcheck // unit errors are collected, never returned

	result.FinishedAt = s.clock().UTC()
	if len(result.Errors) > 0 {
		result.State = model.BatchCompletedWithErrors
	} else {
		result.State = model.BatchCompleted
	}

	log.Info("recalculation batch finished",
		zap.String("state", string(result.State)),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("cancelled", result.Cancelled),
		zap.Int("alerts", result.Alerts))

	return result, nil
}

// effectiveConfig resolves the threshold and alert-rule configs for one batch:
// stored admin overrides when present, otherwise the file config.
func (s *Scheduler) effectiveConfig(ctx context.Context) (config.ThresholdConfig, config.AlertRuleConfig, error) {
	thresholds := s.thresholds
	if stored, err := s.store.GetThresholdConfig(ctx); err != nil {
		return thresholds, s.rules, eris.Wrap(err, "scheduler: load threshold config")
	} else if stored != nil {
		thresholds = *stored
	}

	rules := s.rules
	if stored, err := s.store.GetAlertRuleConfig(ctx); err != nil {
		return thresholds, rules, eris.Wrap(err, "scheduler: load alert rule config")
	} else if stored != nil {
		rules = *stored
	}

	return thresholds, rules, nil
}

// processCustomer runs the full pipeline for one customer and returns the
// number of alerts raised.
func (s *Scheduler) processCustomer(ctx context.Context, customerID string, thresholds config.ThresholdConfig, rules config.AlertRuleConfig) (int, error) {
	unlock := s.lockCustomer(customerID)
	defer unlock()

	factors, err := s.provider.FactorScores(ctx, customerID)
	if err != nil {
		return 0, err
	}
	cctx, err := s.provider.CustomerContext(ctx, customerID)
	if err != nil {
		return 0, err
	}

	score := s.calc.Compute(factors)

	var previous *int
	if latest, err := s.store.GetLatestSnapshot(ctx, customerID); err != nil {
		return 0, err
	} else if latest != nil {
		previous = &latest.OverallScore
	}
	trend, change := health.AnalyzeTrend(score, previous)
	tier := health.Classify(score, thresholds)

	now := s.clock().UTC()
	snap := model.HealthSnapshot{
		ID:           uuid.NewString(),
		CustomerID:   customerID,
		CalculatedAt: now,
		OverallScore: score,
		FactorScores: factors,
		Tier:         tier,
		Trend:        trend,
		Change:       change,
	}
	if err := s.store.AppendSnapshot(ctx, snap); err != nil {
		return 0, err
	}

	recentKeys, err := s.store.GetRecentAlertKeys(ctx, customerID, now.Add(-s.lookback))
	if err != nil {
		return 0, err
	}

	events := alert.Evaluate(snap, cctx, rules, recentKeys, now)
	for i := range events {
		events[i].ID = uuid.NewString()
		if err := s.dispatcher.Dispatch(ctx, events[i]); err != nil {
			// The snapshot stays committed; the condition re-evaluates
			// next cycle subject to dedup bucketing.
			return len(events), err
		}
	}

	return len(events), nil
}

func (s *Scheduler) lockCustomer(customerID string) func() {
	lock, _ := s.locks.LoadOrStore(customerID, &sync.Mutex{})
	m := lock.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

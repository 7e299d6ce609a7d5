package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/alert"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/health"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/provider"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/scheduler"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/store"
)

// engineEnv bundles the wired collaborators behind one Close.
type engineEnv struct {
	Store     store.Store
	Scheduler *scheduler.Scheduler
}

func (e *engineEnv) Close() {
	_ = e.Store.Close()
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "health.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEngine wires store, provider, calculator, dispatchers and scheduler
// from the loaded config.
func initEngine(ctx context.Context) (*engineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}

	calc, err := health.NewCalculator(cfg.Scoring)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	prov := provider.NewHTTP(cfg.Provider.BaseURL, provider.WithAPIKey(cfg.Provider.Key))

	dispatcher := alert.MultiDispatcher{&alert.StoreDispatcher{Store: st}}
	if cfg.Webhook.URL != "" {
		dispatcher = append(dispatcher,
			alert.NewWebhookDispatcher(cfg.Webhook.URL, cfg.Batch.DispatchRatePerSec))
	}

	sched := scheduler.New(scheduler.Options{
		Store:      st,
		Provider:   prov,
		Calculator: calc,
		Dispatcher: dispatcher,
		Thresholds: cfg.Thresholds,
		AlertRules: cfg.AlertRules,
		Batch:      cfg.Batch,
	})

	return &engineEnv{Store: st, Scheduler: sched}, nil
}

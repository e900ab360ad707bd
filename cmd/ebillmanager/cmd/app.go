package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bher20/ebillmanager/internal/alerting"
	"github.com/bher20/ebillmanager/internal/bills"
	"github.com/bher20/ebillmanager/internal/cron"
	"github.com/bher20/ebillmanager/internal/events"
	"github.com/bher20/ebillmanager/internal/logging"
	"github.com/bher20/ebillmanager/internal/migrate"
	"github.com/bher20/ebillmanager/internal/notification"
	"github.com/bher20/ebillmanager/internal/storage"
	"github.com/bher20/ebillmanager/internal/upstream"
)

// app holds the collaborators shared by serve and worker.
type app struct {
	store    storage.Backend
	events   events.Publisher
	upstream *upstream.Client
	notify   *notification.Service
	bills    *bills.Service
}

// openStorage applies pending goose migrations when auto_migrate is on and
// opens the configured backend.
func openStorage(ctx context.Context) (storage.Backend, error) {
	db := cfg.Database
	if db.AutoMigrate && db.Driver != "memory" {
		logging.L().Info("applying migrations", zap.String("driver", db.Driver))
		if err := migrate.Up(ctx, db.Driver, db.DSN); err != nil {
			return nil, fmt.Errorf("auto-migration: %w", err)
		}
	}
	return storage.Open(ctx, storage.Config{Driver: db.Driver, DSN: db.DSN})
}

func newUpstream() *upstream.Client {
	return upstream.New(cfg.Upstream.BaseURL,
		upstream.WithTimeout(cfg.Upstream.Timeout),
		upstream.WithColumns(cfg.Upstream.XColumn, cfg.Upstream.YColumn))
}

func billDefaults() bills.Defaults {
	return bills.Defaults{
		TariffKey:   cfg.Billing.DefaultTariff,
		PeriodLabel: cfg.Billing.PeriodLabel,
		BillingDays: cfg.Billing.BillingDays,
	}
}

func openApp(ctx context.Context) (*app, error) {
	st, err := openStorage(ctx)
	if err != nil {
		return nil, err
	}
	pub, err := events.New(cfg.Kafka)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("events: %w", err)
	}

	a := &app{
		store:    st,
		events:   pub,
		upstream: newUpstream(),
		notify:   notification.NewService(st),
	}
	a.bills = bills.NewService(bills.Deps{
		Store:     st,
		Series:    a.upstream,
		Documents: a.upstream,
		Mailer:    a.notify,
		Events:    pub,
		Defaults:  billDefaults(),
	})
	return a, nil
}

func (a *app) newWorker() (*cron.Worker, error) {
	return cron.New(cron.Config{
		Interval: cfg.Worker.Interval,
		Sources:  cfg.Worker.Sources,
		Tariff:   cfg.WorkerTariff(),
		LockKey:  cfg.Worker.LockKey,
	}, cron.Deps{
		Bills:    a.bills,
		Locker:   a.store,
		Settings: a.store,
		Alerter:  alerting.NewAlerter(alerting.FromConfig(cfg.Alerting)),
	})
}

func (a *app) Close() {
	log := logging.Named("app")
	if err := a.events.Close(); err != nil {
		log.Warn("close event publisher", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		log.Warn("close storage", zap.Error(err))
	}
}

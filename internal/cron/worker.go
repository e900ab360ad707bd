// Package cron runs the scheduled billing job: one bill per configured
// consumption source, guarded by an advisory lock so only one replica runs
// it at a time.
package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bher20/ebillmanager/internal/alerting"
	"github.com/bher20/ebillmanager/internal/bills"
	"github.com/bher20/ebillmanager/internal/logging"
	"github.com/bher20/ebillmanager/internal/metrics"
	"github.com/bher20/ebillmanager/internal/storage"
)

// JobName identifies the billing run in metrics and the scheduled_jobs table.
const JobName = "billing_run"

const defaultPoll = 10 * time.Second

// Calculator produces and stores one bill.
type Calculator interface {
	Calculate(ctx context.Context, req bills.Request) (*bills.Record, error)
}

// Alerter reports failed runs.
type Alerter interface {
	SendRunAlert(ctx context.Context, alert alerting.RunAlert) error
}

// SettingsReader exposes runtime settings; the refresh_interval setting
// overrides the configured interval.
type SettingsReader interface {
	GetSetting(ctx context.Context, key string) (string, error)
}

type Config struct {
	Interval string
	Sources  []string
	Tariff   string
	LockKey  int64
	// Poll is how often the loop checks the schedule and settings.
	Poll time.Duration
}

type Deps struct {
	Bills    Calculator
	Locker   storage.JobLocker
	Settings SettingsReader
	Alerter  Alerter
}

// Result summarizes one run.
type Result struct {
	Skipped  bool
	Billed   []*bills.Record
	Failures []alerting.SourceFailure
	Duration time.Duration
}

type Worker struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
	now  func() time.Time
}

func New(cfg Config, deps Deps) (*Worker, error) {
	if deps.Bills == nil || deps.Locker == nil {
		return nil, errors.New("cron: bills and locker are required")
	}
	if _, err := ParseInterval(cfg.Interval); err != nil {
		return nil, fmt.Errorf("cron: %w", err)
	}
	if cfg.Poll <= 0 {
		cfg.Poll = defaultPoll
	}
	return &Worker{cfg: cfg, deps: deps, log: logging.Named("cron"), now: time.Now}, nil
}

// RunOnce executes a single billing run. When another replica holds the
// lock the run is skipped.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	started := w.now()

	ok, err := w.deps.Locker.AcquireAdvisoryLock(ctx, w.cfg.LockKey)
	if err != nil {
		metrics.UpdateJobMetrics(JobName, started, err)
		return Result{}, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !ok {
		w.log.Info("advisory lock held by another worker, skipping run")
		return Result{Skipped: true}, nil
	}
	defer func() {
		if _, err := w.deps.Locker.ReleaseAdvisoryLock(ctx, w.cfg.LockKey); err != nil {
			w.log.Warn("release advisory lock", zap.Error(err))
		}
	}()

	var res Result
	var errs []error
	for _, src := range w.cfg.Sources {
		rec, err := w.deps.Bills.Calculate(ctx, bills.Request{Source: src, TariffKey: w.cfg.Tariff})
		if err != nil {
			w.log.Warn("bill source failed", zap.String("source", src), zap.Error(err))
			res.Failures = append(res.Failures, alerting.SourceFailure{Source: src, Error: err.Error()})
			errs = append(errs, fmt.Errorf("%s: %w", src, err))
			continue
		}
		res.Billed = append(res.Billed, rec)
	}
	runErr := errors.Join(errs...)
	res.Duration = w.now().Sub(started)

	metrics.UpdateJobMetrics(JobName, started, runErr)
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := w.deps.Locker.UpdateScheduledJob(ctx, JobName, started, res.Duration, runErr == nil, errMsg); err != nil {
		w.log.Warn("update scheduled_jobs", zap.Error(err))
	}

	if len(res.Failures) > 0 && w.deps.Alerter != nil {
		alert := alerting.RunAlert{
			JobName:       JobName,
			TotalCount:    len(w.cfg.Sources),
			SuccessCount:  len(res.Billed),
			FailedCount:   len(res.Failures),
			Duration:      res.Duration,
			FailedDetails: res.Failures,
			Timestamp:     started,
		}
		if err := w.deps.Alerter.SendRunAlert(ctx, alert); err != nil {
			w.log.Warn("send alert", zap.Error(err))
		}
	}

	w.log.Info("billing run finished",
		zap.Int("billed", len(res.Billed)),
		zap.Int("failed", len(res.Failures)),
		zap.Duration("duration", res.Duration))
	return res, runErr
}

// interval returns the active schedule setting: the stored refresh_interval
// when it parses, the configured interval otherwise.
func (w *Worker) interval(ctx context.Context) string {
	if w.deps.Settings == nil {
		return w.cfg.Interval
	}
	val, err := w.deps.Settings.GetSetting(ctx, storage.SettingRefreshInterval)
	if err != nil || val == "" {
		return w.cfg.Interval
	}
	if _, err := ParseInterval(val); err != nil {
		w.log.Warn("ignoring invalid refresh_interval setting", zap.String("value", val), zap.Error(err))
		return w.cfg.Interval
	}
	return val
}

// Run executes a billing run immediately and then on schedule until ctx is
// cancelled. A changed refresh_interval setting reschedules from now.
func (w *Worker) Run(ctx context.Context) error {
	setting := w.interval(ctx)
	sched, _ := ParseInterval(setting)
	nextRun := w.now()

	ticker := time.NewTicker(w.cfg.Poll)
	defer ticker.Stop()

	w.log.Info("worker starting", zap.String("interval", setting), zap.Strings("sources", w.cfg.Sources))

	for {
		if !w.now().Before(nextRun) {
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.log.Error("billing run failed", zap.Error(err))
			}
			nextRun = sched.Next(w.now())
		}
		if pr, ok := w.deps.Locker.(storage.PoolReporter); ok {
			pr.ReportPoolMetrics()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if val := w.interval(ctx); val != setting {
			w.log.Info("interval updated", zap.String("from", setting), zap.String("to", val))
			setting = val
			sched, _ = ParseInterval(setting)
			nextRun = sched.Next(w.now())
		}
	}
}

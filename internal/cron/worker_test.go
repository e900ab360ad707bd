package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/ebillmanager/internal/alerting"
	"github.com/bher20/ebillmanager/internal/billing"
	"github.com/bher20/ebillmanager/internal/bills"
	"github.com/bher20/ebillmanager/internal/storage"
)

type fakeBills struct {
	mu    sync.Mutex
	calls []bills.Request
	fail  map[string]bool
}

func (f *fakeBills) Calculate(_ context.Context, req bills.Request) (*bills.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.fail[req.Source] {
		return nil, billing.ErrUpstreamUnavailable
	}
	return &bills.Record{ID: "id-" + req.Source, Source: req.Source}, nil
}

func (f *fakeBills) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeAlerter struct{ alerts []alerting.RunAlert }

func (a *fakeAlerter) SendRunAlert(_ context.Context, alert alerting.RunAlert) error {
	a.alerts = append(a.alerts, alert)
	return nil
}

func TestParseInterval(t *testing.T) {
	from := time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"60", from.Add(time.Minute)},
		{"0 * * * *", time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)},
		{"@daily", time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		s, err := ParseInterval(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, s.Next(from), tt.in)
	}
	for _, bad := range []string{"", "0", "-5", "every hour"} {
		_, err := ParseInterval(bad)
		assert.Error(t, err, bad)
	}
}

func TestRunOnce(t *testing.T) {
	st := storage.NewMemory()
	fb := &fakeBills{fail: map[string]bool{"broken.csv": true}}
	al := &fakeAlerter{}
	w, err := New(Config{
		Interval: "3600",
		Sources:  []string{"a.csv", "broken.csv", "b.csv"},
		Tariff:   "msedcl-residential",
		LockKey:  4201,
	}, Deps{Bills: fb, Locker: st, Settings: st, Alerter: al})
	require.NoError(t, err)

	res, err := w.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrUpstreamUnavailable)
	assert.Len(t, res.Billed, 2)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "broken.csv", res.Failures[0].Source)

	for _, c := range fb.calls {
		assert.Equal(t, "msedcl-residential", c.TariffKey)
	}

	require.Len(t, al.alerts, 1)
	assert.Equal(t, 3, al.alerts[0].TotalCount)
	assert.Equal(t, 1, al.alerts[0].FailedCount)

	job, ok := st.ScheduledJob(JobName)
	require.True(t, ok)
	assert.Equal(t, 0, job.LastSuccess)
	assert.Contains(t, job.LastError, "broken.csv")

	// lock is released after the run
	got, err := st.AcquireAdvisoryLock(context.Background(), 4201)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	st := storage.NewMemory()
	_, err := st.AcquireAdvisoryLock(context.Background(), 7)
	require.NoError(t, err)

	fb := &fakeBills{}
	w, err := New(Config{Interval: "60", Sources: []string{"a.csv"}, LockKey: 7}, Deps{Bills: fb, Locker: st})
	require.NoError(t, err)

	res, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, fb.count())
}

func TestRunOnceSuccessRecordsJob(t *testing.T) {
	st := storage.NewMemory()
	al := &fakeAlerter{}
	w, err := New(Config{Interval: "60", Sources: []string{"a.csv"}}, Deps{Bills: &fakeBills{}, Locker: st, Alerter: al})
	require.NoError(t, err)

	_, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, al.alerts)
	job, ok := st.ScheduledJob(JobName)
	require.True(t, ok)
	assert.Equal(t, 1, job.LastSuccess)
}

func TestIntervalSettingOverride(t *testing.T) {
	st := storage.NewMemory()
	w, err := New(Config{Interval: "3600"}, Deps{Bills: &fakeBills{}, Locker: st, Settings: st})
	require.NoError(t, err)
	ctx := context.Background()

	assert.Equal(t, "3600", w.interval(ctx))
	require.NoError(t, st.SetSetting(ctx, storage.SettingRefreshInterval, "*/5 * * * *"))
	assert.Equal(t, "*/5 * * * *", w.interval(ctx))
	require.NoError(t, st.SetSetting(ctx, storage.SettingRefreshInterval, "sometimes"))
	assert.Equal(t, "3600", w.interval(ctx))
}

func TestRunStopsOnCancel(t *testing.T) {
	st := storage.NewMemory()
	fb := &fakeBills{}
	w, err := New(Config{Interval: "3600", Sources: []string{"a.csv"}, Poll: 5 * time.Millisecond},
		Deps{Bills: fb, Locker: st, Settings: st})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = w.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, fb.count(), "first run is immediate, the next is an hour away")
}

func TestNewValidates(t *testing.T) {
	st := storage.NewMemory()
	_, err := New(Config{Interval: "bogus"}, Deps{Bills: &fakeBills{}, Locker: st})
	assert.Error(t, err)
	_, err = New(Config{Interval: "60"}, Deps{Locker: st})
	assert.Error(t, err)
}

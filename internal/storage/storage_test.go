package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	ctx := context.Background()

	sq, err := Open(ctx, Config{
		Driver:      "sqlite",
		DSN:         filepath.Join(t.TempDir(), "ebill.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	mem, err := Open(ctx, Config{})
	require.NoError(t, err)

	return map[string]Backend{"memory": mem, "sqlite": sq}
}

func TestBills(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			for i, id := range []string{"a", "b", "c"} {
				require.NoError(t, st.SaveBill(ctx, BillRecord{
					ID:            id,
					Source:        "meter.csv",
					Mode:          "slab",
					BillingPeriod: "May 2024",
					TotalCost:     "1355.00",
					Payload:       []byte(`{"total_cost":"1355"}`),
					CreatedAt:     base.Add(time.Duration(i) * time.Hour),
				}))
			}

			got, err := st.GetBill(ctx, "b")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "meter.csv", got.Source)
			assert.JSONEq(t, `{"total_cost":"1355"}`, string(got.Payload))

			missing, err := st.GetBill(ctx, "zzz")
			require.NoError(t, err)
			assert.Nil(t, missing)

			list, err := st.ListBills(ctx, 2)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "c", list[0].ID)
			assert.Equal(t, "b", list[1].ID)

			all, err := st.ListBills(ctx, 0)
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestSettings(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			v, err := st.GetSetting(ctx, SettingRefreshInterval)
			require.NoError(t, err)
			assert.Empty(t, v)

			require.NoError(t, st.SetSetting(ctx, SettingRefreshInterval, "60"))
			require.NoError(t, st.SetSetting(ctx, SettingRefreshInterval, "0 * * * *"))
			v, err = st.GetSetting(ctx, SettingRefreshInterval)
			require.NoError(t, err)
			assert.Equal(t, "0 * * * *", v)
		})
	}
}

func TestUsersAndTokens(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Second)
			require.NoError(t, st.CreateUser(ctx, User{ID: "u1", Username: "meera", Role: "admin", CreatedAt: now, UpdatedAt: now}))

			u, err := st.GetUserByUsername(ctx, "meera")
			require.NoError(t, err)
			require.NotNil(t, u)
			assert.Equal(t, "u1", u.ID)

			u, err = st.GetUserByUsername(ctx, "nobody")
			require.NoError(t, err)
			assert.Nil(t, u)

			require.NoError(t, st.CreateToken(ctx, Token{ID: "t1", UserID: "u1", Name: "cli", TokenHash: "h1", Role: "admin", CreatedAt: now}))
			tok, err := st.GetTokenByHash(ctx, "h1")
			require.NoError(t, err)
			require.NotNil(t, tok)
			assert.Nil(t, tok.LastUsedAt)

			require.NoError(t, st.UpdateTokenLastUsed(ctx, "t1"))
			tok, err = st.GetTokenByHash(ctx, "h1")
			require.NoError(t, err)
			assert.NotNil(t, tok.LastUsedAt)

			tokens, err := st.ListTokens(ctx, "u1")
			require.NoError(t, err)
			assert.Len(t, tokens, 1)

			require.NoError(t, st.DeleteToken(ctx, "t1"))
			tok, err = st.GetTokenByHash(ctx, "h1")
			require.NoError(t, err)
			assert.Nil(t, tok)
		})
	}
}

func TestCasbinRules(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			read := CasbinRule{PType: "p", V0: "viewer", V1: "bills", V2: "read"}
			write := CasbinRule{PType: "p", V0: "editor", V1: "bills", V2: "write"}
			require.NoError(t, st.AddCasbinRule(ctx, read))
			require.NoError(t, st.AddCasbinRule(ctx, write))

			require.NoError(t, st.RemoveCasbinRule(ctx, read))
			rules, err := st.LoadCasbinRules(ctx)
			require.NoError(t, err)
			require.Len(t, rules, 1)
			assert.Equal(t, "editor", rules[0].V0)
		})
	}
}

func TestEmailConfig(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cfg, err := st.GetEmailConfig(ctx)
			require.NoError(t, err)
			assert.Nil(t, cfg)

			require.NoError(t, st.SaveEmailConfig(ctx, EmailConfig{Provider: "smtp", Host: "mail", FromAddress: "bills@example.com", Enabled: true}))
			require.NoError(t, st.SaveEmailConfig(ctx, EmailConfig{Provider: "sendgrid", APIKey: "k", FromAddress: "bills@example.com", Enabled: true}))

			cfg, err = st.GetEmailConfig(ctx)
			require.NoError(t, err)
			require.NotNil(t, cfg)
			assert.Equal(t, "sendgrid", cfg.Provider)
		})
	}
}

func TestJobLocking(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ok, err := m.AcquireAdvisoryLock(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.AcquireAdvisoryLock(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok, "lock is already held")

	released, err := m.ReleaseAdvisoryLock(ctx, 7)
	require.NoError(t, err)
	assert.True(t, released)

	ok, err = m.AcquireAdvisoryLock(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	started := time.Now()
	require.NoError(t, m.UpdateScheduledJob(ctx, "billing_run", started, 1500*time.Millisecond, false, "upstream down"))
	job, found := m.ScheduledJob("billing_run")
	require.True(t, found)
	assert.Equal(t, int64(1500), job.LastDurationMs)
	assert.Equal(t, 0, job.LastSuccess)
	assert.Equal(t, "upstream down", job.LastError)
}

func TestGormScheduledJobUpsert(t *testing.T) {
	ctx := context.Background()
	st, err := NewGormStorage("sqlite", filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Migrate(ctx))

	ok, err := st.AcquireAdvisoryLock(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, st.UpdateScheduledJob(ctx, "billing_run", time.Now(), time.Second, false, "boom"))
	require.NoError(t, st.UpdateScheduledJob(ctx, "billing_run", time.Now(), 2*time.Second, true, ""))

	job, err := st.GetScheduledJob(ctx, "billing_run")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 1, job.LastSuccess)
	assert.Equal(t, int64(2000), job.LastDurationMs)
	assert.Empty(t, job.LastError)

	require.NoError(t, st.Ping(ctx))
	assert.NotPanics(t, st.ReportPoolMetrics)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"})
	assert.Error(t, err)
}

package migrate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/ebillmanager/internal/storage"
)

func TestUpDownSQLite(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "ebill.db")

	require.NoError(t, Up(ctx, "sqlite", dsn))
	v, err := Version(ctx, "sqlite", dsn)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	require.NoError(t, Status(ctx, "sqlite", dsn))

	// The goose schema must be usable by the gorm backend without AutoMigrate.
	st, err := storage.NewGormStorage("sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, st.SaveBill(ctx, storage.BillRecord{ID: "b1", Payload: []byte("{}"), CreatedAt: time.Now()}))
	require.NoError(t, st.SetSetting(ctx, storage.SettingRefreshInterval, "60"))
	require.NoError(t, st.AddCasbinRule(ctx, storage.CasbinRule{PType: "g", V0: "u1", V1: "admin"}))
	require.NoError(t, st.Close())

	require.NoError(t, Down(ctx, "sqlite", dsn))
	v, err = Version(ctx, "sqlite", dsn)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestUnsupportedDriver(t *testing.T) {
	err := Up(context.Background(), "mysql", "")
	assert.ErrorContains(t, err, "unsupported driver")
}

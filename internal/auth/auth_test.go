package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/ebillmanager/internal/storage"
)

func newService(t *testing.T) (*Service, *storage.MemoryStorage) {
	t.Helper()
	st := storage.NewMemory()
	svc, err := NewService(st)
	require.NoError(t, err)
	return svc, st
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "meera", "meera@example.com", "s3cret", RoleEditor)
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", u.PasswordHash)

	_, err = svc.Register(ctx, "meera", "", "other", RoleViewer)
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = svc.Register(ctx, "ravi", "", "pw", "owner")
	assert.ErrorIs(t, err, ErrUnknownRole)

	got, err := svc.Authenticate(ctx, "meera", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = svc.Authenticate(ctx, "meera", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestPolicies(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, "ed", "", "pw", RoleEditor)
	require.NoError(t, err)

	tests := []struct {
		sub, obj, act string
		want          bool
	}{
		{RoleAdmin, ObjSettings, ActWrite, true},
		{RoleEditor, ObjBills, ActWrite, true},
		{RoleEditor, ObjSettings, ActWrite, false},
		{RoleViewer, ObjBills, ActRead, true},
		{RoleViewer, ObjBills, ActWrite, false},
		{u.ID, ObjBills, ActWrite, true},
		{u.ID, ObjSettings, ActWrite, false},
	}
	for _, tt := range tests {
		ok, err := svc.Enforce(tt.sub, tt.obj, tt.act)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ok, "%s %s %s", tt.sub, tt.obj, tt.act)
	}
}

func TestPoliciesPersistAcrossRestart(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, "ed", "", "pw", RoleEditor)
	require.NoError(t, err)

	before, err := st.LoadCasbinRules(ctx)
	require.NoError(t, err)

	again, err := NewService(st)
	require.NoError(t, err)
	after, err := st.LoadCasbinRules(ctx)
	require.NoError(t, err)
	assert.Len(t, after, len(before), "default policies are not duplicated")

	ok, err := again.Enforce(u.ID, ObjBills, ActWrite)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAdapterFilteredRemoval(t *testing.T) {
	st := storage.NewMemory()
	a := NewAdapter(st)
	require.NoError(t, a.AddPolicy("g", "g", []string{"u1", RoleEditor}))
	require.NoError(t, a.AddPolicy("g", "g", []string{"u2", RoleEditor}))
	require.NoError(t, a.AddPolicy("p", "p", []string{RoleEditor, ObjBills, ActRead}))

	require.NoError(t, a.RemoveFilteredPolicy("g", "g", 1, RoleEditor))
	rules, err := st.LoadCasbinRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "p", rules[0].PType)
}

func TestTokens(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tok, raw, err := svc.CreateToken(ctx, "u1", "cli", RoleViewer, nil)
	require.NoError(t, err)
	assert.NotEqual(t, raw, tok.TokenHash)

	got, err := svc.ValidateToken(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)

	_, err = svc.ValidateToken(ctx, "bogus")
	assert.ErrorIs(t, err, ErrInvalidToken)

	past := time.Now().Add(-time.Minute)
	_, expired, err := svc.CreateToken(ctx, "u1", "old", RoleViewer, &past)
	require.NoError(t, err)
	_, err = svc.ValidateToken(ctx, expired)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, _, err = svc.CreateToken(ctx, "u1", "x", "root", nil)
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestMiddleware(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, viewer, err := svc.CreateToken(ctx, "u1", "ro", RoleViewer, nil)
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := svc.Middleware(svc.RequirePermission(ObjBills, ActWrite, ok))
	hRead := svc.Middleware(svc.RequirePermission(ObjBills, ActRead, ok))

	tests := []struct {
		name    string
		handler http.Handler
		header  string
		want    int
	}{
		{"no header", h, "", http.StatusUnauthorized},
		{"malformed", h, "Token abc", http.StatusUnauthorized},
		{"unknown token", h, "Bearer nope", http.StatusUnauthorized},
		{"viewer write", h, "Bearer " + viewer, http.StatusForbidden},
		{"viewer read", hRead, "Bearer " + viewer, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/bills", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestParseExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want *time.Time
	}{
		{"never", nil},
		{"", nil},
		{"30d", ptr(now.Add(30 * 24 * time.Hour))},
		{"2w", ptr(now.Add(14 * 24 * time.Hour))},
		{"12h", ptr(now.Add(12 * time.Hour))},
		{"90m", ptr(now.Add(90 * time.Minute))},
		{"12/25/2099 14:30", ptr(time.Date(2099, 12, 25, 14, 30, 0, 0, time.UTC))},
		{"2099-01-02", ptr(time.Date(2099, 1, 2, 0, 0, 0, 0, time.UTC))},
	}
	for _, tt := range tests {
		got, err := ParseExpiry(tt.in, now)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"01/01/2000", "soon", "-1h", "0d", "3y"} {
		_, err := ParseExpiry(bad, now)
		assert.Error(t, err, bad)
	}
}

func ptr(t time.Time) *time.Time { return &t }

package notification

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/ebillmanager/internal/billing"
	"github.com/bher20/ebillmanager/internal/storage"
)

func slabBill(t *testing.T) billing.BillSummary {
	t.Helper()
	cfg := billing.SlabRate([]billing.Slab{
		{UpTo: 100, Rate: 3.05},
		{UpTo: 300, Rate: 5.0},
		{UpTo: math.Inf(1), Rate: 8},
	}, 90)
	sum, err := billing.ComputeCost(250, cfg)
	require.NoError(t, err)
	return sum
}

func TestRenderBill(t *testing.T) {
	html, err := RenderBill(slabBill(t))
	require.NoError(t, err)
	assert.Contains(t, html, "0-100 units")
	assert.Contains(t, html, "101-300 units")
	assert.Contains(t, html, "Fixed Charge")
	assert.Contains(t, html, "1145.00")
}

func TestSendBillViaResend(t *testing.T) {
	var got resendPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer re_key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := storage.NewMemory()
	svc := NewService(st, WithResendURL(srv.URL))
	require.NoError(t, svc.SaveConfig(context.Background(), storage.EmailConfig{
		Provider:    "resend",
		APIKey:      "re_key",
		FromAddress: "bills@example.com",
		FromName:    "Bills",
		Enabled:     true,
	}))

	sum := slabBill(t)
	require.NoError(t, svc.SendBill(context.Background(), "home@example.com", sum, []byte("%PDF-1.4")))
	assert.Equal(t, "home@example.com", got.To)
	assert.Equal(t, "Bills <bills@example.com>", got.From)
	assert.Equal(t, "Electricity bill for Current Period", got.Subject)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF-1.4")), got.Attachments[0].Content)
}

func TestSendReportsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	st := storage.NewMemory()
	svc := NewService(st, WithResendURL(srv.URL))
	require.NoError(t, svc.SaveConfig(context.Background(), storage.EmailConfig{
		Provider: "resend", APIKey: "k", FromAddress: "a@example.com", Enabled: true,
	}))
	err := svc.Send(context.Background(), Message{To: "x@example.com", Subject: "s", HTML: "<p/>"})
	assert.ErrorContains(t, err, "429")
}

func TestSendRequiresEnabledConfig(t *testing.T) {
	st := storage.NewMemory()
	svc := NewService(st)
	assert.ErrorIs(t, svc.Send(context.Background(), Message{To: "x@example.com"}), ErrNotConfigured)

	require.NoError(t, st.SaveEmailConfig(context.Background(), storage.EmailConfig{Provider: "smtp", Host: "h", Port: 25, FromAddress: "a@b", Enabled: false}))
	assert.ErrorIs(t, svc.Send(context.Background(), Message{To: "x@example.com"}), ErrNotConfigured)
}

func TestSaveConfigValidates(t *testing.T) {
	svc := NewService(storage.NewMemory())
	ctx := context.Background()
	tests := []storage.EmailConfig{
		{Provider: "pigeon", FromAddress: "a@b"},
		{Provider: "smtp", FromAddress: "a@b"},
		{Provider: "sendgrid", FromAddress: "a@b"},
		{Provider: "resend", APIKey: "k"},
	}
	for _, cfg := range tests {
		assert.Error(t, svc.SaveConfig(ctx, cfg), cfg.Provider)
	}
}

func TestBuildMIME(t *testing.T) {
	cfg := &storage.EmailConfig{FromAddress: "bills@example.com", FromName: "Bills"}

	plain, err := buildMIME(cfg, Message{To: "a@example.com", Subject: "Hello", HTML: "<p>hi</p>"})
	require.NoError(t, err)
	s := string(plain)
	assert.Contains(t, s, "From: Bills <bills@example.com>\r\n")
	assert.Contains(t, s, "Content-Type: text/html")
	assert.True(t, strings.HasSuffix(s, "<p>hi</p>\r\n"))

	withPDF, err := buildMIME(cfg, Message{
		To: "a@example.com", Subject: "Bill", HTML: "<p>bill</p>",
		Attachment: &Attachment{Filename: "bill.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.4")},
	})
	require.NoError(t, err)
	s = string(withPDF)
	assert.Contains(t, s, "multipart/mixed")
	assert.Contains(t, s, `filename="bill.pdf"`)
	assert.Contains(t, s, base64.StdEncoding.EncodeToString([]byte("%PDF-1.4")))
}

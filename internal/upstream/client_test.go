package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/ebillmanager/internal/billing"
	"github.com/bher20/ebillmanager/internal/pdfutil/pdftest"
)

func TestFetchSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/meter 1.csv", r.URL.Path)
		assert.Equal(t, "Date", r.URL.Query().Get("x"))
		assert.Equal(t, "Electricity_Consumption_kWh", r.URL.Query().Get("y"))
		_, _ = w.Write([]byte(`{"success": true, "data": {
			"x": ["2024-01-01", "2024-01-02", 3, null],
			"y": [10.5, null, "4.5", "n/a"],
			"x_label": "Date", "y_label": "Electricity_Consumption_kWh"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	series, err := c.FetchSeries(context.Background(), "meter 1.csv", "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "3", ""}, series.Timestamps)
	assert.Equal(t, 4, series.Len())

	total, err := series.Total()
	require.NoError(t, err)
	assert.InDelta(t, 15.0, total, 1e-12)
}

func TestFetchSeries_CustomColumns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ts", r.URL.Query().Get("x"))
		assert.Equal(t, "kwh", r.URL.Query().Get("y"))
		_, _ = w.Write([]byte(`{"success": true, "data": {"x": [], "y": [1, 2]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithColumns("ts", "kwh"))
	series, err := c.FetchSeries(context.Background(), "a.csv", "", "")
	require.NoError(t, err)
	assert.Nil(t, series.Timestamps)
	assert.Equal(t, 2, series.Len())
}

func TestFetchSeries_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"bad request", http.StatusBadRequest, `{"error": "Requested columns not found in data"}`, "Requested columns not found"},
		{"server error", http.StatusInternalServerError, `oops`, "status 500"},
		{"success false", http.StatusOK, `{"success": false, "error": "boom"}`, "boom"},
		{"not json", http.StatusOK, `<html>`, "decode"},
		{"length mismatch", http.StatusOK, `{"success": true, "data": {"x": ["d1", "d2"], "y": [1]}}`, "2 x values for 1 y values"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL).FetchSeries(context.Background(), "a.csv", "", "")
			require.ErrorIs(t, err, billing.ErrUpstreamUnavailable)
			assert.NotErrorIs(t, err, billing.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestFetchSeries_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, WithTimeout(time.Second)).FetchSeries(context.Background(), "a.csv", "", "")
	assert.ErrorIs(t, err, billing.ErrUpstreamUnavailable)
}

func TestFetchSeries_RequiresSource(t *testing.T) {
	_, err := New("http://unused").FetchSeries(context.Background(), "", "", "")
	assert.ErrorIs(t, err, billing.ErrInvalidInput)
}

func TestRenderBill(t *testing.T) {
	doc := pdftest.Document("Electricity Bill")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generate_bill_pdf", r.URL.Path)

		var got map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Len(t, got, 5)
		assert.Equal(t, "slab", got["tariff_type"])
		assert.Equal(t, float64(30), got["billing_days"])

		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(doc)
	}))
	defer srv.Close()

	out, err := New(srv.URL).RenderBill(context.Background(), billing.DocumentRequest{
		TotalConsumption: 250,
		TotalCost:        1355,
		BillingPeriod:    "May 2024",
		BillingDays:      30,
		TariffType:       "slab",
	})
	require.NoError(t, err)
	assert.Equal(t, doc, out)
}

func TestRenderBill_ServiceReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "error": "font missing"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).RenderBill(context.Background(), billing.DocumentRequest{})
	require.ErrorIs(t, err, billing.ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "font missing")
}

func TestRenderBill_GarbageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("definitely not a pdf"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).RenderBill(context.Background(), billing.DocumentRequest{})
	assert.ErrorIs(t, err, billing.ErrUpstreamUnavailable)
}

// Package upstream talks to the analytics backend (consumption series) and
// the bill document service (PDF rendering).
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bher20/ebillmanager/internal/billing"
	"github.com/bher20/ebillmanager/internal/logging"
	"github.com/bher20/ebillmanager/internal/metrics"
	"github.com/bher20/ebillmanager/internal/pdfutil"
)

const (
	DefaultXColumn = "Date"
	DefaultYColumn = "Electricity_Consumption_kWh"

	maxBodyBytes = 32 << 20
)

// Client is safe for concurrent use. It never retries.
type Client struct {
	baseURL string
	http    *http.Client
	xColumn string
	yColumn string
	log     *zap.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithColumns sets the default x and y columns used by FetchSeries.
func WithColumns(x, y string) Option {
	return func(c *Client) {
		if x != "" {
			c.xColumn = x
		}
		if y != "" {
			c.yColumn = y
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		xColumn: DefaultXColumn,
		yColumn: DefaultYColumn,
		log:     logging.Named("upstream"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type dataResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		X      []json.RawMessage  `json:"x"`
		Y      []billing.Quantity `json:"y"`
		XLabel string             `json:"x_label"`
		YLabel string             `json:"y_label"`
	} `json:"data"`
}

// FetchSeries loads two columns of an uploaded file from the analytics
// backend. Empty column names fall back to the client defaults.
func (c *Client) FetchSeries(ctx context.Context, filename, xColumn, yColumn string) (series billing.ConsumptionSeries, err error) {
	if filename == "" {
		return billing.ConsumptionSeries{}, &billing.ValidationError{Kind: billing.ErrInvalidInput, Field: "source", Constraint: "is required"}
	}
	if xColumn == "" {
		xColumn = c.xColumn
	}
	if yColumn == "" {
		yColumn = c.yColumn
	}

	started := time.Now()
	defer func() { metrics.ObserveUpstream("fetch_series", started, err) }()

	q := url.Values{"x": {xColumn}, "y": {yColumn}}
	endpoint := c.baseURL + "/data/" + url.PathEscape(filename) + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return billing.ConsumptionSeries{}, unavailable("fetch "+filename, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return billing.ConsumptionSeries{}, unavailable("fetch "+filename, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return billing.ConsumptionSeries{}, unavailable("read "+filename, err)
	}

	var dr dataResponse
	decodeErr := json.Unmarshal(body, &dr)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if decodeErr == nil && dr.Error != "" {
			msg += ": " + dr.Error
		}
		return billing.ConsumptionSeries{}, unavailable("fetch "+filename, errors.New(msg))
	}
	if decodeErr != nil {
		return billing.ConsumptionSeries{}, unavailable("decode "+filename, decodeErr)
	}
	if !dr.Success {
		return billing.ConsumptionSeries{}, unavailable("fetch "+filename, fmt.Errorf("backend reported failure: %s", dr.Error))
	}

	if len(dr.Data.X) > 0 && len(dr.Data.X) != len(dr.Data.Y) {
		return billing.ConsumptionSeries{}, unavailable("fetch "+filename,
			fmt.Errorf("backend returned %d x values for %d y values", len(dr.Data.X), len(dr.Data.Y)))
	}

	series = billing.ConsumptionSeries{Values: dr.Data.Y}
	if len(dr.Data.X) > 0 {
		series.Timestamps = make([]string, len(dr.Data.X))
		for i, raw := range dr.Data.X {
			series.Timestamps[i] = label(raw)
		}
	}
	c.log.Debug("fetched series",
		zap.String("source", filename),
		zap.String("y", yColumn),
		zap.Int("points", series.Len()),
	)
	return series, nil
}

// label renders one x value as text: strings unquoted, numbers as written.
func label(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if string(raw) == "null" {
		return ""
	}
	return string(raw)
}

// RenderBill asks the document service for a bill PDF. The body is checked
// to be a readable PDF, since the service reports failures as a JSON body.
func (c *Client) RenderBill(ctx context.Context, doc billing.DocumentRequest) (out []byte, err error) {
	started := time.Now()
	defer func() { metrics.ObserveUpstream("render_bill", started, err) }()

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("upstream: encode document request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate_bill_pdf", bytes.NewReader(payload))
	if err != nil {
		return nil, unavailable("render bill", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, unavailable("render bill", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, unavailable("read bill", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, unavailable("render bill", fmt.Errorf("status %d", resp.StatusCode))
	}
	if _, err := pdfutil.Check(body); err != nil {
		var failure struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &failure) == nil && failure.Error != "" {
			return nil, unavailable("render bill", fmt.Errorf("document service: %s", failure.Error))
		}
		return nil, unavailable("render bill", err)
	}
	return body, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", billing.ErrUpstreamUnavailable, op, err)
}

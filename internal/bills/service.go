// Package bills coordinates bill calculation with the upstream services,
// storage, email delivery and event publishing.
package bills

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bher20/ebillmanager/internal/billing"
	"github.com/bher20/ebillmanager/internal/events"
	"github.com/bher20/ebillmanager/internal/logging"
	"github.com/bher20/ebillmanager/internal/metrics"
	"github.com/bher20/ebillmanager/internal/storage"
	"github.com/bher20/ebillmanager/internal/tariffs"
)

var (
	// ErrNotFound is returned for an unknown bill ID.
	ErrNotFound = errors.New("bill not found")
	// ErrNotConfigured is returned when an operation needs a collaborator
	// the service was built without.
	ErrNotConfigured = errors.New("not configured")
)

// SeriesSource loads consumption series from the analytics backend.
type SeriesSource interface {
	FetchSeries(ctx context.Context, filename, xColumn, yColumn string) (billing.ConsumptionSeries, error)
}

// DocumentRenderer turns a bill into a PDF.
type DocumentRenderer interface {
	RenderBill(ctx context.Context, doc billing.DocumentRequest) ([]byte, error)
}

// Mailer delivers a bill by email.
type Mailer interface {
	SendBill(ctx context.Context, to string, summary billing.BillSummary, pdf []byte) error
}

// Defaults fill request fields the caller leaves empty.
type Defaults struct {
	TariffKey   string
	PeriodLabel string
	BillingDays int
}

// Deps wires the service. Every collaborator is optional; operations that
// need a missing one fail with ErrNotConfigured.
type Deps struct {
	Store     storage.Storage
	Series    SeriesSource
	Documents DocumentRenderer
	Mailer    Mailer
	Events    events.Publisher
	Defaults  Defaults
}

// Request describes one calculation. Exactly one of Series and Source must
// be set. Tariff wins over TariffKey.
type Request struct {
	Series      *billing.ConsumptionSeries `json:"series,omitempty"`
	Source      string                     `json:"source,omitempty"`
	XColumn     string                     `json:"x_column,omitempty"`
	YColumn     string                     `json:"y_column,omitempty"`
	TariffKey   string                     `json:"tariff_key,omitempty"`
	Tariff      *billing.TariffConfig      `json:"tariff,omitempty"`
	PeriodLabel string                     `json:"billing_period,omitempty"`
	BillingDays int                        `json:"billing_days,omitempty"`
}

// Record is a persisted calculation.
type Record struct {
	ID        string              `json:"id"`
	Source    string              `json:"source,omitempty"`
	TariffKey string              `json:"tariff_key,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	Summary   billing.BillSummary `json:"summary"`
}

type Service struct {
	deps Deps
	log  *zap.Logger
}

func NewService(d Deps) *Service {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Defaults.BillingDays == 0 {
		d.Defaults.BillingDays = billing.DefaultBillingDays
	}
	return &Service{deps: d, log: logging.Named("bills")}
}

// ErrorKind names the failure class of err for metrics and API responses.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, billing.ErrInvalidTariffConfig):
		return "invalid_tariff_config"
	case errors.Is(err, billing.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, billing.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, tariffs.ErrUnknownTariff):
		return "unknown_tariff"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	default:
		return "internal"
	}
}

// Preview computes a bill without persisting or publishing it.
func (s *Service) Preview(ctx context.Context, req Request) (billing.BillSummary, error) {
	sum, err := s.compute(ctx, req)
	if err != nil {
		metrics.CalculationFailuresTotal.WithLabelValues(ErrorKind(err)).Inc()
		return billing.BillSummary{}, err
	}
	metrics.BillsCalculatedTotal.WithLabelValues(string(sum.TariffType)).Inc()
	return sum, nil
}

func (s *Service) compute(ctx context.Context, req Request) (billing.BillSummary, error) {
	series, err := s.series(ctx, req)
	if err != nil {
		return billing.BillSummary{}, err
	}

	key := req.TariffKey
	if key == "" && req.Tariff == nil {
		key = s.deps.Defaults.TariffKey
	}
	tariff, err := tariffs.Resolve(key, req.Tariff)
	if err != nil {
		return billing.BillSummary{}, err
	}

	label := req.PeriodLabel
	if label == "" {
		label = s.deps.Defaults.PeriodLabel
	}
	days := req.BillingDays
	if days == 0 {
		days = s.deps.Defaults.BillingDays
	}
	return billing.Calculate(series, tariff, label, days)
}

func (s *Service) series(ctx context.Context, req Request) (billing.ConsumptionSeries, error) {
	switch {
	case req.Series != nil && req.Source != "":
		return billing.ConsumptionSeries{}, sourceError("give either series or source, not both")
	case req.Series != nil:
		return *req.Series, nil
	case req.Source != "":
		if s.deps.Series == nil {
			return billing.ConsumptionSeries{}, fmt.Errorf("%w: analytics backend %w", billing.ErrUpstreamUnavailable, ErrNotConfigured)
		}
		return s.deps.Series.FetchSeries(ctx, req.Source, req.XColumn, req.YColumn)
	default:
		return billing.ConsumptionSeries{}, sourceError("series or source is required")
	}
}

func sourceError(constraint string) error {
	return &billing.ValidationError{Kind: billing.ErrInvalidInput, Field: "source", Constraint: constraint}
}

// Calculate computes a bill, persists it when storage is configured and
// publishes a bill event. A failed save fails the call; a failed publish is
// only logged.
func (s *Service) Calculate(ctx context.Context, req Request) (*Record, error) {
	sum, err := s.Preview(ctx, req)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ID:        uuid.New().String(),
		Source:    req.Source,
		CreatedAt: time.Now().UTC(),
		Summary:   sum,
	}
	if req.Tariff == nil {
		rec.TariffKey = req.TariffKey
		if rec.TariffKey == "" {
			rec.TariffKey = s.deps.Defaults.TariffKey
		}
	}

	if s.deps.Store != nil {
		payload, err := json.Marshal(sum)
		if err != nil {
			return nil, fmt.Errorf("encode bill: %w", err)
		}
		if err := s.deps.Store.SaveBill(ctx, storage.BillRecord{
			ID:            rec.ID,
			Source:        rec.Source,
			TariffKey:     rec.TariffKey,
			Mode:          string(sum.TariffType),
			BillingPeriod: sum.BillingPeriod,
			TotalCost:     sum.TotalCost.StringFixed(2),
			Payload:       payload,
			CreatedAt:     rec.CreatedAt,
		}); err != nil {
			return nil, fmt.Errorf("save bill: %w", err)
		}
	}

	if err := s.deps.Events.PublishBill(ctx, events.BillEvent{
		ID:        rec.ID,
		Source:    rec.Source,
		TariffKey: rec.TariffKey,
		CreatedAt: rec.CreatedAt,
		Summary:   sum,
	}); err != nil {
		s.log.Warn("publish bill event", zap.String("bill_id", rec.ID), zap.Error(err))
	}

	s.log.Info("bill calculated",
		zap.String("bill_id", rec.ID),
		zap.String("source", rec.Source),
		zap.String("mode", string(sum.TariffType)),
		zap.String("total_cost", sum.TotalCost.StringFixed(2)))
	return rec, nil
}

func decodeRecord(b storage.BillRecord) (*Record, error) {
	rec := &Record{ID: b.ID, Source: b.Source, TariffKey: b.TariffKey, CreatedAt: b.CreatedAt}
	if err := json.Unmarshal(b.Payload, &rec.Summary); err != nil {
		return nil, fmt.Errorf("decode bill %s: %w", b.ID, err)
	}
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	if s.deps.Store == nil {
		return nil, ErrNotFound
	}
	b, err := s.deps.Store.GetBill(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load bill: %w", err)
	}
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return decodeRecord(*b)
}

// List returns the newest bills first. limit <= 0 returns all of them.
func (s *Service) List(ctx context.Context, limit int) ([]Record, error) {
	if s.deps.Store == nil {
		return []Record{}, nil
	}
	rows, err := s.deps.Store.ListBills(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	out := make([]Record, 0, len(rows))
	for _, b := range rows {
		rec, err := decodeRecord(b)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// RenderPDF asks the document service for the bill document of a stored
// bill.
func (s *Service) RenderPDF(ctx context.Context, id string) ([]byte, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.RenderSummary(ctx, rec.Summary)
}

// RenderSummary renders a bill that was never stored.
func (s *Service) RenderSummary(ctx context.Context, sum billing.BillSummary) ([]byte, error) {
	if s.deps.Documents == nil {
		return nil, fmt.Errorf("%w: document service %w", billing.ErrUpstreamUnavailable, ErrNotConfigured)
	}
	return s.deps.Documents.RenderBill(ctx, sum.DocumentRequest())
}

// Email sends a stored bill to the given address. The bill document is
// attached when the document service can render it.
func (s *Service) Email(ctx context.Context, id, to string) error {
	if _, err := mail.ParseAddress(to); err != nil {
		return &billing.ValidationError{Kind: billing.ErrInvalidInput, Field: "to", Constraint: "must be an email address"}
	}
	if s.deps.Mailer == nil {
		return fmt.Errorf("mailer %w", ErrNotConfigured)
	}
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	var pdf []byte
	if s.deps.Documents != nil {
		pdf, err = s.RenderSummary(ctx, rec.Summary)
		if err != nil {
			s.log.Warn("sending bill without document", zap.String("bill_id", id), zap.Error(err))
			pdf = nil
		}
	}
	return s.deps.Mailer.SendBill(ctx, to, rec.Summary, pdf)
}

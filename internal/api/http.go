// Package api exposes the bill service over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bher20/ebillmanager/internal/api/swagger"
	"github.com/bher20/ebillmanager/internal/auth"
	"github.com/bher20/ebillmanager/internal/billing"
	"github.com/bher20/ebillmanager/internal/bills"
	"github.com/bher20/ebillmanager/internal/config"
	"github.com/bher20/ebillmanager/internal/logging"
	"github.com/bher20/ebillmanager/internal/metrics"
	"github.com/bher20/ebillmanager/internal/notification"
	"github.com/bher20/ebillmanager/internal/storage"
	"github.com/bher20/ebillmanager/internal/ui"
)

const maxBodyBytes = 10 << 20

var errStoreMissing = fmt.Errorf("storage %w", bills.ErrNotConfigured)

// Deps wires the HTTP layer. Auth and Notify may be nil: a nil Auth serves
// every route without authentication, a nil Notify disables the email
// settings routes.
type Deps struct {
	Bills     *bills.Service
	Store     storage.Storage
	Auth      *auth.Service
	Notify    *notification.Service
	RateLimit config.RateLimitConfig
}

type server struct {
	bills   *bills.Service
	store   storage.Storage
	auth    *auth.Service
	notify  *notification.Service
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewMux constructs the HTTP mux, wiring in the bill API, metrics, health
// endpoints, API docs and the web UI.
func NewMux(d Deps) *http.ServeMux {
	s := &server{
		bills:  d.Bills,
		store:  d.Store,
		auth:   d.Auth,
		notify: d.Notify,
		log:    logging.Named("api"),
	}
	if d.RateLimit.RequestsPerSecond > 0 {
		burst := d.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(d.RateLimit.RequestsPerSecond), burst)
	}

	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})

	s.route(mux, "POST /api/v1/calculate", auth.ObjBills, auth.ActRead, s.handleCalculate)
	s.route(mux, "POST /api/v1/bills", auth.ObjBills, auth.ActWrite, s.handleCreateBill)
	s.route(mux, "GET /api/v1/bills", auth.ObjBills, auth.ActRead, s.handleListBills)
	s.route(mux, "GET /api/v1/bills/{id}", auth.ObjBills, auth.ActRead, s.handleGetBill)
	s.route(mux, "GET /api/v1/bills/{id}/pdf", auth.ObjBills, auth.ActRead, s.handleBillPDF)
	s.route(mux, "POST /api/v1/bills/{id}/email", auth.ObjBills, auth.ActWrite, s.handleEmailBill)

	s.route(mux, "GET /api/v1/tariffs", auth.ObjTariffs, auth.ActRead, s.handleListTariffs)
	s.route(mux, "GET /api/v1/tariffs/{key}", auth.ObjTariffs, auth.ActRead, s.handleGetTariff)

	s.route(mux, "GET /api/v1/settings/refresh_interval", auth.ObjSettings, auth.ActRead, s.handleGetRefreshInterval)
	s.route(mux, "PUT /api/v1/settings/refresh_interval", auth.ObjSettings, auth.ActWrite, s.handlePutRefreshInterval)
	if s.notify != nil {
		s.route(mux, "GET /api/v1/settings/email", auth.ObjSettings, auth.ActRead, s.handleGetEmailConfig)
		s.route(mux, "PUT /api/v1/settings/email", auth.ObjSettings, auth.ActWrite, s.handlePutEmailConfig)
		s.route(mux, "POST /api/v1/settings/email/test", auth.ObjSettings, auth.ActWrite, s.handleTestEmailConfig)
	}

	mux.Handle("/swagger/", http.StripPrefix("/swagger", swagger.Handler()))

	mux.Handle("/ui/", http.StripPrefix("/ui/", ui.Handler()))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/ui/", http.StatusFound)
	})

	return mux
}

// route registers an instrumented handler, guarded by token auth and the
// obj/act permission when auth is enabled.
func (s *server) route(mux *http.ServeMux, pattern, obj, act string, h http.HandlerFunc) {
	var handler http.Handler = h
	if s.auth != nil {
		handler = s.auth.Middleware(s.auth.RequirePermission(obj, act, handler))
	}
	mux.Handle(pattern, instrument(pattern, handler))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		metrics.RequestsTotal.WithLabelValues(route).Inc()

		next.ServeHTTP(rec, r)

		metrics.RequestDurationSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
		if rec.status >= 400 {
			metrics.RequestErrorsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		}
	})
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.log.Warn("readyz: db ping failed", zap.Error(err))
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error      string `json:"error"`
	Kind       string `json:"kind,omitempty"`
	Field      string `json:"field,omitempty"`
	Constraint string `json:"constraint,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(kind string) int {
	switch kind {
	case "invalid_input", "invalid_tariff_config":
		return http.StatusBadRequest
	case "upstream_unavailable":
		return http.StatusBadGateway
	case "unknown_tariff", "not_found":
		return http.StatusNotFound
	case "not_configured":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a service error to its status code and JSON body.
func (s *server) writeError(w http.ResponseWriter, err error) {
	kind := bills.ErrorKind(err)
	if kind == "internal" && errors.Is(err, notification.ErrNotConfigured) {
		kind = "not_configured"
	}
	resp := ErrorResponse{Error: err.Error(), Kind: kind}
	var ve *billing.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
		resp.Constraint = ve.Constraint
	}
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Kind: "invalid_input"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/bher20/ebillmanager/internal/bills"
)

// handleCalculate computes a bill without storing it.
// @Summary Calculate a bill
// @Description Compute a bill from an inline series or a backend source file. Nothing is stored.
// @Tags bills
// @Accept json
// @Produce json
// @Param request body bills.Request true "Calculation request"
// @Success 200 {object} billing.BillSummary
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/calculate [post]
func (s *server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded", Kind: "rate_limited"})
		return
	}
	var req bills.Request
	if !decodeBody(w, r, &req) {
		return
	}
	sum, err := s.bills.Preview(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handleCreateBill computes and stores a bill.
// @Summary Create a bill
// @Tags bills
// @Accept json
// @Produce json
// @Param request body bills.Request true "Calculation request"
// @Success 201 {object} bills.Record
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/bills [post]
func (s *server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var req bills.Request
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := s.bills.Calculate(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/bills/"+rec.ID)
	writeJSON(w, http.StatusCreated, rec)
}

// handleListBills lists stored bills, newest first.
// @Summary List bills
// @Tags bills
// @Produce json
// @Param limit query int false "Maximum number of bills"
// @Success 200 {array} bills.Record
// @Router /api/v1/bills [get]
func (s *server) handleListBills(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	recs, err := s.bills.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// @Summary Get a bill
// @Tags bills
// @Produce json
// @Param id path string true "Bill ID"
// @Success 200 {object} bills.Record
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/bills/{id} [get]
func (s *server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	rec, err := s.bills.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// @Summary Download the bill document
// @Tags bills
// @Produce application/pdf
// @Param id path string true "Bill ID"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/bills/{id}/pdf [get]
func (s *server) handleBillPDF(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pdf, err := s.bills.RenderPDF(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=bill_%s.pdf", id))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	_, _ = w.Write(pdf)
}

type emailBillRequest struct {
	To string `json:"to"`
}

// @Summary Email a bill
// @Tags bills
// @Accept json
// @Produce json
// @Param id path string true "Bill ID"
// @Param request body emailBillRequest true "Recipient"
// @Success 202 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/bills/{id}/email [post]
func (s *server) handleEmailBill(w http.ResponseWriter, r *http.Request) {
	var req emailBillRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.bills.Email(r.Context(), r.PathValue("id"), req.To); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

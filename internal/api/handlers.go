package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/fundry/internal/ledger"
	"github.com/foxzi/fundry/internal/metrics"
)

// CreateCampaignRequest is the request body for POST /campaigns
type CreateCampaignRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	Recipient       string `json:"recipient"`
	Goal            uint64 `json:"goal"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// CreateCampaignResponse is the response for POST /campaigns
type CreateCampaignResponse struct {
	ID uint64 `json:"id"`
}

// DonationRequest is the request body for POST /campaigns/{id}/donations
type DonationRequest struct {
	Donor  string `json:"donor"`
	Amount uint64 `json:"amount"`
}

// DepositRequest is the request body for POST /pool/deposits
type DepositRequest struct {
	From   string `json:"from"`
	Amount uint64 `json:"amount"`
}

// WithdrawRequest is the request body for POST /pool/withdrawals
type WithdrawRequest struct {
	Amount uint64 `json:"amount"`
}

// CampaignListResponse is the response for GET /campaigns
type CampaignListResponse struct {
	Campaigns []ledger.Campaign `json:"campaigns"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Uptime  string            `json:"uptime"`
	Pool    *ledger.PoolStats `json:"pool,omitempty"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleCreateCampaign handles POST /api/v1/campaigns
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Title == "" {
		s.sendError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Recipient == "" {
		s.sendError(w, http.StatusBadRequest, "recipient is required")
		return
	}
	if req.DurationSeconds <= 0 {
		s.sendError(w, http.StatusBadRequest, "duration_seconds must be positive")
		return
	}

	id, err := s.ledger.CreateCampaign(r.Context(), ledger.CreateParams{
		Title:       req.Title,
		Description: req.Description,
		Recipient:   ledger.Address(req.Recipient),
		Goal:        req.Goal,
		Duration:    time.Duration(req.DurationSeconds) * time.Second,
	})
	if err != nil {
		s.sendLedgerError(w, err)
		return
	}

	if m := metrics.Global(); m != nil {
		m.CampaignsCreatedTotal.Inc()
	}

	s.sendJSON(w, http.StatusCreated, CreateCampaignResponse{ID: id})
}

// handleListCampaigns handles GET /api/v1/campaigns
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	filter := ledger.ListFilter{}
	if r.URL.Query().Get("open") == "true" {
		filter.OnlyOpen = true
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	campaigns, err := s.ledger.Campaigns(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list campaigns", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list campaigns")
		return
	}
	if campaigns == nil {
		campaigns = []ledger.Campaign{}
	}

	s.sendJSON(w, http.StatusOK, CampaignListResponse{Campaigns: campaigns})
}

// handleGetCampaign handles GET /api/v1/campaigns/{id}
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}

	c, err := s.ledger.Campaign(r.Context(), id)
	if err != nil {
		s.sendLedgerError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, c)
}

// handleDonate handles POST /api/v1/campaigns/{id}/donations
func (s *Server) handleDonate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}

	var req DonationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.ledger.Donate(r.Context(), id, ledger.Address(req.Donor), req.Amount); err != nil {
		s.sendLedgerError(w, err)
		return
	}

	if m := metrics.Global(); m != nil {
		m.DonationsTotal.Inc()
		m.DonatedAmountTotal.Add(float64(req.Amount))
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleEndCampaign handles POST /api/v1/campaigns/{id}/end
func (s *Server) handleEndCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}

	if err := s.ledger.EndCampaign(r.Context(), id); err != nil {
		if m := metrics.Global(); m != nil && errors.Is(err, ledger.ErrTransferFailed) {
			m.SettlementFailuresTotal.Inc()
		}
		s.sendLedgerError(w, err)
		return
	}

	if m := metrics.Global(); m != nil {
		m.SettlementsTotal.Inc()
	}

	w.WriteHeader(http.StatusNoContent)
}

// handlePool handles GET /api/v1/pool
func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.Pool(r.Context())
	if err != nil {
		s.logger.Error("failed to get pool stats", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get pool stats")
		return
	}

	s.sendJSON(w, http.StatusOK, stats)
}

// handleDeposit handles POST /api/v1/pool/deposits
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.ledger.Deposit(r.Context(), ledger.Address(req.From), req.Amount); err != nil {
		s.sendLedgerError(w, err)
		return
	}

	if m := metrics.Global(); m != nil {
		m.DepositsTotal.Inc()
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleWithdraw handles POST /api/v1/pool/withdrawals. The caller proves
// it is the authority via the X-Authority-Key header.
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	key := r.Header.Get("X-Authority-Key")
	if err := s.ledger.WithdrawResidual(r.Context(), key, req.Amount); err != nil {
		s.sendLedgerError(w, err)
		return
	}

	if m := metrics.Global(); m != nil {
		m.WithdrawalsTotal.Inc()
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleEvents handles GET /api/v1/events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Event archive not configured")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	evs, err := s.archive.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list events", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}

	s.sendJSON(w, http.StatusOK, evs)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	}
	if stats, err := s.ledger.Pool(r.Context()); err == nil {
		resp.Pool = &stats
	}

	s.sendJSON(w, http.StatusOK, resp)
}

// campaignID parses the {id} URL parameter
func (s *Server) campaignID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid campaign id")
		return 0, false
	}
	return id, true
}

// sendLedgerError maps ledger errors onto HTTP statuses
func (s *Server) sendLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidGoal),
		errors.Is(err, ledger.ErrCampaignExpired),
		errors.Is(err, ledger.ErrCampaignAlreadyEnded),
		errors.Is(err, ledger.ErrCampaignStillOngoing):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, ledger.ErrInsufficientBalance):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrTransferFailed):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("ledger operation failed", "error", err)
	}

	s.sendError(w, status, err.Error())
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendError sends a JSON error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

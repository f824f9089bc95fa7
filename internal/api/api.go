// Package api provides the HTTP surface over the order executor: event
// creation, quote reads, order submission, settlement, and account and
// portfolio queries.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/outcomex/market-engine/internal/engine"
	"github.com/outcomex/market-engine/internal/model"
	"github.com/outcomex/market-engine/internal/store"
)

// Handler bundles the executor and store behind chi route handlers.
type Handler struct {
	executor *engine.Executor
	store    store.Store
}

// NewHandler creates the API handler.
func NewHandler(x *engine.Executor, st store.Store) *Handler {
	return &Handler{executor: x, store: st}
}

// Routes mounts all API routes on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/events", h.ListEvents)
	r.Post("/events", h.CreateEvent)
	r.Get("/events/{eventID}", h.GetEvent)
	r.Get("/events/{eventID}/quotes", h.GetQuotes)
	r.Get("/events/{eventID}/ledger", h.GetEventLedger)
	r.Post("/events/{eventID}/cancel", h.CancelEvent)
	r.Post("/events/{eventID}/resolve", h.ResolveEvent)

	r.Post("/orders", h.PlaceOrder)

	r.Post("/accounts/{userID}/deposits", h.Deposit)
	r.Get("/users/{userID}/positions", h.GetUserPositions)
	r.Get("/users/{userID}/ledger", h.GetUserLedger)
}

// --- Request types ---

// CreateEventRequest is the JSON body for event creation.
type CreateEventRequest struct {
	Title string          `json:"title"`
	B     decimal.Decimal `json:"b"` // liquidity parameter; 0 → default
}

// DepositRequest is the JSON body for account deposits.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// ResolveRequest is the JSON body for event resolution.
type ResolveRequest struct {
	Winner model.Outcome `json:"winner"`
}

// --- Handlers ---

// CreateEvent handles POST /api/v1/events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		writeError(w, "title is required", http.StatusBadRequest)
		return
	}

	event, err := h.executor.CreateEvent(r.Context(), req.Title, req.B)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /api/v1/events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.store.ListEvents(r.Context())
	if err != nil {
		writeError(w, "failed to list events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /api/v1/events/{eventID}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	event, err := h.store.GetEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, "event not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// GetQuotes handles GET /api/v1/events/{eventID}/quotes
func (h *Handler) GetQuotes(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	quotes, err := h.executor.GetQuotes(r.Context(), eventID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quotes)
}

// PlaceOrder handles POST /api/v1/orders
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req engine.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	result, err := h.executor.PlaceOrder(r.Context(), req)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CancelEvent handles POST /api/v1/events/{eventID}/cancel
func (h *Handler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	event, err := h.executor.CancelEvent(r.Context(), eventID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// ResolveEvent handles POST /api/v1/events/{eventID}/resolve
func (h *Handler) ResolveEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	event, err := h.executor.ResolveEvent(r.Context(), eventID, req.Winner)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// Deposit handles POST /api/v1/accounts/{userID}/deposits
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	account, err := h.executor.Deposit(r.Context(), userID, req.Amount)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// GetUserPositions handles GET /api/v1/users/{userID}/positions
func (h *Handler) GetUserPositions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	positions, err := h.store.GetUserPositions(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// GetUserLedger handles GET /api/v1/users/{userID}/ledger
func (h *Handler) GetUserLedger(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	entries, err := h.store.GetLedgerEntriesByUser(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to load ledger", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetEventLedger handles GET /api/v1/events/{eventID}/ledger
func (h *Handler) GetEventLedger(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	entries, err := h.store.GetLedgerEntriesByEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, "failed to load ledger", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// writeEngineError maps the engine's error taxonomy to HTTP statuses.
// PriceMismatch responses carry the fresh quotes so clients can re-quote
// and resubmit.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	var mismatch *engine.PriceMismatchError
	switch {
	case errors.As(err, &mismatch):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":  mismatch.Error(),
			"quotes": mismatch.Quotes,
		})
	case errors.Is(err, engine.ErrNonexistentEvent):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrEventNotActive),
		errors.Is(err, engine.ErrInsufficientFunds),
		errors.Is(err, engine.ErrInsufficientShares):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, engine.ErrUnknownOutcome),
		errors.Is(err, engine.ErrUnknownDirection),
		errors.Is(err, engine.ErrInvalidQuantity),
		errors.Is(err, engine.ErrInvalidAmount):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, engine.ErrBusy):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

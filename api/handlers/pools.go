package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/openalpha/termvault/api/types"
)

const (
	defaultPageLimit     = 50
	defaultCalendarLimit = 100
)

// PoolHandler handles term pool API requests
type PoolHandler struct {
	service types.PoolService
}

// NewPoolHandler creates a new PoolHandler
func NewPoolHandler(service types.PoolService) *PoolHandler {
	return &PoolHandler{service: service}
}

// RegisterRoutes registers pool API routes
func (h *PoolHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/pools", h.ListPools).Methods(http.MethodGet)
	r.HandleFunc("/v1/pools", h.CreatePool).Methods(http.MethodPost)
	r.HandleFunc("/v1/pools/{poolId}", h.GetPool).Methods(http.MethodGet)

	// Valuation
	r.HandleFunc("/v1/pools/{poolId}/value", h.GetValue).Methods(http.MethodGet)
	r.HandleFunc("/v1/pools/{poolId}/value/history", h.GetValueHistory).Methods(http.MethodGet)

	// Holder routes
	r.HandleFunc("/v1/pools/{poolId}/positions/{holder}", h.GetPosition).Methods(http.MethodGet)
	r.HandleFunc("/v1/pools/{poolId}/withdraw/preview", h.PreviewWithdraw).Methods(http.MethodGet)
	r.HandleFunc("/v1/pools/{poolId}/deposit", h.Deposit).Methods(http.MethodPost)
	r.HandleFunc("/v1/pools/{poolId}/withdraw", h.Withdraw).Methods(http.MethodPost)
	r.HandleFunc("/v1/pools/{poolId}/redeem", h.Redeem).Methods(http.MethodPost)
	r.HandleFunc("/v1/pools/{poolId}/claim", h.ClaimCoupon).Methods(http.MethodPost)

	// Operator actions
	r.HandleFunc("/v1/pools/{poolId}/actions/{action}", h.PoolAction).Methods(http.MethodPost)

	r.HandleFunc("/v1/calendar", h.GetCalendar).Methods(http.MethodGet)
}

// ListPools handles GET /v1/pools
func (h *PoolHandler) ListPools(w http.ResponseWriter, r *http.Request) {
	offset, err := queryUint(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryUint(r, "limit", defaultPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	pools, total, err := h.service.ListPools(r.Context(), offset, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pools": pools,
		"total": total,
	})
}

// CreatePool handles POST /v1/pools
func (h *PoolHandler) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req types.CreatePoolRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Creator == "" {
		writeError(w, http.StatusBadRequest, "creator is required")
		return
	}

	pool, err := h.service.CreatePool(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pool)
}

// GetPool handles GET /v1/pools/{poolId}
func (h *PoolHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := h.service.GetPool(r.Context(), mux.Vars(r)["poolId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

// GetValue handles GET /v1/pools/{poolId}/value
func (h *PoolHandler) GetValue(w http.ResponseWriter, r *http.Request) {
	value, err := h.service.GetValue(r.Context(), mux.Vars(r)["poolId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, value)
}

// GetValueHistory handles GET /v1/pools/{poolId}/value/history
func (h *PoolHandler) GetValueHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.GetValueHistory(r.Context(), mux.Vars(r)["poolId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"snapshots": history})
}

// GetPosition handles GET /v1/pools/{poolId}/positions/{holder}
func (h *PoolHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pos, err := h.service.GetPosition(r.Context(), vars["poolId"], vars["holder"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// PreviewWithdraw handles GET /v1/pools/{poolId}/withdraw/preview?owner=&assets=
func (h *PoolHandler) PreviewWithdraw(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	assets := r.URL.Query().Get("assets")
	if owner == "" || assets == "" {
		writeError(w, http.StatusBadRequest, "owner and assets are required")
		return
	}

	quote, err := h.service.PreviewWithdraw(r.Context(), mux.Vars(r)["poolId"], owner, assets)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (h *PoolHandler) amountRequest(w http.ResponseWriter, r *http.Request) (*types.AmountRequest, bool) {
	var req types.AmountRequest
	if !decodeBody(w, r, &req) {
		return nil, false
	}
	if req.Caller == "" {
		writeError(w, http.StatusBadRequest, "caller is required")
		return nil, false
	}
	if req.Amount == "" {
		writeError(w, http.StatusBadRequest, "amount is required")
		return nil, false
	}
	return &req, true
}

// Deposit handles POST /v1/pools/{poolId}/deposit
func (h *PoolHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	req, ok := h.amountRequest(w, r)
	if !ok {
		return
	}
	resp, err := h.service.Deposit(r.Context(), mux.Vars(r)["poolId"], req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Withdraw handles POST /v1/pools/{poolId}/withdraw
func (h *PoolHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	req, ok := h.amountRequest(w, r)
	if !ok {
		return
	}
	resp, err := h.service.Withdraw(r.Context(), mux.Vars(r)["poolId"], req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Redeem handles POST /v1/pools/{poolId}/redeem, where amount is in shares
func (h *PoolHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	req, ok := h.amountRequest(w, r)
	if !ok {
		return
	}
	resp, err := h.service.Redeem(r.Context(), mux.Vars(r)["poolId"], req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ClaimCoupon handles POST /v1/pools/{poolId}/claim
func (h *PoolHandler) ClaimCoupon(w http.ResponseWriter, r *http.Request) {
	var req types.AmountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Caller == "" {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}
	resp, err := h.service.ClaimCoupon(r.Context(), mux.Vars(r)["poolId"], req.Caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// PoolAction handles POST /v1/pools/{poolId}/actions/{action}
func (h *PoolHandler) PoolAction(w http.ResponseWriter, r *http.Request) {
	var req types.ActionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Caller == "" {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}

	vars := mux.Vars(r)
	resp, err := h.service.PoolAction(r.Context(), vars["poolId"], vars["action"], &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCalendar handles GET /v1/calendar?from=<unix>&limit=
func (h *PoolHandler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	from := time.Now()
	if raw := r.URL.Query().Get("from"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from")
			return
		}
		from = time.Unix(ts, 0)
	}
	limit, err := queryUint(r, "limit", defaultCalendarLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": h.service.Calendar(r.Context(), from, int(limit)),
	})
}

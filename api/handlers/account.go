package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/openalpha/termvault/api/types"
)

// AccountHandler handles account-related HTTP requests
type AccountHandler struct {
	service      types.AccountService
	allowFaucet  bool
	defaultDenom string
}

// NewAccountHandler creates a new account handler. Fund is only routed when
// allowFaucet is set.
func NewAccountHandler(service types.AccountService, allowFaucet bool, defaultDenom string) *AccountHandler {
	return &AccountHandler{service: service, allowFaucet: allowFaucet, defaultDenom: defaultDenom}
}

// RegisterRoutes registers account API routes
func (h *AccountHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/accounts/{address}/balance", h.GetBalance).Methods(http.MethodGet)
	if h.allowFaucet {
		r.HandleFunc("/v1/accounts/{address}/fund", h.Fund).Methods(http.MethodPost)
	}
}

type fundRequest struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// GetBalance handles GET /v1/accounts/{address}/balance?denom=
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["address"]
	denom := r.URL.Query().Get("denom")
	if denom == "" {
		denom = h.defaultDenom
	}

	amount, err := h.service.Balance(r.Context(), addr, denom)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": addr,
		"denom":   denom,
		"amount":  amount,
	})
}

// Fund handles POST /v1/accounts/{address}/fund
func (h *AccountHandler) Fund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Amount == "" {
		writeError(w, http.StatusBadRequest, "amount is required")
		return
	}
	if req.Denom == "" {
		req.Denom = h.defaultDenom
	}

	addr := mux.Vars(r)["address"]
	if err := h.service.Fund(r.Context(), addr, req.Denom, req.Amount); err != nil {
		writeServiceError(w, err)
		return
	}
	h.GetBalance(w, withDenom(r, req.Denom))
}

func withDenom(r *http.Request, denom string) *http.Request {
	q := r.URL.Query()
	q.Set("denom", denom)
	r2 := r.Clone(r.Context())
	r2.URL.RawQuery = q.Encode()
	return r2
}

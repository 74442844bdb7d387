package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/openalpha/termvault/api/types"
	custodytypes "github.com/openalpha/termvault/x/custody/types"
)

// CustodyHandler handles custody ledger API requests
type CustodyHandler struct {
	service types.CustodyService
}

// NewCustodyHandler creates a new CustodyHandler
func NewCustodyHandler(service types.CustodyService) *CustodyHandler {
	return &CustodyHandler{service: service}
}

// RegisterRoutes registers custody API routes
func (h *CustodyHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/custody/ledgers/{ledgerId}", h.GetLedger).Methods(http.MethodGet)
	r.HandleFunc("/v1/custody/ledgers/{ledgerId}/signers", h.UpdateSigners).Methods(http.MethodPost)

	r.HandleFunc("/v1/custody/ledgers/{ledgerId}/transfers", h.ListTransfers).Methods(http.MethodGet)
	r.HandleFunc("/v1/custody/ledgers/{ledgerId}/transfers", h.ProposeTransfer).Methods(http.MethodPost)
	r.HandleFunc("/v1/custody/ledgers/{ledgerId}/transfers/{transferId}/approve", h.ApproveTransfer).Methods(http.MethodPost)
	r.HandleFunc("/v1/custody/ledgers/{ledgerId}/transfers/{transferId}/execute", h.ExecuteTransfer).Methods(http.MethodPost)
	r.HandleFunc("/v1/custody/ledgers/{ledgerId}/transfers/{transferId}/revoke", h.RevokeTransfer).Methods(http.MethodPost)
}

// signerRequest is the body of approve, execute and revoke
type signerRequest struct {
	Signer string `json:"signer"`
}

// GetLedger handles GET /v1/custody/ledgers/{ledgerId}
func (h *CustodyHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.service.GetLedger(r.Context(), mux.Vars(r)["ledgerId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ledger)
}

// ListTransfers handles GET /v1/custody/ledgers/{ledgerId}/transfers?pending=true
func (h *CustodyHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	pending := r.URL.Query().Get("pending") == "true"
	transfers, err := h.service.ListTransfers(r.Context(), mux.Vars(r)["ledgerId"], pending)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transfers": transfers})
}

// ProposeTransfer handles POST /v1/custody/ledgers/{ledgerId}/transfers
func (h *CustodyHandler) ProposeTransfer(w http.ResponseWriter, r *http.Request) {
	var msg custodytypes.MsgProposeTransfer
	if !decodeBody(w, r, &msg) {
		return
	}
	msg.LedgerID = mux.Vars(r)["ledgerId"]

	resp, err := h.service.ProposeTransfer(r.Context(), &msg)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *CustodyHandler) signer(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req signerRequest
	if !decodeBody(w, r, &req) {
		return "", false
	}
	if req.Signer == "" {
		writeError(w, http.StatusBadRequest, "signer is required")
		return "", false
	}
	return req.Signer, true
}

// ApproveTransfer handles POST .../transfers/{transferId}/approve
func (h *CustodyHandler) ApproveTransfer(w http.ResponseWriter, r *http.Request) {
	signer, ok := h.signer(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	resp, err := h.service.ApproveTransfer(r.Context(), &custodytypes.MsgApproveTransfer{
		Signer:     signer,
		LedgerID:   vars["ledgerId"],
		TransferID: vars["transferId"],
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExecuteTransfer handles POST .../transfers/{transferId}/execute
func (h *CustodyHandler) ExecuteTransfer(w http.ResponseWriter, r *http.Request) {
	signer, ok := h.signer(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	resp, err := h.service.ExecuteTransfer(r.Context(), &custodytypes.MsgExecuteTransfer{
		Caller:     signer,
		LedgerID:   vars["ledgerId"],
		TransferID: vars["transferId"],
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// RevokeTransfer handles POST .../transfers/{transferId}/revoke
func (h *CustodyHandler) RevokeTransfer(w http.ResponseWriter, r *http.Request) {
	signer, ok := h.signer(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	err := h.service.RevokeTransfer(r.Context(), &custodytypes.MsgRevokeTransfer{
		Signer:     signer,
		LedgerID:   vars["ledgerId"],
		TransferID: vars["transferId"],
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"revoked": true})
}

// UpdateSigners handles POST /v1/custody/ledgers/{ledgerId}/signers
func (h *CustodyHandler) UpdateSigners(w http.ResponseWriter, r *http.Request) {
	var msg custodytypes.MsgUpdateSigners
	if !decodeBody(w, r, &msg) {
		return
	}
	msg.LedgerID = mux.Vars(r)["ledgerId"]

	resp, err := h.service.UpdateSigners(r.Context(), &msg)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

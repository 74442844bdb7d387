package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"

	"github.com/openalpha/termvault/api/types"
	"github.com/openalpha/termvault/metrics"
	custodytypes "github.com/openalpha/termvault/x/custody/types"
	termpooltypes "github.com/openalpha/termvault/x/termpool/types"
)

const maxBodyBytes = 1 << 20

var (
	notFoundErrors = []error{
		termpooltypes.ErrPoolNotFound,
		custodytypes.ErrLedgerNotFound,
		custodytypes.ErrTransferNotFound,
	}
	forbiddenErrors = []error{
		termpooltypes.ErrUnauthorized,
		custodytypes.ErrUnauthorized,
	}
	conflictErrors = []error{
		termpooltypes.ErrWrongPhase,
		termpooltypes.ErrPoolAlreadyExists,
		termpooltypes.ErrEpochEnded,
		termpooltypes.ErrCouponAlreadyPaid,
		custodytypes.ErrLedgerExists,
		custodytypes.ErrAlreadyExecuted,
		custodytypes.ErrDuplicateApproval,
		custodytypes.ErrTransferAlreadyExists,
		custodytypes.ErrTransferRevoked,
		custodytypes.ErrThresholdNotMet,
		custodytypes.ErrThresholdReached,
		custodytypes.ErrInvestmentWindowClosed,
	}
	badRequestErrors = []error{
		types.ErrUnknownAction,
		sdkerrors.ErrInvalidAddress,
		sdkerrors.ErrInvalidRequest,
	}
)

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// statusFor maps a module error to an HTTP status. Registered errors not
// listed explicitly are rejected business rules (422); anything else is 500.
func statusFor(err error) int {
	switch {
	case termpooltypes.Retryable(err):
		return http.StatusTooEarly
	case isAny(err, notFoundErrors):
		return http.StatusNotFound
	case isAny(err, forbiddenErrors):
		return http.StatusForbidden
	case isAny(err, conflictErrors):
		return http.StatusConflict
	case isAny(err, badRequestErrors):
		return http.StatusBadRequest
	}
	if codespace, _, _ := errorsmod.ABCIInfo(err, false); codespace != errorsmod.UndefinedCodespace {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, types.ErrorResponse{Error: message})
}

// writeServiceError reports an error returned by a service call
func writeServiceError(w http.ResponseWriter, err error) {
	codespace, code, _ := errorsmod.ABCIInfo(err, false)
	metrics.GetCollector().RecordAPIError(codespace, code)

	resp := types.ErrorResponse{
		Error:     err.Error(),
		Retryable: termpooltypes.Retryable(err),
	}
	if codespace != errorsmod.UndefinedCodespace {
		resp.Codespace = codespace
		resp.Code = code
	}
	writeJSON(w, statusFor(err), resp)
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func queryUint(r *http.Request, name string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

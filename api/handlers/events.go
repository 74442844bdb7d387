package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/openalpha/termvault/api/eventstore"
	"github.com/openalpha/termvault/api/types"
)

// EventArchive is the read side of the event store
type EventArchive interface {
	Events(ctx context.Context, f eventstore.Filter) ([]types.Event, error)
}

// EventHandler serves archived events
type EventHandler struct {
	archive EventArchive
}

// NewEventHandler creates a new event handler
func NewEventHandler(archive EventArchive) *EventHandler {
	return &EventHandler{archive: archive}
}

// RegisterRoutes registers event history routes
func (h *EventHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/pools/{poolId}/events", h.PoolEvents).Methods(http.MethodGet)
	r.HandleFunc("/v1/custody/ledgers/{ledgerId}/events", h.LedgerEvents).Methods(http.MethodGet)
}

// PoolEvents handles GET /v1/pools/{poolId}/events?type=&limit=
func (h *EventHandler) PoolEvents(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, eventstore.Filter{PoolID: mux.Vars(r)["poolId"]})
}

// LedgerEvents handles GET /v1/custody/ledgers/{ledgerId}/events?type=&limit=
func (h *EventHandler) LedgerEvents(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, eventstore.Filter{LedgerID: mux.Vars(r)["ledgerId"]})
}

func (h *EventHandler) serve(w http.ResponseWriter, r *http.Request, f eventstore.Filter) {
	limit, err := queryUint(r, "limit", 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.Type = r.URL.Query().Get("type")
	f.Limit = int(limit)

	events, err := h.archive.Events(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "event archive unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

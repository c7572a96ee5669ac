package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/passportal/auditledger/internal/audit"
	"github.com/passportal/auditledger/internal/canonical"
)

// POST /audit/events
// Accepts { tenantId?, action, resourceType, resourceId?, subject?, decision?, metadata? }.
func handleRecordEvent(writer *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TenantID     string          `json:"tenantId"`
			Action       string          `json:"action"`
			ResourceType string          `json:"resourceType"`
			ResourceID   string          `json:"resourceId"`
			Subject      string          `json:"subject"`
			Decision     string          `json:"decision"`
			Metadata     json.RawMessage `json:"metadata"`
		}
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&req); err != nil {
			http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.Action == "" {
			http.Error(w, "action required", http.StatusBadRequest)
			return
		}
		if req.ResourceType == "" {
			http.Error(w, "resourceType required", http.StatusBadRequest)
			return
		}

		var metadata *canonical.Value
		if len(req.Metadata) > 0 && string(req.Metadata) != "null" {
			v, err := canonical.Decode(req.Metadata)
			if err != nil {
				http.Error(w, "invalid metadata: "+err.Error(), http.StatusBadRequest)
				return
			}
			metadata = &v
		}

		ev, err := writer.RecordEvent(r.Context(), audit.RecordParams{
			TenantID:     req.TenantID,
			Action:       req.Action,
			ResourceType: req.ResourceType,
			ResourceID:   req.ResourceID,
			Subject:      req.Subject,
			Decision:     req.Decision,
			Metadata:     metadata,
		})
		if err != nil {
			http.Error(w, "record event: "+err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, ev)
	}
}

// GET /audit/events/{id}
func handleGetEvent(store audit.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ev, err := store.GetEvent(r.Context(), id)
		if errors.Is(err, audit.ErrNotFound) {
			http.Error(w, "event not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "get event: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

// GET /audit/chain/{tenantID}/verify
// Replays the tenant's chain and reports the verification result. A broken
// chain is a 200 with isValid=false, not an error status.
func handleVerifyChain(store audit.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope := audit.Scope(chi.URLParam(r, "tenantID"))
		events, err := store.ChainEvents(r.Context(), scope)
		if err != nil {
			http.Error(w, "load chain: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, audit.VerifyHashChain(events))
	}
}

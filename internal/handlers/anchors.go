package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/passportal/auditledger/internal/anchor"
	"github.com/passportal/auditledger/internal/audit"
	"github.com/passportal/auditledger/internal/merkle"
)

// POST /audit/anchors/{tenantID}
// Anchors the tenant's next unanchored range immediately.
func handleAnchorNow(job *anchor.Job) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := chi.URLParam(r, "tenantID")
		mr, err := job.AnchorBatch(r.Context(), tenantID)
		if errors.Is(err, audit.ErrNothingToAnchor) {
			http.Error(w, "nothing to anchor", http.StatusConflict)
			return
		}
		if err != nil {
			http.Error(w, "anchor batch: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, mr)
	}
}

// GET /audit/anchors/{tenantID}
func handleListAnchors(store audit.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope := audit.Scope(chi.URLParam(r, "tenantID"))
		anchors, err := store.Anchors(r.Context(), scope)
		if err != nil {
			http.Error(w, "list anchors: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"anchors": anchors})
	}
}

// GET /audit/proofs/{tenantID}/{anchorID}?sequence=n
// Returns the inclusion proof linking the event at chain_sequence n to the
// anchor's Merkle root, plus the verification outcome.
func handleProof(store audit.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope := audit.Scope(chi.URLParam(r, "tenantID"))
		anchorID := chi.URLParam(r, "anchorID")

		seq, err := strconv.ParseInt(r.URL.Query().Get("sequence"), 10, 64)
		if err != nil {
			http.Error(w, "sequence query parameter required", http.StatusBadRequest)
			return
		}

		mr, err := store.GetAnchor(r.Context(), anchorID)
		if errors.Is(err, audit.ErrNotFound) {
			http.Error(w, "anchor not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "get anchor: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if mr.TenantID != scope {
			http.Error(w, "anchor not found", http.StatusNotFound)
			return
		}
		if seq < mr.FirstSequence || seq > mr.LastSequence {
			http.Error(w, "sequence outside anchored range", http.StatusBadRequest)
			return
		}

		events, err := store.EventsInRange(r.Context(), scope, mr.FirstSequence, mr.LastSequence)
		if err != nil {
			http.Error(w, "load anchored events: "+err.Error(), http.StatusInternalServerError)
			return
		}
		leaves := make([]string, len(events))
		for i, ev := range events {
			leaves[i] = ev.EventHash
		}

		index := int(seq - mr.FirstSequence)
		proof, err := merkle.ComputeInclusionProof(leaves, index)
		if err != nil {
			http.Error(w, "compute proof: "+err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"tenantId": mr.TenantID,
			"anchorId": mr.ID,
			"sequence": seq,
			"leafHash": leaves[index],
			"rootHash": mr.RootHash,
			"proof":    proof,
			"verified": merkle.VerifyInclusionProof(leaves[index], proof, mr.RootHash),
		})
	}
}

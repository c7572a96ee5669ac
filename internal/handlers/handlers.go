// package handlers exposes the audit core's collaborator entry points over
// HTTP: record_event for the surrounding platform, anchor_batch for schedule
// tooling, and the read-only verification surface for compliance tooling.
// Handlers are thin; they never compute hashes or sequence numbers themselves.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/passportal/auditledger/internal/anchor"
	"github.com/passportal/auditledger/internal/audit"
	"github.com/passportal/auditledger/internal/keys"
)

// Deps holds the shared dependencies handlers need.
type Deps struct {
	Store    audit.Store
	Writer   *audit.Writer
	Job      *anchor.Job
	Registry *keys.Registry

	// Auth, when non-nil, wraps the audit routes.
	Auth func(next http.Handler) http.Handler
}

// NewRouter builds the chi router for the audit surface.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", handleHealth(d.Store))
	if d.Registry != nil {
		r.Get("/keys", d.Registry.StatusHandler())
	}

	r.Route("/audit", func(r chi.Router) {
		if d.Auth != nil {
			r.Use(d.Auth)
		}
		r.Post("/events", handleRecordEvent(d.Writer))
		r.Get("/events/{id}", handleGetEvent(d.Store))
		r.Post("/anchors/{tenantID}", handleAnchorNow(d.Job))
		r.Get("/anchors/{tenantID}", handleListAnchors(d.Store))
		r.Get("/chain/{tenantID}/verify", handleVerifyChain(d.Store))
		r.Get("/proofs/{tenantID}/{anchorID}", handleProof(d.Store))
	})

	return r
}

func handleHealth(store audit.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "store unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

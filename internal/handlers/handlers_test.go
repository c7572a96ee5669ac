package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/passportal/auditledger/internal/anchor"
	"github.com/passportal/auditledger/internal/audit"
	"github.com/passportal/auditledger/internal/handlers"
	"github.com/passportal/auditledger/internal/keys"
	"github.com/passportal/auditledger/internal/signer"
)

func newTestServer(t *testing.T) (*httptest.Server, audit.Store) {
	t.Helper()

	store := audit.NewMemoryStore()
	sign := signer.NewLocalSigner("test-signer")
	registry := keys.NewRegistry()
	registry.AddSigner("test-signer", sign.PublicKey(), "Ed25519")

	srv := httptest.NewServer(handlers.NewRouter(handlers.Deps{
		Store:    store,
		Writer:   audit.NewWriter(store),
		Job:      anchor.NewJob(store, sign, nil, anchor.JobConfig{}),
		Registry: registry,
	}))
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func recordEvents(t *testing.T, srv *httptest.Server, tenantID string, n int) []audit.AuditEvent {
	t.Helper()
	out := make([]audit.AuditEvent, 0, n)
	for i := 0; i < n; i++ {
		resp := postJSON(t, srv.URL+"/audit/events", map[string]interface{}{
			"tenantId":     tenantID,
			"action":       fmt.Sprintf("doc.read.%d", i),
			"resourceType": "document",
			"resourceId":   fmt.Sprintf("doc-%d", i),
			"metadata":     map[string]interface{}{"attempt": i},
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("record event: status %d", resp.StatusCode)
		}
		var ev audit.AuditEvent
		decodeBody(t, resp, &ev)
		out = append(out, ev)
	}
	return out
}

func TestRecordAndGetEvent(t *testing.T) {
	srv, _ := newTestServer(t)

	events := recordEvents(t, srv, "tenant-a", 2)
	if events[0].ChainSequence != 0 || events[1].ChainSequence != 1 {
		t.Fatalf("unexpected sequences: %d, %d", events[0].ChainSequence, events[1].ChainSequence)
	}
	if events[1].PrevEventHash != events[0].EventHash {
		t.Fatalf("chain not linked across requests")
	}

	resp, err := http.Get(srv.URL + "/audit/events/" + events[0].ID)
	if err != nil {
		t.Fatalf("GET event: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET event status %d", resp.StatusCode)
	}
	var got audit.AuditEvent
	decodeBody(t, resp, &got)
	if got.EventHash != events[0].EventHash {
		t.Fatalf("fetched event hash mismatch")
	}

	resp, err = http.Get(srv.URL + "/audit/events/nope")
	if err != nil {
		t.Fatalf("GET missing event: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing event status %d, want 404", resp.StatusCode)
	}
}

func TestRecordEventValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/audit/events", map[string]interface{}{
		"tenantId": "tenant-a",
		"action":   "doc.read",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing resourceType status %d, want 400", resp.StatusCode)
	}
}

func TestVerifyChainEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	recordEvents(t, srv, "tenant-a", 3)

	resp, err := http.Get(srv.URL + "/audit/chain/tenant-a/verify")
	if err != nil {
		t.Fatalf("GET verify: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status %d", resp.StatusCode)
	}
	var res audit.VerificationResult
	decodeBody(t, resp, &res)
	if !res.IsValid || res.VerifiedCount != 3 || res.FirstBreakAt != -1 {
		t.Fatalf("unexpected verification result: %+v", res)
	}
}

func TestAnchorAndProofEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	recordEvents(t, srv, "tenant-a", 4)

	resp := postJSON(t, srv.URL+"/audit/anchors/tenant-a", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("anchor status %d, want 201", resp.StatusCode)
	}
	var mr audit.MerkleRoot
	decodeBody(t, resp, &mr)
	if mr.EventCount != 4 || mr.FirstSequence != 0 || mr.LastSequence != 3 {
		t.Fatalf("unexpected anchor: %+v", mr)
	}
	if mr.Signature == "" || mr.SignerID != "test-signer" {
		t.Fatalf("anchor not signed: %+v", mr)
	}

	// Anchoring again with no new events conflicts.
	resp = postJSON(t, srv.URL+"/audit/anchors/tenant-a", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("re-anchor status %d, want 409", resp.StatusCode)
	}

	resp2, err := http.Get(srv.URL + "/audit/anchors/tenant-a")
	if err != nil {
		t.Fatalf("GET anchors: %v", err)
	}
	var listed struct {
		Anchors []audit.MerkleRoot `json:"anchors"`
	}
	decodeBody(t, resp2, &listed)
	if len(listed.Anchors) != 1 || listed.Anchors[0].ID != mr.ID {
		t.Fatalf("unexpected anchors list: %+v", listed.Anchors)
	}

	// Inclusion proof for each anchored sequence verifies.
	for seq := int64(0); seq <= 3; seq++ {
		url := fmt.Sprintf("%s/audit/proofs/tenant-a/%s?sequence=%d", srv.URL, mr.ID, seq)
		resp3, err := http.Get(url)
		if err != nil {
			t.Fatalf("GET proof: %v", err)
		}
		if resp3.StatusCode != http.StatusOK {
			t.Fatalf("proof status %d for sequence %d", resp3.StatusCode, seq)
		}
		var proof struct {
			RootHash string `json:"rootHash"`
			Verified bool   `json:"verified"`
		}
		decodeBody(t, resp3, &proof)
		if !proof.Verified || proof.RootHash != mr.RootHash {
			t.Fatalf("proof for sequence %d did not verify: %+v", seq, proof)
		}
	}

	// Out-of-range sequence is rejected.
	resp4, err := http.Get(fmt.Sprintf("%s/audit/proofs/tenant-a/%s?sequence=99", srv.URL, mr.ID))
	if err != nil {
		t.Fatalf("GET proof: %v", err)
	}
	resp4.Body.Close()
	if resp4.StatusCode != http.StatusBadRequest {
		t.Fatalf("out-of-range proof status %d, want 400", resp4.StatusCode)
	}
}

func TestHealthAndKeysEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/keys")
	if err != nil {
		t.Fatalf("GET keys: %v", err)
	}
	var listed struct {
		Signers []keys.KeyInfo `json:"signers"`
	}
	decodeBody(t, resp, &listed)
	if len(listed.Signers) != 1 || listed.Signers[0].SignerID != "test-signer" {
		t.Fatalf("unexpected signers: %+v", listed.Signers)
	}
}

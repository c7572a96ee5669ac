// package keys exposes the public keys of anchor signers so audit and
// compliance tooling can verify MerkleRoot signatures without access to the
// signing infrastructure.
package keys

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// KeyInfo is the public metadata exposed for a signer.
type KeyInfo struct {
	SignerID  string    `json:"signerId"`
	Algorithm string    `json:"algorithm"` // e.g. "Ed25519"
	PublicKey string    `json:"publicKey"` // base64-encoded
	CreatedAt time.Time `json:"createdAt"`
}

// Registry is a small in-memory registry of signer public keys, constructed
// once at process start and shared by reference. Safe for concurrent access.
type Registry struct {
	mtx  sync.RWMutex
	keys map[string]KeyInfo
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		keys: make(map[string]KeyInfo),
	}
}

// AddSigner registers a signer with its public key bytes and algorithm.
// An existing signerID entry is overwritten.
func (r *Registry) AddSigner(signerID string, pubKey []byte, algorithm string) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.keys[signerID] = KeyInfo{
		SignerID:  signerID,
		Algorithm: algorithm,
		PublicKey: base64.StdEncoding.EncodeToString(pubKey),
		CreatedAt: time.Now().UTC(),
	}
}

// GetSigner returns a copy of KeyInfo for the given signerID and true, or
// nil, false if missing.
func (r *Registry) GetSigner(signerID string) (*KeyInfo, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	ki, ok := r.keys[signerID]
	if !ok {
		return nil, false
	}
	c := ki
	return &c, true
}

// ListSigners returns a slice of all signer infos.
func (r *Registry) ListSigners() []KeyInfo {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	out := make([]KeyInfo, 0, len(r.keys))
	for _, v := range r.keys {
		out = append(out, v)
	}
	return out
}

// StatusHandler returns an HTTP handler that exposes registry data as JSON.
// Response: { "signers": [ KeyInfo, ... ] }
func (r *Registry) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		resp := map[string]interface{}{"signers": r.ListSigners()}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

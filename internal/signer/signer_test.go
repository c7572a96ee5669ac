package signer_test

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/passportal/auditledger/internal/signer"
)

func TestLocalSignerSignVerify(t *testing.T) {
	s := signer.NewLocalSigner("test-signer")

	digest := []byte("0123456789abcdef0123456789abcdef")
	sig, sid, err := s.Sign(digest)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	if sid != "test-signer" {
		t.Fatalf("unexpected signer id %q", sid)
	}
	if !ed25519.Verify(ed25519.PublicKey(s.PublicKey()), digest, sig) {
		t.Fatalf("signature did not verify")
	}
}

func TestLocalSignerFromSeedDeterministic(t *testing.T) {
	seed := hex.EncodeToString(make([]byte, ed25519.SeedSize))

	a, err := signer.NewLocalSignerFromSeed("platform-signer", seed)
	if err != nil {
		t.Fatalf("NewLocalSignerFromSeed error: %v", err)
	}
	b, err := signer.NewLocalSignerFromSeed("platform-signer", seed)
	if err != nil {
		t.Fatalf("NewLocalSignerFromSeed error: %v", err)
	}
	if string(a.PublicKey()) != string(b.PublicKey()) {
		t.Fatalf("same seed produced different public keys")
	}

	if _, err := signer.NewLocalSignerFromSeed("platform-signer", "not-hex"); err == nil {
		t.Fatalf("expected error for malformed seed")
	}
	if _, err := signer.NewLocalSignerFromSeed("platform-signer", "abcd"); err == nil {
		t.Fatalf("expected error for short seed")
	}
}

func TestKMSSignerSign(t *testing.T) {
	local := signer.NewLocalSigner("kms-backend")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/publicKey":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"publicKey":"` + base64.StdEncoding.EncodeToString(local.PublicKey()) + `"}`))
		case "/signData":
			var req struct {
				Data string `json:"data"`
			}
			if err := jsonDecode(r, &req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			digest, _ := base64.StdEncoding.DecodeString(req.Data)
			sig, sid, _ := local.Sign(digest)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"signature":"` + base64.StdEncoding.EncodeToString(sig) + `","signerId":"` + sid + `"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ks, err := signer.NewKMSSigner(srv.URL, true)
	if err != nil {
		t.Fatalf("NewKMSSigner error: %v", err)
	}
	if string(ks.PublicKey()) != string(local.PublicKey()) {
		t.Fatalf("public key mismatch")
	}

	digest := []byte("anchor-root-digest-0123456789abc")
	sig, sid, err := ks.Sign(digest)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	if sid != "kms-backend" {
		t.Fatalf("unexpected signer id %q", sid)
	}
	if !ed25519.Verify(ed25519.PublicKey(ks.PublicKey()), digest, sig) {
		t.Fatalf("KMS signature did not verify")
	}
}

func TestKMSSignerFailClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "kms down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ks, err := signer.NewKMSSigner(srv.URL, false)
	if err != nil {
		t.Fatalf("NewKMSSigner error: %v", err)
	}
	if _, _, err := ks.Sign([]byte("digest")); err == nil {
		t.Fatalf("expected signing error when KMS is unavailable")
	}
}

func jsonDecode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

package signer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// kmsSigner implements Signer by delegating signing to an external KMS over
// HTTP. Unlike a dev signer it never falls back to an ephemeral key: if the
// KMS cannot sign, the anchor is not written.
type kmsSigner struct {
	endpoint    string
	client      *http.Client
	signerID    string
	bearerToken string
	publicKey   []byte
}

// NewKMSSigner creates a KMS-backed signer. If kmsEndpoint is empty and
// required is true, an error is returned. If kmsEndpoint is empty and required
// is false, (nil, nil) is returned so callers may fall back to a local signer.
func NewKMSSigner(kmsEndpoint string, required bool) (Signer, error) {
	kmsEndpoint = strings.TrimRight(kmsEndpoint, "/")
	if kmsEndpoint == "" {
		if required {
			return nil, fmt.Errorf("REQUIRE_KMS=true but KMS_ENDPOINT not set")
		}
		return nil, nil
	}

	signerID := os.Getenv("SIGNER_ID")
	if signerID == "" {
		signerID = "anchor-signer-kms"
	}
	bearer := os.Getenv("KMS_BEARER_TOKEN")

	timeoutMs := 5000
	if v := os.Getenv("KMS_TIMEOUT_MS"); v != "" {
		if t, err := strconv.Atoi(v); err == nil && t > 0 {
			timeoutMs = t
		}
	}

	ks := &kmsSigner{
		endpoint:    kmsEndpoint,
		client:      &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		signerID:    signerID,
		bearerToken: bearer,
	}

	// Best-effort public key fetch. If the KMS is mandatory and we cannot
	// obtain the verification key, fail startup rather than sign unverifiably.
	if pk := ks.fetchPublicKey(); pk != nil {
		ks.publicKey = pk
	} else if required {
		return nil, fmt.Errorf("failed to obtain public key from KMS")
	}

	return ks, nil
}

// PublicKey returns the cached public key (may be nil if KMS did not provide one).
func (k *kmsSigner) PublicKey() []byte {
	return k.publicKey
}

// SignerID returns the configured KMS signer identifier.
func (k *kmsSigner) SignerID() string {
	return k.signerID
}

// Sign requests a signature for the digest from the KMS /signData endpoint.
func (k *kmsSigner) Sign(digest []byte) ([]byte, string, error) {
	if k == nil || k.endpoint == "" {
		return nil, "", errors.New("kms signer not configured")
	}

	reqBody := map[string]string{
		"signerId": k.signerID,
		"data":     base64.StdEncoding.EncodeToString(digest),
	}

	var resp struct {
		Signature string `json:"signature"`
		SignerID  string `json:"signerId"`
	}
	ctx, cancel := context.WithTimeout(context.Background(), k.client.Timeout)
	defer cancel()

	if err := k.postJSON(ctx, k.endpoint+"/signData", reqBody, &resp); err != nil {
		return nil, "", fmt.Errorf("KMS signData: %w", err)
	}
	if resp.Signature == "" {
		return nil, "", errors.New("KMS returned no signature")
	}

	sigBytes, err := base64.StdEncoding.DecodeString(resp.Signature)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 signature from KMS: %w", err)
	}

	sid := k.signerID
	if resp.SignerID != "" {
		sid = resp.SignerID
	}
	return sigBytes, sid, nil
}

// fetchPublicKey obtains the signer's public key from KMS via POST /publicKey.
// Expected response: { "publicKey": "<base64>" }. Returns nil on any failure.
func (k *kmsSigner) fetchPublicKey() []byte {
	req := map[string]string{"signerId": k.signerID}
	var resp struct {
		PublicKey string `json:"publicKey"`
	}
	ctx, cancel := context.WithTimeout(context.Background(), k.client.Timeout)
	defer cancel()
	if err := k.postJSON(ctx, k.endpoint+"/publicKey", req, &resp); err != nil {
		return nil
	}
	if resp.PublicKey == "" {
		return nil
	}
	pk, err := base64.StdEncoding.DecodeString(resp.PublicKey)
	if err != nil {
		return nil
	}
	return pk
}

func (k *kmsSigner) postJSON(ctx context.Context, url string, in interface{}, out interface{}) error {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if k.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+k.bearerToken)
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("KMS HTTP %d: %s", resp.StatusCode, string(b))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

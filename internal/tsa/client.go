// package tsa talks to an external RFC-3161-style timestamp authority. The
// returned token is opaque bytes (typically a DER TimeStampResp) stored
// alongside the anchor; parsing it is left to external compliance tooling.
//
// Timestamping is best-effort by contract: callers bound every request with a
// timeout and treat failure as "no token", never as a fatal error.
package tsa

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// maxTokenBytes caps the token size we are willing to persist.
const maxTokenBytes = 1 << 20

// Client requests timestamp tokens over HTTP.
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient constructs a Client. timeout bounds each request end to end; zero
// falls back to 10s.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Timestamp requests a token over the given digest. The request carries the
// hex digest, the hash algorithm, and a fresh nonce.
func (c *Client) Timestamp(ctx context.Context, digest []byte) ([]byte, error) {
	reqBody := map[string]string{
		"digest":        hex.EncodeToString(digest),
		"hashAlgorithm": "sha256",
		"nonce":         uuid.New().String(),
	}
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(reqBody); err != nil {
		return nil, fmt.Errorf("encode tsa request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, buf)
	if err != nil {
		return nil, fmt.Errorf("build tsa request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tsa request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tsa HTTP %d: %s", resp.StatusCode, string(b))
	}

	token, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read tsa token: %w", err)
	}
	if len(token) == 0 {
		return nil, fmt.Errorf("tsa returned empty token")
	}
	if len(token) > maxTokenBytes {
		return nil, fmt.Errorf("tsa token exceeds %d bytes", maxTokenBytes)
	}
	return token, nil
}

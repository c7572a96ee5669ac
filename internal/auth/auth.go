// package auth provides the minimal authentication layer for the audit HTTP
// surface: principal extraction (mTLS peer CN, bearer token) and JWT
// verification against the platform's published public keys. Authorization
// policy (who may audit what) lives in the surrounding platform, not here.
package auth

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const ctxKeyPrincipal ctxKey = "auditledger.principal"

// Principal holds extracted authentication information for a request.
type Principal struct {
	// Peer service identity (client cert CN) when using mTLS.
	PeerCN string

	// Subject (sub claim) from a verified bearer token.
	Subject string

	// Roles claim from a verified bearer token, if present.
	Roles []string
}

// FromContext returns the Principal stored in the request context, or nil.
func FromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(ctxKeyPrincipal).(*Principal); ok {
		return p
	}
	return nil
}

// Verifier validates bearer tokens against a set of platform public keys
// loaded from a PEM file (PUBLIC KEY or CERTIFICATE blocks; Ed25519, RSA and
// ECDSA keys are accepted).
type Verifier struct {
	keys []interface{}
}

// NewVerifier loads verification keys from path.
func NewVerifier(path string) (*Verifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read auth keys file: %w", err)
	}

	var keys []interface{}
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			cert, cerr := x509.ParseCertificate(block.Bytes)
			if cerr != nil {
				continue // skip unknown blocks
			}
			key = cert.PublicKey
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, errors.New("auth: no usable public keys in keys file")
	}
	return &Verifier{keys: keys}, nil
}

// VerifyToken validates the token signature against any loaded key and
// returns the subject and roles claims.
func (v *Verifier) VerifyToken(token string) (subject string, roles []string, err error) {
	var lastErr error
	for _, key := range v.keys {
		claims := jwt.MapClaims{}
		parsed, perr := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			return key, nil
		})
		if perr != nil || !parsed.Valid {
			lastErr = perr
			continue
		}

		sub, _ := claims["sub"].(string)
		var rs []string
		if raw, ok := claims["roles"].([]interface{}); ok {
			for _, r := range raw {
				if s, ok := r.(string); ok {
					rs = append(rs, s)
				}
			}
		}
		return sub, rs, nil
	}
	if lastErr == nil {
		lastErr = errors.New("token did not verify against any key")
	}
	return "", nil, fmt.Errorf("auth: %w", lastErr)
}

// Middleware enforces the surface's auth policy:
//   - with requireMTLS, a peer certificate must be presented;
//   - with a non-nil verifier, a valid bearer token is mandatory;
//   - without a verifier, bearer tokens are extracted but not validated.
func Middleware(requireMTLS bool, verifier *Verifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := &Principal{}

			if requireMTLS {
				if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
					http.Error(w, "mTLS required", http.StatusUnauthorized)
					return
				}
				p.PeerCN = r.TLS.PeerCertificates[0].Subject.CommonName
			} else if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
				p.PeerCN = r.TLS.PeerCertificates[0].Subject.CommonName
			}

			token := bearerToken(r)
			if verifier != nil {
				if token == "" {
					http.Error(w, "bearer token required", http.StatusUnauthorized)
					return
				}
				sub, roles, err := verifier.VerifyToken(token)
				if err != nil {
					log.Printf("[auth] token rejected: %v", err)
					http.Error(w, "invalid token", http.StatusUnauthorized)
					return
				}
				p.Subject = sub
				p.Roles = roles
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyPrincipal, p)))
		})
	}
}

func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[7:])
}

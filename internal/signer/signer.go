// package signer provides the Ed25519 signing abstraction used to sign Merkle
// anchor roots. Signing is fail-closed everywhere: a signing error always
// propagates and no anchor is persisted without a signature.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// Signer is the minimal signing abstraction the anchor job depends on.
type Signer interface {
	// Sign signs the provided digest bytes and returns (signature, signerId, error).
	Sign(digest []byte) (sig []byte, signerID string, err error)

	// PublicKey returns the public key bytes for verification (nil if not supported).
	PublicKey() []byte
}

// LocalSigner is an in-process Ed25519 signer. With a configured seed it holds
// the platform signing key; with a generated key it is for development and
// tests only.
type LocalSigner struct {
	priv     ed25519.PrivateKey
	pub      ed25519.PublicKey
	signerID string
}

// NewLocalSigner creates a LocalSigner with a freshly generated Ed25519
// keypair. signerID is a logical identifier (e.g. "local-signer-1").
func NewLocalSigner(signerID string) *LocalSigner {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		// Generation should not fail in normal environments; panic to surface early.
		panic(err)
	}
	return &LocalSigner{
		priv:     priv,
		pub:      pub,
		signerID: signerID,
	}
}

// NewLocalSignerFromSeed derives the keypair from a 32-byte hex-encoded
// Ed25519 seed, so the platform signing identity is stable across restarts.
func NewLocalSignerFromSeed(signerID, seedHex string) (*LocalSigner, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("decode signer seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signer seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &LocalSigner{
		priv:     priv,
		pub:      priv.Public().(ed25519.PublicKey),
		signerID: signerID,
	}, nil
}

// Sign implements Signer.Sign using Ed25519.
func (l *LocalSigner) Sign(digest []byte) ([]byte, string, error) {
	if l.priv == nil {
		return nil, "", errors.New("local signer: private key not initialized")
	}
	return ed25519.Sign(l.priv, digest), l.signerID, nil
}

// PublicKey returns the Ed25519 public key bytes.
func (l *LocalSigner) PublicKey() []byte {
	return l.pub
}

// SignerID returns the signer's logical identifier.
func (l *LocalSigner) SignerID() string {
	return l.signerID
}

package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/passportal/auditledger/internal/canonical"
)

// ComputeEventHash folds an event's canonical fields with the previous event's
// hash into the next chain hash:
//
//	hash = SHA256(canonicalBytes(fields) || hexDecode(prevHash))
//
// prevHash must be 64 lowercase hex characters (GenesisHash for the first
// event of a scope). The concatenation order is fixed and must be reused
// verbatim by every verifier.
func ComputeEventHash(fields canonical.Value, prevHash string) (string, error) {
	prevBytes, err := decodePrevHash(prevHash)
	if err != nil {
		return "", err
	}
	concat := append(canonical.Marshal(fields), prevBytes...)
	return HashHex(concat), nil
}

func decodePrevHash(prevHash string) ([]byte, error) {
	if len(prevHash) != 64 {
		return nil, fmt.Errorf("prev hash must be 64 hex chars, got %d", len(prevHash))
	}
	b, err := hex.DecodeString(prevHash)
	if err != nil {
		return nil, fmt.Errorf("decode prev hash: %w", err)
	}
	return b, nil
}

// HashBytes computes the SHA-256 digest bytes for input data.
func HashBytes(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

// HashHex returns the hex-encoded SHA-256 of the input bytes.
func HashHex(b []byte) string {
	return hex.EncodeToString(HashBytes(b))
}

// package merkle builds binary Merkle roots over ordered hex-digest leaves and
// produces/verifies inclusion proofs. It is the sole authority for pairing
// semantics; anchoring and verification code must delegate here rather than
// reimplement them.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrEmptyInput is returned when a root or proof is requested over zero leaves.
var ErrEmptyInput = errors.New("merkle: empty leaf set")

// ErrIndexOutOfRange is returned when a proof index does not address a leaf.
var ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")

// Proof step sides. A "left" sibling is hashed before the running value, a
// "right" sibling after it.
const (
	SideLeft  = "left"
	SideRight = "right"
)

// ProofStep is one sibling needed to reconstruct a parent on the way to the root.
type ProofStep struct {
	Hash string `json:"hash"`
	Side string `json:"side"`
}

// PairHash combines two hex digests into their parent digest: SHA-256 over the
// UTF-8 bytes of the two hex strings concatenated left then right. The order is
// fixed, not sorted; swapping siblings changes the result.
func PairHash(left, right string) string {
	sum := sha256.Sum256([]byte(left + right))
	return hex.EncodeToString(sum[:])
}

// ComputeRoot folds the ordered leaves into a single root digest. A single leaf
// is its own root, unhashed. At each level adjacent leaves pair left-to-right;
// an odd trailing element pairs with itself.
func ComputeRoot(leaves []string) (string, error) {
	if len(leaves) == 0 {
		return "", ErrEmptyInput
	}
	level := append([]string(nil), leaves...)
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0], nil
}

// ComputeInclusionProof returns the sibling path that links leaves[index] to the
// root. The proof for a single-leaf tree is empty.
func ComputeInclusionProof(leaves []string, index int) ([]ProofStep, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyInput
	}
	if index < 0 || index >= len(leaves) {
		return nil, ErrIndexOutOfRange
	}

	proof := []ProofStep{}
	level := append([]string(nil), leaves...)
	idx := index
	for len(level) > 1 {
		if idx%2 == 0 {
			// Even index: sibling is the next element, or the element itself
			// when odd-level duplication leaves it unpaired.
			sibling := level[idx]
			if idx+1 < len(level) {
				sibling = level[idx+1]
			}
			proof = append(proof, ProofStep{Hash: sibling, Side: SideRight})
		} else {
			proof = append(proof, ProofStep{Hash: level[idx-1], Side: SideLeft})
		}
		level = nextLevel(level)
		idx /= 2
	}
	return proof, nil
}

// VerifyInclusionProof folds the proof from leafHash and reports whether the
// result equals expectedRoot.
func VerifyInclusionProof(leafHash string, proof []ProofStep, expectedRoot string) bool {
	current := leafHash
	for _, step := range proof {
		if step.Side == SideLeft {
			current = PairHash(step.Hash, current)
		} else {
			current = PairHash(current, step.Hash)
		}
	}
	return current == expectedRoot
}

func nextLevel(level []string) []string {
	next := make([]string, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		left := level[i]
		right := left
		if i+1 < len(level) {
			right = level[i+1]
		}
		next = append(next, PairHash(left, right))
	}
	return next
}

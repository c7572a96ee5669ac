package audit

import "fmt"

// VerificationResult reports the outcome of replaying a chain. A broken chain
// is a reportable result, not an error: FirstBreakAt tells the caller exactly
// how many events were intact before the first corruption, and nothing after
// the break is judged at all.
type VerificationResult struct {
	IsValid       bool     `json:"isValid"`
	VerifiedCount int      `json:"verifiedCount"`
	FirstBreakAt  int      `json:"firstBreakAt"` // -1 when the chain is intact
	Errors        []string `json:"errors,omitempty"`
}

// VerifyEvent recomputes the event's hash from its stored fields and prevHash
// and compares it against the stored event_hash.
func VerifyEvent(ev *AuditEvent, prevHash string) bool {
	if ev == nil || ev.EventHash == "" {
		return false
	}
	computed, err := ComputeEventHash(ev.CanonicalFields(), prevHash)
	if err != nil {
		return false
	}
	return computed == ev.EventHash
}

// VerifyHashChain replays ordered events from the genesis constant, confirming
// each event's linkage and hash. Verification stops at the first detected
// break; everything after position FirstBreakAt is suspect and is not
// inspected. An empty input is trivially valid.
func VerifyHashChain(events []*AuditEvent) VerificationResult {
	res := VerificationResult{IsValid: true, FirstBreakAt: -1}

	expectedPrev := GenesisHash
	for i, ev := range events {
		if ev.PrevEventHash != expectedPrev {
			return breakAt(res, i, "prev_event_hash mismatch")
		}
		if ev.EventHash == "" {
			return breakAt(res, i, "missing event_hash")
		}
		computed, err := ComputeEventHash(ev.CanonicalFields(), expectedPrev)
		if err != nil || computed != ev.EventHash {
			return breakAt(res, i, "hash mismatch")
		}
		res.VerifiedCount++
		expectedPrev = ev.EventHash
	}
	return res
}

func breakAt(res VerificationResult, index int, msg string) VerificationResult {
	res.IsValid = false
	res.FirstBreakAt = index
	res.Errors = append(res.Errors, fmt.Sprintf("event %d: %s", index, msg))
	return res
}

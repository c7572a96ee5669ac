// package audit contains the canonical models and algorithms of the
// tamper-evident audit trail: the per-tenant hash chain, its writer, the chain
// verifier, and the persistence abstraction.
package audit

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/passportal/auditledger/internal/canonical"
)

// GenesisHash is the fixed prev_event_hash of the first event in every chain
// scope: 64 zero hex characters (32 zero bytes when decoded for hashing).
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ScopePlatform is the chain scope used for tenant-less platform events.
const ScopePlatform = "platform"

// Scope maps an optional tenant id onto its chain scope.
func Scope(tenantID string) string {
	if strings.TrimSpace(tenantID) == "" {
		return ScopePlatform
	}
	return tenantID
}

// AuditEvent is one immutable row of a tenant's hash chain. Hash-relevant
// fields are never updated after insert; the log is append-only.
type AuditEvent struct {
	ID            string           `json:"id"`
	TenantID      string           `json:"tenantId"`
	Action        string           `json:"action"`
	ResourceType  string           `json:"resourceType"`
	ResourceID    string           `json:"resourceId,omitempty"`
	Subject       string           `json:"subject,omitempty"`
	Decision      string           `json:"decision,omitempty"`
	Metadata      *canonical.Value `json:"metadata,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	EventHash     string           `json:"eventHash"`
	PrevEventHash string           `json:"prevEventHash"`
	ChainSequence int64            `json:"chainSequence"`
}

// CanonicalFields reduces the event to the canonical field set hashed into
// event_hash. Optional fields with no value are omitted entirely, so two
// logically-equivalent events hash identically regardless of how absence was
// expressed. The platform scope carries no tenant_id field.
func (ev *AuditEvent) CanonicalFields() canonical.Value {
	fields := map[string]canonical.Value{
		"action":        canonical.StringValue(ev.Action),
		"resource_type": canonical.StringValue(ev.ResourceType),
	}
	if ev.TenantID != "" && ev.TenantID != ScopePlatform {
		fields["tenant_id"] = canonical.StringValue(ev.TenantID)
	}
	if ev.ResourceID != "" {
		fields["resource_id"] = canonical.StringValue(ev.ResourceID)
	}
	if ev.Subject != "" {
		fields["subject"] = canonical.StringValue(ev.Subject)
	}
	if ev.Decision != "" {
		fields["decision"] = canonical.StringValue(ev.Decision)
	}
	if ev.Metadata != nil {
		fields["metadata"] = *ev.Metadata
	}
	return canonical.ObjectValue(fields)
}

// MerkleRoot is one immutable anchor covering a contiguous, previously
// unanchored range [FirstSequence, LastSequence] of a tenant's events.
type MerkleRoot struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenantId"`
	RootHash      string    `json:"rootHash"`
	EventCount    int       `json:"eventCount"`
	FirstSequence int64     `json:"firstSequence"`
	LastSequence  int64     `json:"lastSequence"`
	Signature     string    `json:"signature,omitempty"` // base64 Ed25519 over the root hash bytes
	SignerID      string    `json:"signerId,omitempty"`
	TSAToken      []byte    `json:"tsaToken,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ErrNotFound is returned when a requested audit resource cannot be located.
var ErrNotFound = errors.New("not found")

// ErrNothingToAnchor is returned when an anchor is requested for a tenant with
// no events beyond its last anchor.
var ErrNothingToAnchor = errors.New("audit: nothing to anchor")

// NewUUID returns a freshly-generated UUID string.
func NewUUID() string {
	return uuid.New().String()
}

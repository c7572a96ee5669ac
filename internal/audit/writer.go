package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/passportal/auditledger/internal/canonical"
)

// RecordParams carries the business fields of one audited action. TenantID may
// be empty for platform-scoped events; the remaining optional fields are
// omitted from the canonical representation when empty.
type RecordParams struct {
	TenantID     string
	Action       string
	ResourceType string
	ResourceID   string
	Subject      string
	Decision     string
	Metadata     *canonical.Value
}

// Writer is the only component that creates AuditEvent rows. It assigns the
// next chain_sequence for a scope, computes the event hash, and persists the
// event under the store's per-scope serialization lock. Callers never compute
// hashes themselves.
type Writer struct {
	store Store
	now   func() time.Time
}

// NewWriter constructs a Writer over the given store.
func NewWriter(store Store) *Writer {
	return &Writer{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// RecordEvent appends one event to the tenant's chain. The read-last, hash,
// insert critical section runs under the store's per-scope lock, so concurrent
// callers can neither duplicate nor skip a chain_sequence. If persistence
// fails the transaction rolls back, no event is recorded, and the error
// propagates; events are never silently dropped.
func (w *Writer) RecordEvent(ctx context.Context, p RecordParams) (*AuditEvent, error) {
	if p.Action == "" {
		return nil, errors.New("audit: action required")
	}
	if p.ResourceType == "" {
		return nil, errors.New("audit: resource type required")
	}

	scope := Scope(p.TenantID)
	ev, err := w.store.AppendEvent(ctx, scope, func(last *AuditEvent) (*AuditEvent, error) {
		var seq int64
		prev := GenesisHash
		if last != nil {
			seq = last.ChainSequence + 1
			prev = last.EventHash
		}

		ev := &AuditEvent{
			ID:            NewUUID(),
			TenantID:      scope,
			Action:        p.Action,
			ResourceType:  p.ResourceType,
			ResourceID:    p.ResourceID,
			Subject:       p.Subject,
			Decision:      p.Decision,
			Metadata:      p.Metadata,
			CreatedAt:     w.now(),
			PrevEventHash: prev,
			ChainSequence: seq,
		}

		hash, err := ComputeEventHash(ev.CanonicalFields(), prev)
		if err != nil {
			return nil, fmt.Errorf("compute event hash: %w", err)
		}
		ev.EventHash = hash
		return ev, nil
	})
	if err != nil {
		return nil, fmt.Errorf("record audit event: %w", err)
	}
	return ev, nil
}

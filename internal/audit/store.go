package audit

import "context"

// Store is the persistence abstraction the audit core owns. Implementations
// must provide the mutual-exclusion contract documented on AppendEvent and
// AnchorRange; everything else is plain reads.
type Store interface {
	// AppendEvent runs fn inside a transaction while holding the per-scope
	// chain lock, so no two writers can observe the same last event. fn
	// receives the most recent event in the scope (nil if the chain is empty)
	// and returns the fully-populated event to insert. On any error the
	// transaction rolls back and nothing is persisted.
	AppendEvent(ctx context.Context, scope string, fn func(last *AuditEvent) (*AuditEvent, error)) (*AuditEvent, error)

	// GetEvent retrieves an AuditEvent by id. Returns ErrNotFound if missing.
	GetEvent(ctx context.Context, id string) (*AuditEvent, error)

	// ChainEvents returns every event in the scope ordered by chain_sequence
	// ascending.
	ChainEvents(ctx context.Context, scope string) ([]*AuditEvent, error)

	// EventsInRange returns the scope's events with firstSeq <= chain_sequence
	// <= lastSeq, ordered ascending.
	EventsInRange(ctx context.Context, scope string, firstSeq, lastSeq int64) ([]*AuditEvent, error)

	// AnchorRange runs fn inside a transaction while holding the per-scope
	// anchoring lock. It selects the contiguous run of events after the
	// scope's last anchor (at most limit of them), hands the run to fn, and
	// inserts the MerkleRoot fn returns. Returns ErrNothingToAnchor when no
	// unanchored events exist; nothing is persisted on any error. Events are
	// only read, never mutated.
	AnchorRange(ctx context.Context, scope string, limit int, fn func(events []*AuditEvent) (*MerkleRoot, error)) (*MerkleRoot, error)

	// GetAnchor retrieves a MerkleRoot by id. Returns ErrNotFound if missing.
	GetAnchor(ctx context.Context, id string) (*MerkleRoot, error)

	// Anchors returns the scope's anchors ordered by first_sequence ascending.
	Anchors(ctx context.Context, scope string) ([]*MerkleRoot, error)

	// ScopesWithUnanchored lists chain scopes that have events beyond their
	// last anchor.
	ScopesWithUnanchored(ctx context.Context) ([]string, error)

	// Ping validates the store is reachable/healthy.
	Ping(ctx context.Context) error
}

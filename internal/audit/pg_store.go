package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/passportal/auditledger/internal/canonical"
)

// Advisory-lock classes. Chain writes and anchoring serialize independently:
// the anchor job only reads events, so it never needs to block writers.
const (
	lockClassChain  = int32(1)
	lockClassAnchor = int32(2)
)

// scopeLockKey maps a chain scope onto a stable 32-bit advisory-lock key.
// Unrelated tenants hash to different keys and never contend; the platform
// scope uses the fixed key zero.
func scopeLockKey(scope string) int32 {
	if scope == ScopePlatform {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(scope))
	return int32(h.Sum32())
}

// PGStore persists audit events and Merkle anchors into Postgres. Critical
// sections use transaction-scoped advisory locks (pg_advisory_xact_lock), so
// the lock is released exactly when the transaction commits or rolls back.
type PGStore struct {
	db *sql.DB
}

// NewPGStore constructs a Postgres-backed store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Ping verifies connectivity to Postgres.
func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

const eventColumns = `id, tenant_id, action, resource_type, resource_id, subject, decision, metadata, created_at, event_hash, prev_event_hash, chain_sequence`

// AppendEvent implements Store.AppendEvent. The advisory lock covers the full
// read-last, compute, insert window; holding it only for the insert would let
// two writers observe the same last sequence.
func (p *PGStore) AppendEvent(ctx context.Context, scope string, fn func(last *AuditEvent) (*AuditEvent, error)) (*AuditEvent, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, lockClassChain, scopeLockKey(scope)); err != nil {
		return nil, fmt.Errorf("acquire chain lock: %w", err)
	}

	last, err := p.lastEventTx(ctx, tx, scope)
	if err != nil {
		return nil, fmt.Errorf("fetch last event: %w", err)
	}

	ev, err := fn(last)
	if err != nil {
		return nil, err
	}

	var metadataJSON []byte
	if ev.Metadata != nil {
		metadataJSON = canonical.Marshal(*ev.Metadata)
	}

	q := `
		INSERT INTO audit_events
		  (id, tenant_id, action, resource_type, resource_id, subject, decision, metadata, created_at, event_hash, prev_event_hash, chain_sequence)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`
	if _, err := tx.ExecContext(ctx, q,
		ev.ID,
		ev.TenantID,
		ev.Action,
		ev.ResourceType,
		nullIfEmpty(ev.ResourceID),
		nullIfEmpty(ev.Subject),
		nullIfEmpty(ev.Decision),
		metadataJSON,
		ev.CreatedAt,
		ev.EventHash,
		ev.PrevEventHash,
		ev.ChainSequence,
	); err != nil {
		return nil, fmt.Errorf("insert audit_event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit audit_event: %w", err)
	}
	return ev, nil
}

func (p *PGStore) lastEventTx(ctx context.Context, tx *sql.Tx, scope string) (*AuditEvent, error) {
	q := `SELECT ` + eventColumns + ` FROM audit_events WHERE tenant_id=$1 ORDER BY chain_sequence DESC LIMIT 1`
	ev, err := scanEvent(tx.QueryRowContext(ctx, q, scope))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ev, err
}

// GetEvent fetches an AuditEvent by id.
func (p *PGStore) GetEvent(ctx context.Context, id string) (*AuditEvent, error) {
	q := `SELECT ` + eventColumns + ` FROM audit_events WHERE id=$1`
	ev, err := scanEvent(p.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query audit_event: %w", err)
	}
	return ev, nil
}

// ChainEvents returns the scope's full chain ordered by sequence.
func (p *PGStore) ChainEvents(ctx context.Context, scope string) ([]*AuditEvent, error) {
	q := `SELECT ` + eventColumns + ` FROM audit_events WHERE tenant_id=$1 ORDER BY chain_sequence ASC`
	return p.queryEvents(ctx, q, scope)
}

// EventsInRange returns the scope's events inside [firstSeq, lastSeq].
func (p *PGStore) EventsInRange(ctx context.Context, scope string, firstSeq, lastSeq int64) ([]*AuditEvent, error) {
	q := `SELECT ` + eventColumns + ` FROM audit_events WHERE tenant_id=$1 AND chain_sequence BETWEEN $2 AND $3 ORDER BY chain_sequence ASC`
	return p.queryEvents(ctx, q, scope, firstSeq, lastSeq)
}

func (p *PGStore) queryEvents(ctx context.Context, q string, args ...interface{}) ([]*AuditEvent, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit_events: %w", err)
	}
	defer rows.Close()

	var out []*AuditEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit_event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit_events: %w", err)
	}
	return out, nil
}

// AnchorRange implements Store.AnchorRange. A dedicated anchoring lock
// serializes concurrent anchor jobs for the same scope so two jobs cannot
// claim overlapping ranges; writers are unaffected.
func (p *PGStore) AnchorRange(ctx context.Context, scope string, limit int, fn func(events []*AuditEvent) (*MerkleRoot, error)) (*MerkleRoot, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, lockClassAnchor, scopeLockKey(scope)); err != nil {
		return nil, fmt.Errorf("acquire anchor lock: %w", err)
	}

	// Sequences start at 0, so "no anchor yet" is the sentinel -1.
	lastAnchored := int64(-1)
	err = tx.QueryRowContext(ctx,
		`SELECT last_sequence FROM audit_merkle_roots WHERE tenant_id=$1 ORDER BY last_sequence DESC LIMIT 1`,
		scope,
	).Scan(&lastAnchored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fetch last anchor: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM audit_events WHERE tenant_id=$1 AND chain_sequence > $2 ORDER BY chain_sequence ASC LIMIT $3`,
		scope, lastAnchored, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select unanchored events: %w", err)
	}
	var events []*AuditEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan audit_event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate audit_events: %w", err)
	}
	rows.Close()

	if len(events) == 0 {
		return nil, ErrNothingToAnchor
	}

	mr, err := fn(events)
	if err != nil {
		return nil, err
	}

	q := `
		INSERT INTO audit_merkle_roots
		  (id, tenant_id, root_hash, event_count, first_sequence, last_sequence, signature, signer_id, tsa_token, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`
	if _, err := tx.ExecContext(ctx, q,
		mr.ID,
		mr.TenantID,
		mr.RootHash,
		mr.EventCount,
		mr.FirstSequence,
		mr.LastSequence,
		nullIfEmpty(mr.Signature),
		nullIfEmpty(mr.SignerID),
		mr.TSAToken,
		mr.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert merkle_root: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit merkle_root: %w", err)
	}
	return mr, nil
}

const anchorColumns = `id, tenant_id, root_hash, event_count, first_sequence, last_sequence, signature, signer_id, tsa_token, created_at`

// GetAnchor fetches a MerkleRoot by id.
func (p *PGStore) GetAnchor(ctx context.Context, id string) (*MerkleRoot, error) {
	q := `SELECT ` + anchorColumns + ` FROM audit_merkle_roots WHERE id=$1`
	mr, err := scanAnchor(p.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query merkle_root: %w", err)
	}
	return mr, nil
}

// Anchors returns the scope's anchors in range order.
func (p *PGStore) Anchors(ctx context.Context, scope string) ([]*MerkleRoot, error) {
	q := `SELECT ` + anchorColumns + ` FROM audit_merkle_roots WHERE tenant_id=$1 ORDER BY first_sequence ASC`
	rows, err := p.db.QueryContext(ctx, q, scope)
	if err != nil {
		return nil, fmt.Errorf("query merkle_roots: %w", err)
	}
	defer rows.Close()

	var out []*MerkleRoot
	for rows.Next() {
		mr, err := scanAnchor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan merkle_root: %w", err)
		}
		out = append(out, mr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merkle_roots: %w", err)
	}
	return out, nil
}

// ScopesWithUnanchored lists chain scopes holding events past their last anchor.
func (p *PGStore) ScopesWithUnanchored(ctx context.Context) ([]string, error) {
	q := `
		SELECT e.tenant_id
		FROM audit_events e
		GROUP BY e.tenant_id
		HAVING max(e.chain_sequence) > COALESCE(
			(SELECT max(r.last_sequence) FROM audit_merkle_roots r WHERE r.tenant_id = e.tenant_id), -1)
	`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query unanchored scopes: %w", err)
	}
	defer rows.Close()

	var scopes []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan scope: %w", err)
		}
		scopes = append(scopes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scopes: %w", err)
	}
	return scopes, nil
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(s scanner) (*AuditEvent, error) {
	var (
		ev         AuditEvent
		resourceID sql.NullString
		subject    sql.NullString
		decision   sql.NullString
		metaBytes  []byte
		createdAt  time.Time
	)
	if err := s.Scan(
		&ev.ID,
		&ev.TenantID,
		&ev.Action,
		&ev.ResourceType,
		&resourceID,
		&subject,
		&decision,
		&metaBytes,
		&createdAt,
		&ev.EventHash,
		&ev.PrevEventHash,
		&ev.ChainSequence,
	); err != nil {
		return nil, err
	}
	ev.ResourceID = resourceID.String
	ev.Subject = subject.String
	ev.Decision = decision.String
	ev.CreatedAt = createdAt

	if len(metaBytes) > 0 && string(metaBytes) != "null" {
		v, err := canonical.Decode(metaBytes)
		if err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		ev.Metadata = &v
	}
	return &ev, nil
}

func scanAnchor(s scanner) (*MerkleRoot, error) {
	var (
		mr        MerkleRoot
		signature sql.NullString
		signerID  sql.NullString
	)
	if err := s.Scan(
		&mr.ID,
		&mr.TenantID,
		&mr.RootHash,
		&mr.EventCount,
		&mr.FirstSequence,
		&mr.LastSequence,
		&signature,
		&signerID,
		&mr.TSAToken,
		&mr.CreatedAt,
	); err != nil {
		return nil, err
	}
	mr.Signature = signature.String
	mr.SignerID = signerID.String
	return &mr, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

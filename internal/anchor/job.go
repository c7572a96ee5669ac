// package anchor periodically folds contiguous unanchored runs of a tenant's
// audit events into signed Merkle anchors, optionally timestamped by an
// external authority, and fans committed anchors out to Kafka and S3.
package anchor

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/passportal/auditledger/internal/audit"
	"github.com/passportal/auditledger/internal/merkle"
	"github.com/passportal/auditledger/internal/signer"
)

// TimestampAuthority is the minimal TSA behavior the job needs.
type TimestampAuthority interface {
	Timestamp(ctx context.Context, digest []byte) ([]byte, error)
}

// JobConfig configures batch selection and the TSA call bound.
type JobConfig struct {
	// BatchSize caps how many events one anchor may cover. Defaults to 512.
	BatchSize int

	// TSATimeout bounds the timestamp-authority request. Defaults to 10s.
	TSATimeout time.Duration
}

// Job creates MerkleRoot anchors. It only ever reads audit events and appends
// anchor rows; it never mutates the chain. tsa may be nil to disable
// timestamping entirely.
type Job struct {
	store audit.Store
	sign  signer.Signer
	tsa   TimestampAuthority
	cfg   JobConfig
}

// NewJob constructs a Job. Zero config fields get defaults.
func NewJob(store audit.Store, sign signer.Signer, tsa TimestampAuthority, cfg JobConfig) *Job {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 512
	}
	if cfg.TSATimeout <= 0 {
		cfg.TSATimeout = 10 * time.Second
	}
	return &Job{store: store, sign: sign, tsa: tsa, cfg: cfg}
}

// AnchorBatch anchors the next contiguous run of unanchored events for the
// tenant. It returns audit.ErrNothingToAnchor when the tenant has no new
// events, which makes re-runs idempotent at the range level. Signing is
// fail-closed: on a signing error nothing is persisted. Timestamping is
// best-effort: a TSA failure is logged and the anchor completes without a
// token.
func (j *Job) AnchorBatch(ctx context.Context, tenantID string) (*audit.MerkleRoot, error) {
	scope := audit.Scope(tenantID)

	mr, err := j.store.AnchorRange(ctx, scope, j.cfg.BatchSize, func(events []*audit.AuditEvent) (*audit.MerkleRoot, error) {
		leaves := make([]string, len(events))
		for i, ev := range events {
			if ev.EventHash == "" {
				return nil, fmt.Errorf("event %s at sequence %d has no event_hash", ev.ID, ev.ChainSequence)
			}
			leaves[i] = ev.EventHash
		}

		root, err := merkle.ComputeRoot(leaves)
		if err != nil {
			return nil, fmt.Errorf("compute merkle root: %w", err)
		}
		rootBytes, err := hex.DecodeString(root)
		if err != nil {
			return nil, fmt.Errorf("decode merkle root: %w", err)
		}

		sig, signerID, err := j.sign.Sign(rootBytes)
		if err != nil {
			return nil, fmt.Errorf("sign merkle root: %w", err)
		}

		mr := &audit.MerkleRoot{
			ID:            audit.NewUUID(),
			TenantID:      scope,
			RootHash:      root,
			EventCount:    len(events),
			FirstSequence: events[0].ChainSequence,
			LastSequence:  events[len(events)-1].ChainSequence,
			Signature:     base64.StdEncoding.EncodeToString(sig),
			SignerID:      signerID,
			CreatedAt:     time.Now().UTC(),
		}

		if j.tsa != nil {
			tctx, cancel := context.WithTimeout(ctx, j.cfg.TSATimeout)
			token, terr := j.tsa.Timestamp(tctx, rootBytes)
			cancel()
			if terr != nil {
				// Failure becomes absence, not an error.
				log.Printf("[anchor] timestamp authority unavailable for scope %s: %v", scope, terr)
			} else {
				mr.TSAToken = token
			}
		}
		return mr, nil
	})
	if err != nil {
		if errors.Is(err, audit.ErrNothingToAnchor) {
			return nil, err
		}
		return nil, fmt.Errorf("anchor batch for scope %s: %w", scope, err)
	}
	return mr, nil
}

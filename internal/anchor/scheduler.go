package anchor

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/passportal/auditledger/internal/audit"
)

// SchedulerConfig configures the periodic anchoring loop.
type SchedulerConfig struct {
	// Interval between anchoring sweeps. Defaults to 5m.
	Interval time.Duration
}

// Scheduler periodically anchors every chain scope that has unanchored events
// and hands committed anchors to the exporter. It runs alongside the writer
// without coordination: anchoring only reads events, and concurrent anchor
// attempts per scope are serialized by the store's anchoring lock.
type Scheduler struct {
	store    audit.Store
	job      *Job
	exporter *Exporter
	cfg      SchedulerConfig
}

// NewScheduler constructs a Scheduler. exporter may be nil.
func NewScheduler(store audit.Store, job *Job, exporter *Exporter, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Scheduler{store: store, job: job, exporter: exporter, cfg: cfg}
}

// Run blocks until ctx is cancelled, sweeping all scopes every interval. It is
// safe to run in a goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Printf("[anchor.scheduler] starting (interval=%s)", s.cfg.Interval)
	defer log.Printf("[anchor.scheduler] stopped")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep anchors one batch per pending scope. A scope with more pending events
// than one batch covers is picked up again on the next sweep.
func (s *Scheduler) sweep(ctx context.Context) {
	scopes, err := s.store.ScopesWithUnanchored(ctx)
	if err != nil {
		log.Printf("[anchor.scheduler] list pending scopes: %v", err)
		return
	}

	for _, scope := range scopes {
		if ctx.Err() != nil {
			return
		}

		mr, err := s.job.AnchorBatch(ctx, scope)
		if errors.Is(err, audit.ErrNothingToAnchor) {
			// Raced with another anchor job; nothing left to do.
			continue
		}
		if err != nil {
			log.Printf("[anchor.scheduler] anchor scope %s: %v", scope, err)
			continue
		}
		log.Printf("[anchor.scheduler] anchored scope=%s range=[%d,%d] events=%d root=%s",
			mr.TenantID, mr.FirstSequence, mr.LastSequence, mr.EventCount, mr.RootHash)

		if s.exporter == nil {
			continue
		}
		events, err := s.store.EventsInRange(ctx, mr.TenantID, mr.FirstSequence, mr.LastSequence)
		if err != nil {
			log.Printf("[anchor.scheduler] load anchored events for export: %v", err)
			continue
		}
		leaves := make([]string, len(events))
		for i, ev := range events {
			leaves[i] = ev.EventHash
		}
		if err := s.exporter.ExportAnchor(ctx, mr, leaves); err != nil {
			// Best-effort: the anchor is durable either way.
			log.Printf("[anchor.scheduler] export anchor %s: %v", mr.ID, err)
		}
	}
}

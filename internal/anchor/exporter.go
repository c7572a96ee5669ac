package anchor

import (
	"context"
	"fmt"
	"time"

	"github.com/passportal/auditledger/internal/audit"
	"github.com/passportal/auditledger/internal/canonical"
)

// Publisher is the small subset of Kafka publisher behavior the exporter needs.
type Publisher interface {
	Produce(ctx context.Context, key []byte, value []byte) (partition int, offset int64, producedAt time.Time, err error)
	Close() error
}

// Exporter fans a committed anchor out to downstream consumers: a Kafka
// notification and an S3 bundle. Export runs strictly after the anchor
// transaction commits and is best-effort; a failed export never unwinds an
// anchor. Either sink may be nil.
type Exporter struct {
	publisher Publisher
	archiver  Archiver
}

// NewExporter constructs an Exporter over the configured sinks.
func NewExporter(publisher Publisher, archiver Archiver) *Exporter {
	return &Exporter{publisher: publisher, archiver: archiver}
}

// ExportAnchor publishes the anchor record and archives its bundle. The first
// failure is returned so the caller can log it; both sinks are still attempted.
func (e *Exporter) ExportAnchor(ctx context.Context, mr *audit.MerkleRoot, leafHashes []string) error {
	var firstErr error

	if e.publisher != nil {
		value, err := canonical.MarshalCanonical(anchorEnvelope(mr, nil))
		if err != nil {
			firstErr = fmt.Errorf("canonicalize anchor notification: %w", err)
		} else if _, _, _, err := e.publisher.Produce(ctx, []byte(mr.TenantID), value); err != nil {
			firstErr = fmt.Errorf("publish anchor notification: %w", err)
		}
	}

	if e.archiver != nil {
		if err := e.archiver.ArchiveAnchor(ctx, mr, leafHashes); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("archive anchor bundle: %w", err)
		}
	}

	return firstErr
}

// Close releases publisher resources.
func (e *Exporter) Close() error {
	if e.publisher != nil {
		return e.publisher.Close()
	}
	return nil
}

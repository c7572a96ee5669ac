package anchor

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/passportal/auditledger/internal/audit"
	"github.com/passportal/auditledger/internal/canonical"
)

// Archiver uploads anchor bundles to object storage.
type Archiver interface {
	ArchiveAnchor(ctx context.Context, mr *audit.MerkleRoot, leafHashes []string) error
}

// S3Archiver writes canonical anchor bundles to S3 paths like:
//
//	s3://<bucket>/<prefix>/anchors/<tenant>/<first>-<last>.json
//
// A bundle carries the anchor record plus the leaf hashes it covers, enough
// for offline proof reconstruction without database access.
type S3Archiver struct {
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Archiver creates an S3Archiver. Region and credentials come from the
// environment (AWS_REGION, AWS_PROFILE, AWS_ACCESS_KEY_ID/SECRET, ...).
func NewS3Archiver(ctx context.Context, bucket string, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)

	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

// ArchiveAnchor canonicalizes the anchor bundle and uploads it.
func (s *S3Archiver) ArchiveAnchor(ctx context.Context, mr *audit.MerkleRoot, leafHashes []string) error {
	if mr == nil {
		return fmt.Errorf("nil anchor")
	}

	bundleBytes, err := canonical.MarshalCanonical(anchorEnvelope(mr, leafHashes))
	if err != nil {
		return fmt.Errorf("canonicalize anchor bundle: %w", err)
	}

	objectKey := path.Join(s.prefix, "anchors", mr.TenantID,
		fmt.Sprintf("%012d-%012d.json", mr.FirstSequence, mr.LastSequence),
	)

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(objectKey),
		Body:                 bytes.NewReader(bundleBytes),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}

// anchorEnvelope is the wire shape shared by the Kafka notification and the S3
// bundle (the bundle additionally carries the leaf hashes).
func anchorEnvelope(mr *audit.MerkleRoot, leafHashes []string) map[string]interface{} {
	env := map[string]interface{}{
		"id":            mr.ID,
		"tenantId":      mr.TenantID,
		"rootHash":      mr.RootHash,
		"eventCount":    mr.EventCount,
		"firstSequence": mr.FirstSequence,
		"lastSequence":  mr.LastSequence,
		"signature":     mr.Signature,
		"signerId":      mr.SignerID,
		"createdAt":     mr.CreatedAt.Format(time.RFC3339Nano),
	}
	if len(mr.TSAToken) > 0 {
		env["tsaToken"] = base64.StdEncoding.EncodeToString(mr.TSAToken)
	}
	if leafHashes != nil {
		leaves := make([]interface{}, len(leafHashes))
		for i, h := range leafHashes {
			leaves[i] = h
		}
		env["leafHashes"] = leaves
	}
	return env
}

// package config provides the environment-backed configuration loader used by
// the service bootstrap (cmd/auditd/main.go).
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the runtime config values used by main.go.
type Config struct {
	DatabaseURL string // DATABASE_URL (empty = in-memory store, dev only)
	ListenAddr  string // LISTEN_ADDR (default :8080)

	// Signing
	RequireKMS      bool   // REQUIRE_KMS
	KMSEndpoint     string // KMS_ENDPOINT
	LocalSignerID   string // LOCAL_SIGNER_ID (fallback signer)
	LocalSignerSeed string // LOCAL_SIGNER_SEED (hex Ed25519 seed; empty = ephemeral dev key)

	// Timestamp authority (optional)
	TSAEndpoint string        // TSA_ENDPOINT
	TSATimeout  time.Duration // TSA_TIMEOUT_MS

	// Anchoring
	AnchorInterval  time.Duration // ANCHOR_INTERVAL_SECONDS
	AnchorBatchSize int           // ANCHOR_BATCH_SIZE

	// Anchor export (optional)
	KafkaBrokers string // KAFKA_BROKERS (comma-separated)
	KafkaTopic   string // KAFKA_TOPIC
	S3Bucket     string // S3_BUCKET
	S3Prefix     string // S3_PREFIX

	// HTTP surface auth
	AuthKeysFile string // AUTH_KEYS_FILE (PEM; empty disables token verification)
	RequireMTLS  bool   // REQUIRE_MTLS
}

// LoadFromEnv reads config values from environment variables.
func LoadFromEnv() *Config {
	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		ListenAddr:      os.Getenv("LISTEN_ADDR"),
		KMSEndpoint:     os.Getenv("KMS_ENDPOINT"),
		LocalSignerID:   os.Getenv("LOCAL_SIGNER_ID"),
		LocalSignerSeed: os.Getenv("LOCAL_SIGNER_SEED"),
		TSAEndpoint:     os.Getenv("TSA_ENDPOINT"),
		KafkaBrokers:    os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:      os.Getenv("KAFKA_TOPIC"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3Prefix:        os.Getenv("S3_PREFIX"),
		AuthKeysFile:    os.Getenv("AUTH_KEYS_FILE"),
	}

	// sensible defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LocalSignerID == "" {
		cfg.LocalSignerID = "local-signer-1"
	}
	cfg.TSATimeout = 10 * time.Second
	if n := envInt("TSA_TIMEOUT_MS"); n > 0 {
		cfg.TSATimeout = time.Duration(n) * time.Millisecond
	}
	cfg.AnchorInterval = 5 * time.Minute
	if n := envInt("ANCHOR_INTERVAL_SECONDS"); n > 0 {
		cfg.AnchorInterval = time.Duration(n) * time.Second
	}
	cfg.AnchorBatchSize = 512
	if n := envInt("ANCHOR_BATCH_SIZE"); n > 0 {
		cfg.AnchorBatchSize = n
	}

	// booleans parsed permissively; default false
	if v := os.Getenv("REQUIRE_KMS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RequireKMS = b
		}
	}
	if v := os.Getenv("REQUIRE_MTLS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RequireMTLS = b
		}
	}

	return cfg
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

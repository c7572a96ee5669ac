package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/passportal/auditledger/internal/anchor"
	"github.com/passportal/auditledger/internal/audit"
	"github.com/passportal/auditledger/internal/auth"
	"github.com/passportal/auditledger/internal/config"
	"github.com/passportal/auditledger/internal/handlers"
	"github.com/passportal/auditledger/internal/keys"
	"github.com/passportal/auditledger/internal/signer"
	"github.com/passportal/auditledger/internal/tsa"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.LoadFromEnv()

	// Database (optional; in-memory store without one, dev only)
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to open postgres: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("failed to ping postgres: %v", err)
		}
		log.Println("connected to postgres")
	}

	var store audit.Store
	if db != nil {
		store = audit.NewPGStore(db)
	} else {
		log.Println("no postgres configured; using in-memory store (dev only)")
		store = audit.NewMemoryStore()
	}

	// Signer: prefer KMS in prod; otherwise the platform seed key, then an
	// ephemeral dev key.
	var signClient signer.Signer
	if cfg.RequireKMS {
		ks, err := signer.NewKMSSigner(cfg.KMSEndpoint, true)
		if err != nil {
			log.Fatalf("failed to initialize KMS signer: %v", err)
		}
		signClient = ks
	} else if cfg.KMSEndpoint != "" {
		ks, err := signer.NewKMSSigner(cfg.KMSEndpoint, false)
		if err != nil || ks == nil {
			log.Printf("KMS signer not available: %v — falling back to local signer", err)
		} else {
			signClient = ks
			log.Printf("KMS signer configured (endpoint=%s)", cfg.KMSEndpoint)
		}
	}
	if signClient == nil {
		if cfg.LocalSignerSeed != "" {
			ls, err := signer.NewLocalSignerFromSeed(cfg.LocalSignerID, cfg.LocalSignerSeed)
			if err != nil {
				log.Fatalf("failed to load local signer seed: %v", err)
			}
			signClient = ls
		} else {
			log.Println("LOCAL_SIGNER_SEED not set; using ephemeral signing key (dev only)")
			signClient = signer.NewLocalSigner(cfg.LocalSignerID)
		}
	}

	// Key registry - expose the signer public key so auditors can verify anchors
	registry := keys.NewRegistry()
	if pk := signClient.PublicKey(); len(pk) > 0 {
		if named, ok := signClient.(interface{ SignerID() string }); ok {
			registry.AddSigner(named.SignerID(), pk, "Ed25519")
			log.Printf("registered signer %s in key registry", named.SignerID())
		}
	}

	// Timestamp authority (optional, best-effort by contract)
	var tsaClient anchor.TimestampAuthority
	if cfg.TSAEndpoint != "" {
		tsaClient = tsa.NewClient(cfg.TSAEndpoint, cfg.TSATimeout)
		log.Printf("timestamp authority configured (endpoint=%s timeout=%s)", cfg.TSAEndpoint, cfg.TSATimeout)
	}

	writer := audit.NewWriter(store)
	job := anchor.NewJob(store, signClient, tsaClient, anchor.JobConfig{
		BatchSize:  cfg.AnchorBatchSize,
		TSATimeout: cfg.TSATimeout,
	})

	// --- Anchor export wiring (optional Kafka notification + S3 bundle) ---
	var exporter *anchor.Exporter
	{
		var publisher anchor.Publisher
		if cfg.KafkaBrokers != "" && cfg.KafkaTopic != "" {
			rawBrokers := strings.Split(cfg.KafkaBrokers, ",")
			brokers := make([]string, 0, len(rawBrokers))
			for _, b := range rawBrokers {
				if b = strings.TrimSpace(b); b != "" {
					brokers = append(brokers, b)
				}
			}
			kp, err := anchor.NewKafkaPublisher(anchor.KafkaPublisherConfig{
				Brokers: brokers,
				Topic:   cfg.KafkaTopic,
			})
			if err != nil {
				log.Fatalf("failed to initialize kafka publisher: %v", err)
			}
			publisher = kp
			log.Printf("kafka publisher initialized (brokers=%v topic=%s)", brokers, cfg.KafkaTopic)
		}

		var archiver anchor.Archiver
		if cfg.S3Bucket != "" {
			a, err := anchor.NewS3Archiver(context.Background(), cfg.S3Bucket, cfg.S3Prefix)
			if err != nil {
				log.Fatalf("failed to initialize s3 archiver: %v", err)
			}
			archiver = a
			log.Printf("s3 archiver initialized (bucket=%s prefix=%s)", cfg.S3Bucket, cfg.S3Prefix)
		}

		if publisher != nil || archiver != nil {
			exporter = anchor.NewExporter(publisher, archiver)
		}
	}

	// Anchor scheduler
	scheduler := anchor.NewScheduler(store, job, exporter, anchor.SchedulerConfig{
		Interval: cfg.AnchorInterval,
	})
	schedCtx, schedCancel := context.WithCancel(context.Background())
	go func() {
		if err := scheduler.Run(schedCtx); err != nil && err != context.Canceled {
			log.Printf("[anchor.scheduler] exited with error: %v", err)
		}
	}()

	// HTTP surface auth
	var authMiddleware func(http.Handler) http.Handler
	if cfg.AuthKeysFile != "" || cfg.RequireMTLS {
		var verifier *auth.Verifier
		if cfg.AuthKeysFile != "" {
			var err error
			verifier, err = auth.NewVerifier(cfg.AuthKeysFile)
			if err != nil {
				log.Fatalf("failed to load auth keys: %v", err)
			}
		}
		authMiddleware = auth.Middleware(cfg.RequireMTLS, verifier)
	}

	router := handlers.NewRouter(handlers.Deps{
		Store:    store,
		Writer:   writer,
		Job:      job,
		Registry: registry,
		Auth:     authMiddleware,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting auditd server on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}

	schedCancel()
	if exporter != nil {
		_ = exporter.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	log.Println("server stopped")
}

// Command server runs the anchorid API: encrypted DID and credential
// storage, ledger anchoring, and selective-disclosure proofs.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"anchorid/internal/anchor"
	anchorhandler "anchorid/internal/anchor/handler"
	anchormetrics "anchorid/internal/anchor/metrics"
	"anchorid/internal/auth"
	credhandler "anchorid/internal/credential/handler"
	credmetrics "anchorid/internal/credential/metrics"
	credservice "anchorid/internal/credential/service"
	"anchorid/internal/crypto"
	httpapi "anchorid/internal/http"
	idhandler "anchorid/internal/identity/handler"
	idmetrics "anchorid/internal/identity/metrics"
	idservice "anchorid/internal/identity/service"
	"anchorid/internal/identity/store"
	jwttoken "anchorid/internal/jwt_token"
	"anchorid/internal/platform/config"
	"anchorid/internal/platform/httpserver"
	"anchorid/internal/platform/kafka"
	"anchorid/internal/platform/logger"
	"anchorid/internal/platform/metrics"
	"anchorid/internal/platform/postgres"
	"anchorid/internal/platform/redis"
	"anchorid/internal/proof"
	proofhandler "anchorid/internal/proof/handler"
	proofmetrics "anchorid/internal/proof/metrics"
	"anchorid/internal/proof/nullifier"
	"anchorid/internal/proof/zkbackend"
	"anchorid/internal/wallet"
	id "anchorid/pkg/domain"
	"anchorid/pkg/platform/audit"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	producer, err := kafka.NewProducer(ctx, cfg.Kafka, log)
	if err != nil {
		log.Error("kafka unavailable", "error", err)
		os.Exit(1)
	}
	if producer != nil {
		defer producer.Close()
	}

	// Audit: fail-closed publisher for lifecycle writes, fail-open tracker
	// for routine and security events, outbox drained to Kafka.
	auditStore := audit.NewPostgresStore(db)
	compliance := audit.NewCompliancePublisher(auditStore, audit.WithLogger(log))
	ops := audit.NewOpsTracker(auditStore, log)
	if producer != nil {
		worker := audit.NewWorker(auditStore, producer, cfg.Kafka.AuditTopic, 5*time.Second, log)
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit worker stopped", "error", err)
			}
		}()
	}

	// Encrypted record store shared by identity, credential, and proof.
	signer := wallet.StaticSigner{Secret: []byte(cfg.Wallet.SignerSecret)}
	records := store.New(store.NewPostgres(db), crypto.New(), signer, cfg.Chain.ChainID,
		store.WithLogger(log),
	)

	// Anchoring: chain client behind a circuit breaker, append-only log.
	chainClient := anchor.NewClient(cfg.Chain, anchor.WithClientLogger(log))
	anchorOpts := []anchor.Option{
		anchor.WithLogger(log),
		anchor.WithMetrics(anchormetrics.New()),
	}
	if producer != nil {
		anchorOpts = append(anchorOpts, anchor.WithPublisher(producer))
	}
	anchorSvc := anchor.NewService(chainClient, anchor.NewPostgresStore(db), anchorOpts...)
	go func() {
		if err := chainClient.WaitHealthy(ctx, 10*time.Second); err == nil {
			log.Info("chain rpc reachable", "network", cfg.Chain.Network)
		}
	}()

	identitySvc := idservice.NewService(records, anchorSvc,
		idservice.WithLogger(log),
		idservice.WithMetrics(idmetrics.New()),
		idservice.WithAudit(compliance, ops),
	)

	issuerWallet := id.WalletAddress(cfg.Issuer.WalletAddress)
	credentialSvc := credservice.NewService(records, anchorSvc,
		credservice.IssuerConfig{
			DID:     id.DIDForWallet(issuerWallet),
			Address: issuerWallet,
			ChainID: cfg.Chain.ChainID,
		},
		signer,
		credservice.WithLogger(log),
		credservice.WithMetrics(credmetrics.New()),
		credservice.WithCompliance(compliance),
	)

	// Proof engine: shared-state stores when Redis is configured, SNARK
	// range circuit when requested.
	var registry nullifier.Registry = nullifier.NewPostgresRegistry(db)
	if redisClient != nil {
		registry = nullifier.NewRedisRegistry(redisClient.Client)
	}
	var backend zkbackend.Prover = zkbackend.NewHashCommitment()
	if cfg.Proof.Backend == "groth16" {
		groth16Backend, err := zkbackend.NewGroth16Prover()
		if err != nil {
			log.Error("groth16 setup failed", "error", err)
			os.Exit(1)
		}
		backend = groth16Backend
	}
	proofEngine := proof.NewEngine(records, backend, registry, proof.NewPostgresStore(db),
		proof.WithLogger(log),
		proof.WithMetrics(proofmetrics.New()),
		proof.WithOps(ops),
		proof.WithAnchorer(anchorSvc),
		proof.WithExpiry(cfg.Proof.Expiry),
	)
	proofEngine.StartCleanup(ctx, cfg.Proof.PruneInterval)

	// Wallet login.
	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, "anchorid", "anchorid-api")
	var nonces auth.NonceStore = auth.NewMemoryNonceStore()
	if redisClient != nil {
		nonces = auth.NewRedisNonceStore(redisClient.Client)
	}
	authSvc := auth.NewService(nonces, signer, tokens, cfg.Chain.ChainID, auth.WithLogger(log))

	readiness := map[string]httpapi.Health{
		"postgres": func() error { return db.PingContext(context.Background()) },
	}
	if redisClient != nil {
		readiness["redis"] = func() error { return redisClient.Health(context.Background()) }
	}

	router := httpapi.NewRouter(httpapi.Config{
		Logger:  log,
		Metrics: metrics.New(),
		Handlers: []httpapi.Registrar{
			auth.NewHandler(authSvc, log),
			idhandler.New(identitySvc, anchorSvc, log, tokens),
			credhandler.New(credentialSvc, log, tokens),
			proofhandler.New(proofEngine, log, tokens),
			anchorhandler.New(anchorSvc, log),
		},
		Readiness: readiness,
	})

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("anchorid listening", "addr", cfg.Addr, "network", cfg.Chain.Network)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

// Command server runs the prescription exchange service: issuer-side offer
// lifecycle, holder-side scan/verify/decide, and the wallet ledger, behind one
// HTTP surface.
//
// External backends are all optional. Without DATABASE_URL the wallet lives
// in SQLite or memory, without REDIS_URL the trust and revocation caches are
// in-process, without KAFKA_BROKERS the audit trail stays in memory, and
// without upstream URLs the resolver/registry clients run against local
// fakes. That makes a bare `go run ./cmd/server` a complete demo deployment.
package main

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"rxchange/internal/credential"
	"rxchange/internal/credential/codec"
	"rxchange/internal/didresolver"
	"rxchange/internal/exchange"
	"rxchange/internal/platform/config"
	"rxchange/internal/platform/database"
	"rxchange/internal/platform/health"
	"rxchange/internal/platform/kafka/producer"
	"rxchange/internal/platform/logger"
	"rxchange/internal/platform/metrics"
	"rxchange/internal/platform/redis"
	"rxchange/internal/revocation"
	httptransport "rxchange/internal/transport/http"
	"rxchange/internal/trustregistry"
	"rxchange/internal/verify"
	"rxchange/internal/verify/tracer"
	"rxchange/internal/wallet"
	"rxchange/pkg/domain"
	"rxchange/pkg/platform/audit"
	"rxchange/pkg/platform/audit/publisher"
)

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.FromEnv()
	healthHandler := health.New(cfg.Environment)

	redisClient, err := redis.New(config.RedisFromEnv())
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		healthHandler.RegisterCheck("redis", func() error {
			return redisClient.Healthy(context.Background())
		})
	}

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if pool != nil {
		defer pool.Close()
		healthHandler.RegisterCheck("database", func() error {
			return pool.Healthy(context.Background())
		})
	}

	issuerKey, err := loadKey(cfg.IssuerSigningKey)
	if err != nil {
		return fmt.Errorf("issuer signing key: %w", err)
	}
	qrKey, err := loadKey(cfg.QRSigningKey)
	if err != nil {
		return fmt.Errorf("QR signing key: %w", err)
	}

	issuerDID, err := domain.ParseDID(cfg.IssuerDID)
	if err != nil {
		return fmt.Errorf("issuer DID: %w", err)
	}

	// DID resolution. The in-memory fallback carries the local issuer key so
	// the demo loop verifies end to end.
	var resolver didresolver.Resolver
	methodID := cfg.IssuerDID + "#key-1"
	if cfg.DIDResolverURL != "" {
		resolver = didresolver.NewHTTPResolver(cfg.DIDResolverURL)
	} else {
		mem := didresolver.NewMemoryResolver()
		methodID = mem.RegisterKey(issuerDID, issuerKey.Public().(ed25519.PublicKey))
		resolver = mem
		log.Warn("DID_RESOLVER_URL not set, using in-memory resolver")
	}

	// Trust registry with its TTL cache.
	var trustUpstream trustregistry.Upstream
	if cfg.TrustRegistryURL != "" {
		trustUpstream = trustregistry.NewHTTPUpstream(cfg.TrustRegistryURL)
	} else {
		mem := trustregistry.NewMemoryUpstream()
		mem.SetTrusted(issuerDID, true)
		trustUpstream = mem
		log.Warn("TRUST_REGISTRY_URL not set, using in-memory registry")
	}
	var trustStore trustregistry.Store = trustregistry.NewMemoryStore(cfg.TrustCacheTTL)
	if redisClient != nil {
		trustStore = trustregistry.NewRedisStore(redisClient.Client, cfg.TrustCacheTTL)
	}
	trust := trustregistry.NewClient(trustUpstream, trustStore,
		trustregistry.WithLogger(log), trustregistry.WithMetrics(trustregistry.NewMetrics()))

	// Revocation with its freshness-biased cache.
	var revUpstream revocation.Upstream
	if cfg.RevocationURL != "" {
		revUpstream = revocation.NewHTTPUpstream(cfg.RevocationURL)
	} else {
		revUpstream = revocation.NewMemoryUpstream()
		log.Warn("REVOCATION_STATUS_URL not set, using in-memory revocation list")
	}
	var revStore revocation.Store = revocation.NewMemoryStore(cfg.RevocationCacheTTL)
	if redisClient != nil {
		revStore = revocation.NewRedisStore(redisClient.Client, cfg.RevocationCacheTTL)
	}
	rev := revocation.NewChecker(revUpstream, revStore,
		revocation.WithLogger(log), revocation.WithMetrics(revocation.NewMetrics()))

	// Audit trail: Kafka when brokers are configured, memory otherwise.
	var auditStore audit.Store = audit.NewMemoryStore()
	if cfg.KafkaBrokers != "" {
		prod, err := producer.New(producer.Config{
			Brokers:         cfg.KafkaBrokers,
			Retries:         3,
			DeliveryTimeout: 10 * time.Second,
		}, log)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer prod.Close()
		auditStore = audit.NewKafkaStore(prod, cfg.AuditTopic)
	}
	auditPublisher := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(256), publisher.WithPublisherLogger(log))
	defer auditPublisher.Close()

	// Wallet ledger: Postgres, SQLite, or memory, in that order of preference.
	walletStore, err := buildWalletStore(cfg, pool)
	if err != nil {
		return fmt.Errorf("wallet store: %w", err)
	}
	walletService := wallet.NewService(walletStore,
		wallet.WithLogger(log), wallet.WithAudit(auditPublisher))

	codecOpts := []codec.Option{codec.WithTransportBudget(cfg.TransportBudget)}
	if cfg.FetchBaseURL != "" {
		codecOpts = append(codecOpts, codec.WithReferenceIssuer(cfg.FetchBaseURL, issuerKey, methodID))
	}
	payloadCodec, err := codec.New(codecOpts...)
	if err != nil {
		return fmt.Errorf("codec: %w", err)
	}

	verifyOpts := []verify.Option{
		verify.WithLogger(log),
		verify.WithMetrics(verify.NewMetrics()),
		verify.WithBudget(cfg.VerifyTimeout),
	}
	if cfg.TracingEnabled {
		verifyOpts = append(verifyOpts, verify.WithTracer(tracer.NewOTel()))
	}
	if cfg.FetchBaseURL != "" {
		verifyOpts = append(verifyOpts,
			verify.WithReferenceFetcher(verify.NewHTTPFetcher(&http.Client{Timeout: 10 * time.Second})))
	}
	verifier := verify.NewService(payloadCodec, resolver, trust, rev, verifyOpts...)

	signer, err := credential.NewSigner(issuerKey, methodID)
	if err != nil {
		return fmt.Errorf("signer: %w", err)
	}
	qrSigner, err := exchange.NewQRSigner(qrKey, cfg.QRValidity)
	if err != nil {
		return fmt.Errorf("qr signer: %w", err)
	}

	issuer := exchange.NewIssuerService(exchange.NewMemoryOfferStore(), signer, payloadCodec, qrSigner,
		exchange.WithIssuerLogger(log), exchange.WithIssuerAudit(auditPublisher))
	holder := exchange.NewHolderService(qrSigner.PublicKey(), payloadCodec, verifier, walletService,
		exchange.WithHolderLogger(log))

	handler := httptransport.NewHandler(issuer, holder, walletService, log)
	router := httptransport.NewRouter(handler, log, metrics.NewHTTP(), healthHandler)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// loadKey decodes a base64 ed25519 private key, generating an ephemeral one
// when the value is empty.
func loadKey(encoded string) (ed25519.PrivateKey, error) {
	if encoded == "" {
		_, key, err := ed25519.GenerateKey(nil)
		return key, err
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	}
	return nil, fmt.Errorf("key must be a %d-byte seed or %d-byte private key", ed25519.SeedSize, ed25519.PrivateKeySize)
}

func buildWalletStore(cfg config.Server, pool *database.Pool) (wallet.Store, error) {
	if pool != nil {
		return wallet.NewPostgresStore(pool.DB()), nil
	}
	if cfg.SQLitePath != "" {
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		store := wallet.NewSQLiteStore(db)
		if err := store.Migrate(context.Background()); err != nil {
			return nil, err
		}
		return store, nil
	}
	return wallet.NewMemoryStore(), nil
}

package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration for the exchange service.
type Server struct {
	Addr        string
	Environment string

	// Upstream service endpoints. Empty values leave the corresponding
	// client running against its in-memory fake (demo / offline mode).
	DIDResolverURL   string
	TrustRegistryURL string
	RevocationURL    string

	DatabaseURL  string
	SQLitePath   string
	RedisURL     string
	KafkaBrokers string
	AuditTopic   string

	// TracingEnabled switches the verification pipeline from the noop tracer
	// to the OpenTelemetry tracer on the global provider.
	TracingEnabled bool

	// Issuer identity for the offer side. The signing key is a base64
	// ed25519 private key; empty generates an ephemeral dev key that is
	// registered in the in-memory resolver.
	IssuerDID        string
	IssuerSigningKey string
	// FetchBaseURL enables reference payloads for oversized credentials.
	FetchBaseURL string

	// Verification policy knobs.
	VerifyTimeout      time.Duration
	TrustCacheTTL      time.Duration
	RevocationCacheTTL time.Duration
	QRValidity         time.Duration
	TransportBudget    int

	// QRSigningKey is the base64-encoded ed25519 private key that signs the
	// short-lived QR artifact tokens. Credential proofs are signed by issuer
	// keys, never by this key. Empty means an ephemeral key is generated at
	// startup, which invalidates outstanding QRs on restart.
	QRSigningKey string
}

// Defaults. Revocation leans fresh, trust tolerates short offline windows.
var (
	DefaultVerifyTimeout      = 3 * time.Second
	DefaultTrustCacheTTL      = 15 * time.Minute
	DefaultRevocationCacheTTL = 5 * time.Minute
	DefaultQRValidity         = 5 * time.Minute
	DefaultTransportBudget    = 2500
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:               envOr("RXCHANGE_ADDR", ":8080"),
		Environment:        envOr("RXCHANGE_ENV", "development"),
		DIDResolverURL:     os.Getenv("DID_RESOLVER_URL"),
		TrustRegistryURL:   os.Getenv("TRUST_REGISTRY_URL"),
		RevocationURL:      os.Getenv("REVOCATION_STATUS_URL"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         os.Getenv("WALLET_SQLITE_PATH"),
		RedisURL:           os.Getenv("REDIS_URL"),
		KafkaBrokers:       os.Getenv("KAFKA_BROKERS"),
		AuditTopic:         envOr("AUDIT_TOPIC", "rxchange.audit.v1"),
		TracingEnabled:     boolOr("TRACING_ENABLED", false),
		IssuerDID:          envOr("ISSUER_DID", "did:web:clinic.example:dev-issuer"),
		IssuerSigningKey:   os.Getenv("ISSUER_SIGNING_KEY"),
		FetchBaseURL:       os.Getenv("CREDENTIAL_FETCH_URL"),
		VerifyTimeout:      durationOr("VERIFY_TIMEOUT", DefaultVerifyTimeout),
		TrustCacheTTL:      durationOr("TRUST_CACHE_TTL", DefaultTrustCacheTTL),
		RevocationCacheTTL: durationOr("REVOCATION_CACHE_TTL", DefaultRevocationCacheTTL),
		QRValidity:         durationOr("QR_VALIDITY", DefaultQRValidity),
		TransportBudget:    intOr("TRANSPORT_BUDGET", DefaultTransportBudget),
		QRSigningKey:       os.Getenv("QR_SIGNING_KEY"),
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func boolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func intOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// RedisConfig holds Redis connection tuning.
type RedisConfig struct {
	URL      string
	PoolSize int
}

// RedisFromEnv builds Redis configuration from environment variables.
func RedisFromEnv() RedisConfig {
	poolSize := intOr("REDIS_POOL_SIZE", 10)
	return RedisConfig{
		URL:      os.Getenv("REDIS_URL"),
		PoolSize: poolSize,
	}
}

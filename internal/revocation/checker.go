package revocation

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rxchange/pkg/domain"
	dErrors "rxchange/pkg/domain-errors"
)

// Metrics tracks revocation cache and upstream behavior.
type Metrics struct {
	CacheHitsTotal       *prometheus.CounterVec
	CacheMissesTotal     prometheus.Counter
	UpstreamLookupsTotal *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics() *Metrics {
	return &Metrics{
		CacheHitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rxchange_revocation_cache_hits_total",
			Help: "Total number of revocation cache hits by cached status",
		}, []string{"status"}),
		CacheMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rxchange_revocation_cache_misses_total",
			Help: "Total number of revocation cache misses",
		}),
		UpstreamLookupsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rxchange_revocation_upstream_lookups_total",
			Help: "Total number of revocation upstream lookups by outcome",
		}, []string{"outcome"}),
	}
}

// Checker answers revocation checks with the freshness bias described in the
// package comment.
type Checker struct {
	upstream Upstream
	store    Store
	metrics  *Metrics
	logger   *slog.Logger
}

// Option configures the Checker.
type Option func(*Checker)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables metric emission.
func WithMetrics(m *Metrics) Option {
	return func(c *Checker) {
		c.metrics = m
	}
}

// NewChecker creates a revocation checker.
func NewChecker(upstream Upstream, store Store, opts ...Option) *Checker {
	c := &Checker{
		upstream: upstream,
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check reports the revocation status of a credential.
//
// A cached revoked status is answered immediately and never re-queried. A
// fresh cached not-revoked status is answered from cache; a stale one forces
// an upstream lookup. If the upstream cannot answer and no usable cache entry
// exists, the error carries CodeUnavailable: a stale not-revoked entry is
// never an acceptable substitute for a live answer.
func (c *Checker) Check(ctx context.Context, credentialID domain.CredentialID) (*Status, error) {
	if cached, err := c.store.Find(ctx, credentialID.String()); err == nil {
		if c.metrics != nil {
			label := "not_revoked"
			if cached.Revoked {
				label = "revoked"
			}
			c.metrics.CacheHitsTotal.WithLabelValues(label).Inc()
		}
		return cached, nil
	}
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}

	status, err := c.upstream.Lookup(ctx, credentialID)
	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamLookupsTotal.WithLabelValues("error").Inc()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "revocation lookup failed")
	}
	if c.metrics != nil {
		c.metrics.UpstreamLookupsTotal.WithLabelValues("ok").Inc()
	}

	if err := c.store.Save(ctx, status); err != nil {
		c.logger.WarnContext(ctx, "failed to cache revocation status",
			"credential_id", credentialID.String(), "error", err)
	}
	return status, nil
}

// Freshness returns how old a status answer is at the given instant. Useful
// for audit records, where the age of a cached answer matters.
func Freshness(status *Status, now time.Time) time.Duration {
	if status == nil {
		return 0
	}
	return now.Sub(status.CheckedAt)
}

package trustregistry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"rxchange/pkg/domain"
	dErrors "rxchange/pkg/domain-errors"
	"rxchange/pkg/platform/circuit"
)

// Client answers accreditation checks from cache, falling back to the
// upstream registry behind a circuit breaker.
type Client struct {
	upstream Upstream
	store    Store
	breaker  *circuit.Breaker
	metrics  *Metrics
	logger   *slog.Logger

	// While the circuit is open, one upstream probe per interval is let
	// through so the circuit can observe recovery and close again.
	probeInterval time.Duration
	probeMu       sync.Mutex
	lastProbe     time.Time
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables metric emission.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithBreaker overrides the default circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

// WithProbeInterval sets how often an open circuit lets a probe through.
func WithProbeInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.probeInterval = d
		}
	}
}

// NewClient creates a trust registry client.
func NewClient(upstream Upstream, store Store, opts ...Option) *Client {
	c := &Client{
		upstream:      upstream,
		store:         store,
		breaker:       circuit.New("trust-registry", circuit.WithFailureThreshold(3)),
		logger:        slog.Default(),
		probeInterval: 10 * time.Second,
		lastProbe:     time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check reports whether the issuer is accredited.
//
// Answers come from a fresh cache entry or a live upstream lookup, never from
// a stale entry. When neither is possible the error carries CodeUnavailable
// and the caller must treat the check as inconclusive.
func (c *Client) Check(ctx context.Context, issuer domain.DID) (*Status, error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.LookupDurationSeconds.Observe(time.Since(start).Seconds())
		}
	}()

	if cached, err := c.store.Find(ctx, issuer.String()); err == nil {
		if c.metrics != nil {
			c.metrics.CacheHitsTotal.Inc()
		}
		return cached, nil
	}
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}

	if c.breaker.IsOpen() && !c.probeDue() {
		return nil, dErrors.New(dErrors.CodeUnavailable, "trust registry circuit open")
	}

	status, err := c.upstream.Lookup(ctx, issuer)
	if err != nil {
		if opened, change := c.breaker.RecordFailure(); opened && change.Opened {
			c.logger.WarnContext(ctx, "trust registry circuit opened", "issuer", issuer.String())
			c.setCircuitGauge(1)
		}
		if c.metrics != nil {
			c.metrics.UpstreamLookupsTotal.WithLabelValues("error").Inc()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "trust registry lookup failed")
	}

	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "trust registry circuit closed")
		c.setCircuitGauge(0)
	}
	if c.metrics != nil {
		c.metrics.UpstreamLookupsTotal.WithLabelValues("ok").Inc()
	}

	if err := c.store.Save(ctx, status); err != nil {
		// A failed cache write costs latency on the next check, nothing more.
		c.logger.WarnContext(ctx, "failed to cache trust status", "issuer", issuer.String(), "error", err)
	}
	return status, nil
}

func (c *Client) probeDue() bool {
	c.probeMu.Lock()
	defer c.probeMu.Unlock()
	if time.Since(c.lastProbe) < c.probeInterval {
		return false
	}
	c.lastProbe = time.Now()
	return true
}

func (c *Client) setCircuitGauge(v float64) {
	if c.metrics != nil {
		c.metrics.CircuitOpen.Set(v)
	}
}

package verify

import (
	"context"
	"crypto/ed25519"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"rxchange/internal/credential"
	"rxchange/internal/credential/codec"
	"rxchange/internal/didresolver"
	"rxchange/internal/revocation"
	"rxchange/internal/signature"
	"rxchange/internal/temporal"
	"rxchange/internal/trustregistry"
	"rxchange/internal/verify/tracer"
	"rxchange/pkg/domain"
	dErrors "rxchange/pkg/domain-errors"
	"rxchange/pkg/platform/clock"
)

// DefaultBudget bounds a full verification run.
const DefaultBudget = 3 * time.Second

// Service orchestrates a verification run.
type Service struct {
	codec      *codec.Codec
	resolver   didresolver.Resolver
	trust      TrustChecker
	revocation RevocationChecker
	fetcher    ReferenceFetcher
	budget     time.Duration
	logger     *slog.Logger
	metrics    *Metrics
	tracer     tracer.Tracer
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables metric emission.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer sets the tracer; tests use tracer.NewNoop().
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithBudget overrides the run time budget.
func WithBudget(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.budget = d
		}
	}
}

// WithReferenceFetcher enables verification of reference payloads.
func WithReferenceFetcher(f ReferenceFetcher) Option {
	return func(s *Service) {
		s.fetcher = f
	}
}

// NewService creates a verification orchestrator.
func NewService(c *codec.Codec, resolver didresolver.Resolver, trust TrustChecker, rev RevocationChecker, opts ...Option) *Service {
	s := &Service{
		codec:      c,
		resolver:   resolver,
		trust:      trust,
		revocation: rev,
		budget:     DefaultBudget,
		logger:     slog.Default(),
		tracer:     tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// gatherResult holds results from the concurrent checks. Each goroutine
// writes to its own fields, avoiding data races.
type gatherResult struct {
	doc        *didresolver.Document
	didErr     error
	didLatency time.Duration

	sigErr     error
	sigLatency time.Duration

	trust        *trustregistry.Status
	trustErr     error
	trustLatency time.Duration

	rev        *revocation.Status
	revErr     error
	revLatency time.Duration

	temporal temporal.Result
}

// Verify runs the full pipeline over a scanned payload.
//
// The run never exceeds its time budget: checks that have not concluded when
// the budget expires resolve to Indeterminate. The returned report is
// complete and immutable; an error return means the run itself could not be
// conducted, not that the credential failed.
func (s *Service) Verify(ctx context.Context, payload []byte) (*Report, error) {
	evaluatedAt := clock.Now(ctx)
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, tracer.SpanVerify)
	report := &Report{EvaluatedAt: evaluatedAt}
	defer func() {
		span.SetAttributes(tracer.String(tracer.AttrOverall, string(report.Overall)))
		span.End(nil)
	}()

	// Step 1: decode. A payload that cannot be decoded cannot be checked any
	// further; the report carries only the codec check.
	decodeStart := time.Now()
	env, err := s.codec.Decode(payload)
	decodeLatency := time.Since(decodeStart)
	if err != nil {
		report.Checks = []Check{{
			Name:      CheckCodec,
			Outcome:   CheckFail,
			Reason:    err.Error(),
			LatencyMS: decodeLatency.Milliseconds(),
		}}
		return s.finalize(ctx, report, start), nil
	}
	codecCheck := Check{Name: CheckCodec, Outcome: CheckPass, LatencyMS: decodeLatency.Milliseconds()}
	span.SetAttributes(tracer.String(tracer.AttrPayloadKind, string(env.Kind)))

	// Step 2: materialize the credential. Embedded payloads carry it;
	// reference payloads require resolving the issuer, checking the reference
	// token, and fetching.
	cred := env.Credential
	var preResolved *didresolver.Document
	var preResolveLatency time.Duration
	if env.Kind == codec.PayloadReference {
		var failed *Check
		cred, preResolved, preResolveLatency, failed = s.materializeReference(ctx, env.Reference)
		if failed != nil {
			report.Checks = []Check{codecCheck, *failed}
			return s.finalize(ctx, report, start), nil
		}
	}
	report.CredentialID = cred.ID
	report.IssuerDID = cred.IssuerDID
	report.Credential = cred
	span.SetAttributes(
		tracer.String(tracer.AttrCredentialID, cred.ID),
		tracer.String(tracer.AttrIssuerDID, cred.IssuerDID),
	)

	// Steps 3-4: run the remaining checks concurrently and aggregate.
	result := s.gather(ctx, cred, evaluatedAt, preResolved, preResolveLatency)
	report.Checks = append([]Check{codecCheck}, assembleChecks(result)...)
	report.Warnings = warnings(result.temporal)
	return s.finalize(ctx, report, start), nil
}

// materializeReference turns a reference payload into the credential it
// names. On failure it returns the check that should carry the outcome:
// resolution problems land on didResolution, token problems on signature,
// fetch problems on codec.
func (s *Service) materializeReference(ctx context.Context, ref *codec.Reference) (*credential.PrescriptionCredential, *didresolver.Document, time.Duration, *Check) {
	if s.fetcher == nil {
		return nil, nil, 0, &Check{
			Name:    CheckCodec,
			Outcome: CheckFail,
			Reason:  "reference payloads are not supported by this verifier",
		}
	}

	issuer, err := domain.ParseDID(ref.IssuerDID)
	if err != nil {
		return nil, nil, 0, &Check{Name: CheckCodec, Outcome: CheckFail, Reason: err.Error()}
	}

	resolveStart := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanResolve)
	doc, err := s.resolver.Resolve(ctx, issuer)
	span.End(err)
	resolveLatency := time.Since(resolveStart)
	if err != nil {
		return nil, nil, 0, &Check{
			Name:      CheckDIDResolution,
			Outcome:   outcomeFromError(err),
			Reason:    err.Error(),
			LatencyMS: resolveLatency.Milliseconds(),
		}
	}

	methodID, err := codec.ReferenceVerificationMethod(ref)
	if err == nil {
		var key ed25519.PublicKey
		key, err = signature.ResolveKey(doc, methodID)
		if err == nil {
			err = codec.VerifyReferenceToken(ref, key)
		}
	}
	if err != nil {
		return nil, nil, 0, &Check{
			Name:    CheckSignature,
			Outcome: outcomeFromError(err),
			Reason:  err.Error(),
		}
	}

	fetchCtx, fetchSpan := s.tracer.Start(ctx, tracer.SpanFetch)
	cred, err := s.fetcher.Fetch(fetchCtx, ref)
	fetchSpan.End(err)
	if err != nil {
		name := CheckCodec
		if dErrors.HasCode(err, dErrors.CodeCryptographicFailure) {
			name = CheckSignature
		}
		return nil, nil, 0, &Check{
			Name:    name,
			Outcome: outcomeFromError(err),
			Reason:  err.Error(),
		}
	}
	return cred, doc, resolveLatency, nil
}

// gather runs the independent checks concurrently. Goroutines record their
// results in isolated fields and never return errors, so one failing check
// cannot cancel the others: the report must be maximally informative even
// when the overall outcome is already decided.
func (s *Service) gather(ctx context.Context, cred *credential.PrescriptionCredential, now time.Time, preResolved *didresolver.Document, preResolveLatency time.Duration) *gatherResult {
	g, gctx := errgroup.WithContext(ctx)
	result := &gatherResult{}

	issuer, issuerErr := domain.ParseDID(cred.IssuerDID)
	credID, credIDErr := domain.ParseCredentialID(cred.ID)

	// DID resolution, then signature verification against the resolved
	// document. Serial within the task: the signature cannot be checked
	// without the issuer's published key.
	g.Go(func() error {
		if issuerErr != nil {
			result.didErr = dErrors.Wrap(issuerErr, dErrors.CodeMalformed, "issuer DID unparsable")
			return nil
		}
		doc := preResolved
		result.didLatency = preResolveLatency
		if doc == nil {
			start := time.Now()
			spanCtx, span := s.tracer.Start(gctx, tracer.SpanResolve)
			resolved, err := s.resolver.Resolve(spanCtx, issuer)
			span.End(err)
			result.didLatency = time.Since(start)
			if err != nil {
				result.didErr = err
				return nil
			}
			doc = resolved
		}
		result.doc = doc

		start := time.Now()
		_, span := s.tracer.Start(gctx, tracer.SpanSignature)
		result.sigErr = signature.Verify(cred, doc)
		span.End(result.sigErr)
		result.sigLatency = time.Since(start)
		return nil
	})

	g.Go(func() error {
		if issuerErr != nil {
			result.trustErr = dErrors.Wrap(issuerErr, dErrors.CodeMalformed, "issuer DID unparsable")
			return nil
		}
		start := time.Now()
		spanCtx, span := s.tracer.Start(gctx, tracer.SpanTrust)
		result.trust, result.trustErr = s.trust.Check(spanCtx, issuer)
		span.End(result.trustErr)
		result.trustLatency = time.Since(start)
		return nil
	})

	g.Go(func() error {
		if credIDErr != nil {
			result.revErr = dErrors.Wrap(credIDErr, dErrors.CodeMalformed, "credential ID unparsable")
			return nil
		}
		start := time.Now()
		spanCtx, span := s.tracer.Start(gctx, tracer.SpanRevocation)
		result.rev, result.revErr = s.revocation.Check(spanCtx, credID)
		span.End(result.revErr)
		result.revLatency = time.Since(start)
		return nil
	})

	g.Go(func() error {
		_, span := s.tracer.Start(gctx, tracer.SpanTemporal)
		result.temporal = temporal.Evaluate(cred, now)
		span.End(nil)
		return nil
	})

	// Goroutines only ever return nil; Wait is a join point.
	_ = g.Wait()
	return result
}

// assembleChecks turns gathered results into the five non-codec checks in
// stable order.
func assembleChecks(r *gatherResult) []Check {
	sig := Check{Name: CheckSignature, Outcome: CheckPass, LatencyMS: r.sigLatency.Milliseconds()}
	switch {
	case r.didErr != nil:
		// The issuer's key never became available, so the signature could not
		// be evaluated either way.
		sig.Outcome = CheckIndeterminate
		sig.Reason = "issuer key unavailable: " + r.didErr.Error()
	case r.sigErr != nil:
		sig.Outcome = CheckFail
		sig.Reason = r.sigErr.Error()
	}

	did := Check{Name: CheckDIDResolution, Outcome: CheckPass, LatencyMS: r.didLatency.Milliseconds()}
	if r.didErr != nil {
		did.Outcome = outcomeFromError(r.didErr)
		did.Reason = r.didErr.Error()
	}

	trust := Check{Name: CheckTrustRegistry, Outcome: CheckPass, LatencyMS: r.trustLatency.Milliseconds()}
	switch {
	case r.trustErr != nil:
		trust.Outcome = outcomeFromError(r.trustErr)
		trust.Reason = r.trustErr.Error()
	case !r.trust.Trusted:
		trust.Outcome = CheckFail
		trust.Reason = "issuer is not accredited in the trust registry"
	}

	rev := Check{Name: CheckRevocation, Outcome: CheckPass, LatencyMS: r.revLatency.Milliseconds()}
	switch {
	case r.revErr != nil:
		rev.Outcome = outcomeFromError(r.revErr)
		rev.Reason = r.revErr.Error()
	case r.rev.Revoked:
		rev.Outcome = CheckFail
		rev.Reason = "credential has been revoked"
		if r.rev.Reason != "" {
			rev.Reason += ": " + r.rev.Reason
		}
	}

	temp := Check{Name: CheckTemporal, Outcome: CheckPass}
	if !r.temporal.Valid {
		temp.Outcome = CheckFail
		temp.Reason = r.temporal.Reason
	}

	return []Check{sig, did, trust, rev, temp}
}

func (s *Service) finalize(ctx context.Context, report *Report, start time.Time) *Report {
	report.Overall = aggregate(report.Checks)
	report.ElapsedMS = time.Since(start).Milliseconds()

	if s.metrics != nil {
		s.metrics.observeRun(report.Overall, time.Since(start).Seconds())
		s.metrics.observeChecks(report.Checks)
	}

	attrs := []any{
		"overall", string(report.Overall),
		"credential_id", report.CredentialID,
		"elapsed_ms", report.ElapsedMS,
	}
	switch report.Overall {
	case OutcomeVerified:
		s.logger.InfoContext(ctx, "verification run complete", attrs...)
	case OutcomeRejected:
		s.logger.WarnContext(ctx, "verification rejected credential",
			append(attrs, "failing_checks", report.FailingChecks())...)
	case OutcomeIndeterminate:
		s.logger.WarnContext(ctx, "verification inconclusive",
			append(attrs, "indeterminate_checks", report.IndeterminateChecks())...)
	}
	return report
}

// outcomeFromError maps the failure taxonomy onto a check outcome: transient
// conditions are indeterminate, everything else is a hard fail.
func outcomeFromError(err error) CheckOutcome {
	if dErrors.Retryable(err) {
		return CheckIndeterminate
	}
	return CheckFail
}

func warnings(result temporal.Result) []string {
	switch result.Proximity {
	case temporal.ProximityDay:
		return []string{"prescription expires within 24 hours"}
	case temporal.ProximityWeek:
		return []string{"prescription expires within 7 days"}
	default:
		return nil
	}
}

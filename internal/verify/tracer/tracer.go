// Package tracer provides a lightweight tracing abstraction for the
// verification pipeline.
//
// The interface keeps the orchestrator decoupled from OpenTelemetry APIs:
// production wires the OTel adapter, tests use the no-op tracer.
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording any error that occurred.
	// End must be called exactly once, typically via defer.
	End(err error)

	// SetAttributes adds key-value pairs to the span.
	SetAttributes(attrs ...Attribute)

	// AddEvent records a timestamped event within the span.
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans for distributed tracing.
// Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int64 creates an int64 attribute.
func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names used by the verification pipeline.
const (
	SpanVerify     = "verify.run"
	SpanDecode     = "verify.decode"
	SpanResolve    = "verify.did_resolve"
	SpanSignature  = "verify.signature"
	SpanTrust      = "verify.trust"
	SpanRevocation = "verify.revocation"
	SpanTemporal   = "verify.temporal"
	SpanFetch      = "verify.reference_fetch"
)

// Attribute keys used by the verification pipeline.
const (
	AttrCredentialID = "credential_id"
	AttrIssuerDID    = "issuer_did"
	AttrPayloadKind  = "payload_kind"
	AttrOverall      = "overall"
)

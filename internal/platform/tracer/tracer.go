// Package tracer is a small tracing port so lifecycle code can emit spans
// without importing OpenTelemetry everywhere.
//
// Implementations:
//   - NoopTracer: tests
//   - OTelTracer: OpenTelemetry adapter
package tracer

import (
	"context"
	"time"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	// End completes the span; a non-nil err marks it failed.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
//
//	ctx, span := t.Start(ctx, tracer.SpanSubmit, tracer.String(tracer.AttrSubject, subject.Hex()))
//	defer func() { span.End(err) }()
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

func Float64(key string, value float64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names used by the lifecycle.
const (
	SpanSubmit     = "lifecycle.submit"
	SpanRevoke     = "lifecycle.revoke"
	SpanRegister   = "lifecycle.register"
	SpanScan       = "lifecycle.scan"
	SpanReputation = "lifecycle.reputation"
	SpanAnchor     = "lifecycle.anchor"
)

// Attribute keys. Subjects are account addresses, never personal data.
const (
	AttrSubject     = "subject"
	AttrEventID     = "event_id"
	AttrOutcome     = "outcome"
	AttrAgeCategory = "age_category"
	AttrAnchorCount = "anchor.count"
	AttrAnchorOK    = "anchor.succeeded"
	AttrMerkleSize  = "merkle.leaves"
)

package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestStartSpanWithoutProviderIsNoop(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.span", attribute.String("k", "v"))
	if span == nil {
		t.Fatalf("expected span")
	}
	if span.IsRecording() {
		t.Fatalf("expected non-recording span without a provider")
	}
	if trace.SpanFromContext(ctx).SpanContext().IsValid() {
		t.Fatalf("expected invalid span context without a provider")
	}
	End(span, errors.New("boom"))
}

package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "quoth"

// StartSearchSpan starts a span for one retrieval pipeline pass.
func StartSearchSpan(ctx context.Context, projectID, scope string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "search",
		trace.WithAttributes(
			attribute.String("project.id", projectID),
			attribute.String("search.scope", scope),
		),
	)
}

// StartSyncSpan starts a span for one incremental document sync.
func StartSyncSpan(ctx context.Context, projectID, filePath string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "document_sync",
		trace.WithAttributes(
			attribute.String("project.id", projectID),
			attribute.String("document.path", filePath),
		),
	)
}

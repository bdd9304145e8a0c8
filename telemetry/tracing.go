package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/onnwee/max-bridge"
	// DefaultServiceName is reported unless OTEL_SERVICE_NAME overrides it.
	DefaultServiceName = "max-bridge"
)

// Span attribute keys for the bridge's own spans.
const (
	AttrMaxUserID  = attribute.Key("max.user_id")
	AttrMaxLimit   = attribute.Key("max.limit")
	AttrMaxFetched = attribute.Key("max.fetched")
	AttrCorrID     = attribute.Key("correlation_id")
)

// InitTracing exports spans over OTLP/gRPC when OTEL_EXPORTER_OTLP_ENDPOINT
// is set. Otherwise spans go to the global no-op provider. The returned
// shutdown flushes pending spans and is always non-nil.
func InitTracing(ctx context.Context, version string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		slog.Debug("tracing disabled: OTEL_EXPORTER_OTLP_ENDPOINT not set")
		return noop, nil
	}

	setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exporter, err := otlptracegrpc.New(setupCtx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(endpoint),
	)
	if err != nil {
		return noop, fmt.Errorf("create trace exporter: %w", err)
	}

	// Later options win, so OTEL_SERVICE_NAME overrides the default name.
	res, err := resource.New(setupCtx,
		resource.WithAttributes(
			semconv.ServiceName(DefaultServiceName),
			semconv.ServiceVersion(version),
		),
		resource.WithFromEnv(),
	)
	if err != nil {
		return noop, fmt.Errorf("create trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	slog.Info("tracing initialized", slog.String("endpoint", endpoint), slog.String("version", version))

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// StartSpan starts a bridge span, attaching the correlation id when present.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if corr := GetCorrelation(ctx); corr != "" {
		attrs = append(attrs, AttrCorrID.String(corr))
	}
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartPollSpan opens the span around one Max message fetch.
func StartPollSpan(ctx context.Context, userID string, limit int) (context.Context, trace.Span) {
	return StartSpan(ctx, "max.poll", AttrMaxUserID.String(userID), AttrMaxLimit.Int(limit))
}

// EndPollSpan records the fetch outcome and ends span.
func EndPollSpan(span trace.Span, fetched int, err error) {
	span.SetAttributes(AttrMaxFetched.Int(fetched))
	RecordError(span, err)
	span.End()
}

// StartHTTPSpan opens a server span for a capture-server request.
func StartHTTPSpan(ctx context.Context, r *http.Request) (context.Context, trace.Span) {
	return StartSpan(ctx, r.Method+" "+r.URL.Path,
		semconv.HTTPMethod(r.Method),
		semconv.HTTPRoute(r.URL.Path),
	)
}

// EndHTTPSpan records the response code, marking 4xx/5xx as errors, and ends span.
func EndHTTPSpan(span trace.Span, code int) {
	span.SetAttributes(semconv.HTTPStatusCode(code))
	if code >= 400 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", code))
	}
	span.End()
}

// RecordError records err on span; nil is ignored.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

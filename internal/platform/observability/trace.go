package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/insigne-house/api/internal/platform/requestctx"
)

const (
	cloudTraceHeader = "X-Cloud-Trace-Context"
	tracerName       = "github.com/insigne-house/api"
)

// TraceMiddleware extracts Cloud Trace context from incoming requests, starts a
// server span and stores trace identifiers in the request context for logging.
func TraceMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		parent, sampled, ok := parseCloudTraceContext(r.Header.Get(cloudTraceHeader))
		if ok {
			ctx = trace.ContextWithRemoteSpanContext(ctx, parent)
		}

		ctx, span := tracer.Start(ctx, spanNameFromRequest(r),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(standardSpanAttributes(r)...),
		)
		defer span.End()

		spanCtx := span.SpanContext()
		info := requestctx.TraceInfo{
			TraceID: spanCtx.TraceID().String(),
			SpanID:  spanCtx.SpanID().String(),
			Sampled: sampled || spanCtx.IsSampled(),
		}
		ctx = requestctx.WithTrace(ctx, info)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(semconv.HTTPResponseStatusCode(rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wrote {
		r.status = status
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.wrote = true
	}
	return r.ResponseWriter.Write(b)
}

// parseCloudTraceContext parses the "TRACE_ID/SPAN_ID;o=OPTIONS" header format.
func parseCloudTraceContext(header string) (trace.SpanContext, bool, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return trace.SpanContext{}, false, false
	}

	sampled := false
	if idx := strings.Index(header, ";"); idx >= 0 {
		options := header[idx+1:]
		header = header[:idx]
		for _, opt := range strings.Split(options, ";") {
			if strings.TrimSpace(opt) == "o=1" {
				sampled = true
			}
		}
	}

	parts := strings.SplitN(header, "/", 2)
	traceID, err := trace.TraceIDFromHex(strings.TrimSpace(parts[0]))
	if err != nil {
		return trace.SpanContext{}, false, false
	}

	var spanID trace.SpanID
	if len(parts) == 2 {
		spanID, err = parseSpanID(strings.TrimSpace(parts[1]))
		if err != nil {
			return trace.SpanContext{}, false, false
		}
	}

	cfg := trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
		Remote:  true,
	}
	if sampled {
		cfg.TraceFlags = trace.FlagsSampled
	}
	return trace.NewSpanContext(cfg), sampled, true
}

// parseSpanID accepts the decimal span id Cloud Trace propagates.
func parseSpanID(raw string) (trace.SpanID, error) {
	if raw == "" {
		return trace.SpanID{}, nil
	}
	decimal, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return trace.SpanID{}, err
	}
	return trace.SpanIDFromHex(fmt.Sprintf("%016x", decimal))
}

func spanNameFromRequest(r *http.Request) string {
	return fmt.Sprintf("%s %s", SanitizeMethod(r.Method), SanitizeRoute(r.URL.Path))
}

func standardSpanAttributes(r *http.Request) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.HTTPRequestMethodKey.String(SanitizeMethod(r.Method)),
		semconv.URLPath(SanitizeRoute(r.URL.Path)),
		semconv.UserAgentOriginal(sanitizeString(r.UserAgent(), "unknown")),
	}
}

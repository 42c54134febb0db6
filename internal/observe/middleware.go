package observe

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the trace id back to the client.
const CorrelationHeader = "X-Correlation-ID"

var propagator = propagation.TraceContext{}

// probeRoutes are hit by schedulers and scrapers; their access logs go to
// debug.
var probeRoutes = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// responseWriter remembers the status written by the handler. The voice
// socket hijacks the connection, which counts as 101.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the wrapped writer to [http.ResponseController].
func (w *responseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("observe: %T cannot be hijacked", w.ResponseWriter)
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// route is the matched mux pattern without its method, so metric labels stay
// bounded. Requests no pattern matched share one label.
func route(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}

// Middleware traces, times and logs every request. It continues a W3C trace
// from the traceparent header, echoes the trace id in [CorrelationHeader] and
// records [Metrics.HTTPRequestDuration] by method and route. It must wrap the
// [http.ServeMux] itself so the matched pattern is visible afterwards.
//
// A voice socket is logged once when it closes, with the session length as
// its duration.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set(CorrelationHeader, cid)
			}
			propagator.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			r = r.WithContext(ctx)
			next.ServeHTTP(rw, r)

			elapsed := time.Since(start)
			rt := route(r)
			span.SetName("HTTP " + r.Method + " " + rt)
			span.SetAttributes(semconv.HTTPRoute(rt), semconv.HTTPResponseStatusCode(rw.status))
			if rw.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.status))
			}
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("route", rt),
			))

			level, msg := slog.LevelInfo, "request completed"
			switch {
			case rw.status >= http.StatusInternalServerError:
				level = slog.LevelWarn
			case rw.status == http.StatusSwitchingProtocols:
				msg = "voice socket closed"
			case probeRoutes[rt]:
				level = slog.LevelDebug
			}
			slog.LogAttrs(ctx, level, msg,
				slog.String("trace_id", cid),
				slog.String("method", r.Method),
				slog.String("route", rt),
				slog.Int("status", rw.status),
				slog.String("remote", r.RemoteAddr),
				slog.Duration("duration", elapsed),
			)
		})
	}
}

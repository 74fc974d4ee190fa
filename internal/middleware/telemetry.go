package middleware

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const requestActorKey contextKey = "requestActor"

// requestActor is filled in by StaffAuth further down the chain so the
// access log can name the staff member behind each request.
type requestActor struct {
	mu      sync.Mutex
	authCtx *AuthContext
}

func withRequestActor(ctx context.Context) (context.Context, *requestActor) {
	actor := &requestActor{}
	return context.WithValue(ctx, requestActorKey, actor), actor
}

func recordActor(ctx context.Context, authCtx *AuthContext) {
	actor, ok := ctx.Value(requestActorKey).(*requestActor)
	if !ok {
		return
	}
	actor.mu.Lock()
	actor.authCtx = authCtx
	actor.mu.Unlock()
}

func (a *requestActor) fields() []zap.Field {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.authCtx == nil {
		return []zap.Field{zap.Bool("authenticated", false)}
	}
	return []zap.Field{
		zap.Bool("authenticated", true),
		zap.Int64("userId", a.authCtx.UserID),
		zap.String("role", string(a.authCtx.Role)),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(data)
	r.bytes += n
	return n, err
}

// Hijack lets the floor websocket upgrade pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// routeLatency keeps the most recent durations per route in a ring.
type routeLatency struct {
	mu     sync.Mutex
	size   int
	rings  map[string][]int64
	cursor map[string]int
}

func newRouteLatency(size int) *routeLatency {
	return &routeLatency{size: size, rings: make(map[string][]int64), cursor: make(map[string]int)}
}

func (l *routeLatency) observe(route string, ms int64) (p50, p95 int64) {
	l.mu.Lock()
	ring := l.rings[route]
	if len(ring) < l.size {
		ring = append(ring, ms)
	} else {
		ring[l.cursor[route]] = ms
		l.cursor[route] = (l.cursor[route] + 1) % l.size
	}
	l.rings[route] = ring
	sorted := slices.Clone(ring)
	l.mu.Unlock()

	slices.Sort(sorted)
	return percentile(sorted, 0.5), percentile(sorted, 0.95)
}

// percentile expects sorted input.
func percentile(values []int64, p float64) int64 {
	if len(values) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	return values[max(0, min(idx, len(values)-1))]
}

var floorLatency = newRouteLatency(200)

// Telemetry writes one access log line per request with the route, the
// outcome and, for authenticated calls, the staff member and role.
func Telemetry(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, actor := withRequestActor(r.Context())
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r.WithContext(ctx))

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rc := chi.RouteContext(ctx); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			elapsed := time.Since(start).Milliseconds()
			p50, p95 := floorLatency.observe(r.Method+" "+route, elapsed)

			requestID := RequestIDFromContext(ctx)
			if requestID == "" {
				requestID = readRequestIDHeader(r)
			}
			fields := append([]zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", route),
				zap.String("requestId", requestID),
				zap.Int("status", status),
				zap.Int("bytes", rec.bytes),
				zap.Int64("duration_ms", elapsed),
				zap.Int64("p50_ms", p50),
				zap.Int64("p95_ms", p95),
			}, actor.fields()...)

			switch {
			case status >= 500:
				logger.Error("http_request", fields...)
			case status >= 400:
				logger.Warn("http_request", fields...)
			default:
				logger.Info("http_request", fields...)
			}
		})
	}
}

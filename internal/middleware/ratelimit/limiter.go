package ratelimit

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"butce/internal/log"
)

// FailureMode decides the outcome when the counter cannot be consulted.
type FailureMode int

const (
	// FailOpen lets the request through. It is the zero value.
	FailOpen FailureMode = iota
	FailClosed
)

func (m FailureMode) String() string {
	if m == FailClosed {
		return "fail_closed"
	}
	return "fail_open"
}

type Policy struct {
	Limit     int
	Window    time.Duration
	OnFailure FailureMode
}

// RetryAfterSeconds is the window length rounded up to whole seconds, at least 1.
func (p Policy) RetryAfterSeconds() int {
	return max(1, int(math.Ceil(p.Window.Seconds())))
}

type CheckInput struct {
	Key       string
	Policy    Policy
	RequestID string
	// Action labels the guarded operation in log lines.
	Action string
}

type Result struct {
	OK                bool
	RetryAfterSeconds int
}

// OnceFlag is a process-lifetime latch. First reports true to exactly one
// caller.
type OnceFlag struct {
	fired atomic.Bool
}

func (f *OnceFlag) First() bool {
	return f.fired.CompareAndSwap(false, true)
}

func (f *OnceFlag) Fired() bool {
	return f.fired.Load()
}

// Metrics for monitoring rate limit decisions
type Metrics struct {
	Allowed  int64
	Denied   int64
	Failures int64
}

// Limiter interprets Counter outcomes against a Policy.
type Limiter struct {
	counter Counter
	logger  *log.Logger
	notice  *OnceFlag

	allowed  atomic.Int64
	denied   atomic.Int64
	failures atomic.Int64
}

// NewLimiter wires a limiter. A nil notice gets a private flag; pass a shared
// one to deduplicate the unavailable-counter log across limiters.
func NewLimiter(counter Counter, logger *log.Logger, notice *OnceFlag) *Limiter {
	if logger == nil {
		logger = log.Discard()
	}
	if notice == nil {
		notice = &OnceFlag{}
	}
	return &Limiter{
		counter: counter,
		logger:  logger.WithComponent(log.ComponentRateLimit),
		notice:  notice,
	}
}

// Check consumes one hit for in.Key.
func (l *Limiter) Check(ctx context.Context, in CheckInput) Result {
	retryAfter := in.Policy.RetryAfterSeconds()
	fields := log.NewFields().
		WithRateLimit(in.Key, in.Policy.Limit, retryAfter).
		WithRequestID(in.RequestID).
		WithOperation(in.Action)

	var (
		ok  bool
		err error
	)
	if l.counter == nil {
		err = ErrCounterUnavailable
	} else {
		ok, err = l.counter.Increment(ctx, in.Key, in.Policy.Limit, in.Policy.Window)
	}

	if err != nil {
		l.failures.Add(1)
		l.logFailure(ctx, err, in.Policy.OnFailure, fields)
		if in.Policy.OnFailure == FailClosed {
			l.denied.Add(1)
			return Result{OK: false, RetryAfterSeconds: retryAfter}
		}
		l.allowed.Add(1)
		return Result{OK: true}
	}

	if !ok {
		l.denied.Add(1)
		l.logger.WarnContext(ctx, "Rate limit exceeded", fields.ToSlice()...)
		return Result{OK: false, RetryAfterSeconds: retryAfter}
	}

	l.allowed.Add(1)
	return Result{OK: true}
}

func (l *Limiter) logFailure(ctx context.Context, err error, mode FailureMode, fields log.LogFields) {
	fields = fields.WithError(err)
	fields["failure_mode"] = mode.String()

	if errors.Is(err, ErrCounterUnavailable) {
		if l.notice.First() {
			l.logger.ErrorContext(ctx, "Rate limit counter is not available, further occurrences are not logged", fields.ToSlice()...)
		}
		return
	}
	l.logger.ErrorContext(ctx, "Rate limit check failed", fields.ToSlice()...)
}

// GetMetrics returns current rate limiting metrics
func (l *Limiter) GetMetrics() Metrics {
	return Metrics{
		Allowed:  l.allowed.Load(),
		Denied:   l.denied.Load(),
		Failures: l.failures.Load(),
	}
}

// MiddlewareConfig binds a scope and policy to request-derived key parts.
type MiddlewareConfig struct {
	Scope  string
	Policy Policy
	// Identify returns the user id for the key. Requests it identifies are
	// bucketed by user alone, since forwarded IP headers are client-controlled;
	// the rest fall back to the client IP.
	Identify  func(*http.Request) string
	RequestID func(*http.Request) string
	OnLimit   func(http.ResponseWriter, *http.Request, Result)
}

// Middleware creates HTTP middleware for rate limiting
func (l *Limiter) Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parts := KeyParts{Scope: cfg.Scope}
			if cfg.Identify != nil {
				parts.UserID = cfg.Identify(r)
			}
			if parts.UserID == "" {
				parts.IP = RequestIP(r)
			}
			var requestID string
			if cfg.RequestID != nil {
				requestID = cfg.RequestID(r)
			}

			res := l.Check(r.Context(), CheckInput{
				Key:       BuildKey(parts),
				Policy:    cfg.Policy,
				RequestID: requestID,
				Action:    cfg.Scope,
			})
			if !res.OK {
				w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfterSeconds))
				if cfg.OnLimit != nil {
					cfg.OnLimit(w, r, res)
				} else {
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"butce/internal/auth"
	"butce/internal/cache"
	"butce/internal/config"
	"butce/internal/log"
	"butce/internal/middleware/ratelimit"
	"butce/internal/middleware/security"
	"butce/internal/middleware/trace"
	"butce/internal/services"
)

const requestTimeout = 7 * time.Second

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators the API is wired from.
type Dependencies struct {
	Transactions *services.TransactionService
	Reports      *services.ReportService
	Budget       *services.BudgetService
	Tokens       *auth.TokenService
	Counter      ratelimit.Counter
	Store        Pinger
	Cache        *cache.Manager
	Logger       *log.Logger
}

type Server struct {
	http.Server

	transactions *services.TransactionService
	reports      *services.ReportService
	budget       *services.BudgetService
	store        Pinger
	cache        *cache.Manager

	logger           *log.Logger
	limiter          *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	writePolicy ratelimit.Policy
	readPolicy  ratelimit.Policy

	started      time.Time
	now          func() time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}

	failure := ratelimit.FailOpen
	if cfg.RateLimitFailClosed {
		failure = ratelimit.FailClosed
	}

	s := &Server{
		Server: http.Server{
			Addr:              ":" + cfg.Port,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		transactions:     deps.Transactions,
		reports:          deps.Reports,
		budget:           deps.Budget,
		store:            deps.Store,
		cache:            deps.Cache,
		logger:           logger.WithComponent(log.ComponentHTTP),
		limiter:          ratelimit.NewLimiter(deps.Counter, logger, &ratelimit.OnceFlag{}),
		securityDetector: security.NewDetector(logger),
		traceMiddleware:  trace.NewMiddleware(logger, ratelimit.RequestIP),
		writePolicy: ratelimit.Policy{
			Limit:     cfg.RateLimitWrite,
			Window:    cfg.RateLimitWriteWindow,
			OnFailure: failure,
		},
		readPolicy: ratelimit.Policy{
			Limit:     cfg.RateLimitRead,
			Window:    cfg.RateLimitReadWindow,
			OnFailure: failure,
		},
		started: time.Now(),
		now:     time.Now,
	}

	origin := security.NewOriginGuard(cfg.AllowedOrigins, cfg.AllowSameSite, logger, func(w http.ResponseWriter, r *http.Request) {
		ForbiddenError(r).Write(w)
	})
	authenticate := auth.Middleware(deps.Tokens, logger, func(w http.ResponseWriter, r *http.Request) {
		UnauthorizedError(r).Write(w)
	})

	// api wraps a handler as origin → auth → rate limit → timeout.
	api := func(scope string, policy ratelimit.Policy, h http.HandlerFunc) http.Handler {
		limited := s.limiter.Middleware(ratelimit.MiddlewareConfig{
			Scope:     scope,
			Policy:    policy,
			Identify:  auth.UserKey,
			RequestID: trace.RequestID,
			OnLimit: func(w http.ResponseWriter, r *http.Request, _ ratelimit.Result) {
				RateLimitedError(r).Write(w)
			},
		})(withTimeout(h))
		return origin.Middleware(authenticate(limited))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.Handle("GET /api/dashboard", api("dashboard:read", s.readPolicy, s.handleDashboard))
	mux.Handle("GET /api/reports/{month}", api("reports:read", s.readPolicy, s.handleMonthlyReport))

	mux.Handle("GET /api/transactions", api("transactions:list", s.readPolicy, s.handleListTransactions))
	mux.Handle("POST /api/transactions", api("transactions:create", s.writePolicy, s.handleCreateTransaction))
	mux.Handle("DELETE /api/transactions/{id}", api("transactions:delete", s.writePolicy, s.handleDeleteTransaction))

	mux.Handle("GET /api/wallets", api("wallets:list", s.readPolicy, s.handleListWallets))
	mux.Handle("POST /api/wallets", api("wallets:create", s.writePolicy, s.handleCreateWallet))

	mux.Handle("GET /api/fixed-expenses", api("fixed_expenses:list", s.readPolicy, s.handleListFixedExpenses))
	mux.Handle("POST /api/fixed-expenses", api("fixed_expenses:create", s.writePolicy, s.handleCreateFixedExpense))
	mux.Handle("POST /api/fixed-expenses/{id}/pay", api("fixed_expenses:pay", s.writePolicy, s.handlePayFixedExpense))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if allowed := allowedMethods(mux, r); len(allowed) > 0 {
			MethodNotAllowedError(r, allowed).Write(w)
			return
		}
		NotFoundError(r, "Route not found").Write(w)
	})

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	var handler http.Handler = mux
	handler = s.securityDetector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	s.Handler = handler

	return s
}

var routeMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}

// allowedMethods lists the methods some other route serves r's path with.
func allowedMethods(mux *http.ServeMux, r *http.Request) []string {
	var allowed []string
	for _, method := range routeMethods {
		if method == r.Method {
			continue
		}
		alt := r.Clone(r.Context())
		alt.Method = method
		if _, pattern := mux.Handler(alt); pattern != "" && pattern != "/" {
			allowed = append(allowed, method)
		}
	}
	return allowed
}

func withTimeout(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}

// Shutdown gracefully shuts down the server and its cache cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.cache != nil {
			s.cache.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/docstore"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
	"fintrack/internal/state"
)

// Options configures NewServer.
type Options struct {
	Addr          string
	Store         docstore.Store
	Events        services.EventPublisher
	Registry      *state.Registry
	AppID         string
	DefaultUserID string
	AuthRequired  bool
	Currency      *core.CurrencyFormatter

	// TrustedProxies are CIDR ranges whose forwarding headers are honoured.
	TrustedProxies  []string
	RateLimitRPS    float64
	RateLimitBurst  int
	ReportCacheSize int
	ReportCacheTTL  time.Duration

	Logger *log.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	http.Server

	deps          services.Deps
	registry      *state.Registry
	appID         string
	defaultUserID string
	authRequired  bool
	currency      *core.CurrencyFormatter
	logger        *log.Logger
	structLog     *log.StructuredLogger

	rateLimiter *ratelimit.Limiter
	detector    *security.Detector

	// Derived read models keyed by user, view generation and parameters
	dashboardCache *cache.LRUCache[core.DashboardSummary]
	reportCache    *cache.LRUCache[[]core.MonthTotals]
	cacheManager   *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.FromContext(context.Background())
	}
	if opts.Currency == nil {
		opts.Currency = core.MustCurrencyFormatter("IDR")
	}
	if opts.ReportCacheSize <= 0 {
		opts.ReportCacheSize = 256
	}
	if opts.ReportCacheTTL <= 0 {
		opts.ReportCacheTTL = 5 * time.Minute
	}

	logger := opts.Logger.WithComponent(log.ComponentHTTP)
	s := &Server{
		deps:          services.Deps{Store: opts.Store, Events: opts.Events, Now: opts.Now},
		registry:      opts.Registry,
		appID:         opts.AppID,
		defaultUserID: opts.DefaultUserID,
		authRequired:  opts.AuthRequired,
		currency:      opts.Currency,
		logger:        logger,
		structLog:     log.NewStructuredLogger(logger),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerSecond: opts.RateLimitRPS,
			Burst:             opts.RateLimitBurst,
		}),
		detector:       security.NewDetector(),
		dashboardCache: cache.NewLRUCache[core.DashboardSummary](opts.ReportCacheSize, opts.ReportCacheTTL),
		reportCache:    cache.NewLRUCache[[]core.MonthTotals](opts.ReportCacheSize, opts.ReportCacheTTL),
		cacheManager:   cache.NewManager(),
	}

	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err.Error())
		}
	}

	s.cacheManager.Register(s.dashboardCache)
	s.cacheManager.Register(s.reportCache)
	if s.registry != nil {
		s.cacheManager.Register(s.registry)
	}
	s.cacheManager.StartCleanup(10 * time.Minute)

	if s.registry != nil {
		// Entries of older generations can never hit again
		s.registry.OnChange(func(userID, _ string) {
			s.dashboardCache.DeletePrefix(userID + "|")
			s.reportCache.DeletePrefix(userID + "|")
		})
	}

	api := http.NewServeMux()
	s.routes(api)

	apiChain := s.withUser(s.rateLimiter.Middleware(
		func(r *http.Request) string { return userIDFrom(r.Context()) },
		func(w http.ResponseWriter, r *http.Request) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldUserID, userIDFrom(r.Context()),
				log.FieldClientIP, s.detector.ExtractClientIP(r))
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
		},
	)(api))

	root := http.NewServeMux()
	root.Handle("/api/", apiChain)
	root.HandleFunc("GET /healthz", handleHealth)
	root.HandleFunc("GET /readyz", s.handleReady)

	tracer := trace.NewMiddleware(s.detector.ExtractClientIP, opts.Logger)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	s.Server = http.Server{
		Addr:         opts.Addr,
		Handler:      tracer.Middleware(headers.Middleware(s.detector.Middleware(root))),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/accounts", s.handleListAccounts)
	mux.HandleFunc("POST /api/accounts", s.handleCreateAccount)
	mux.HandleFunc("PUT /api/accounts/{id}", s.handleUpdateAccount)
	mux.HandleFunc("DELETE /api/accounts/{id}", s.handleDeleteAccount)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("GET /api/bills", s.handleListBills)
	mux.HandleFunc("GET /api/bills/upcoming", s.handleUpcomingBills)
	mux.HandleFunc("POST /api/bills", s.handleCreateBill)
	mux.HandleFunc("PUT /api/bills/{id}", s.handleUpdateBill)
	mux.HandleFunc("DELETE /api/bills/{id}", s.handleDeleteBill)
	mux.HandleFunc("POST /api/bills/{id}/pay", s.handleBillAction(billPay))
	mux.HandleFunc("POST /api/bills/{id}/unpay", s.handleBillAction(billUnpay))
	mux.HandleFunc("POST /api/bills/{id}/toggle", s.handleBillAction(billToggle))

	mux.HandleFunc("GET /api/budgets", s.handleListBudgets)
	mux.HandleFunc("GET /api/budgets/status", s.handleBudgetStatus)
	mux.HandleFunc("POST /api/budgets", s.handleCreateBudget)
	mux.HandleFunc("POST /api/budgets/reset", s.handleResetBudgets)
	mux.HandleFunc("PUT /api/budgets/{id}", s.handleUpdateBudget)
	mux.HandleFunc("DELETE /api/budgets/{id}", s.handleDeleteBudget)

	mux.HandleFunc("GET /api/goals", s.handleListGoals)
	mux.HandleFunc("POST /api/goals", s.handleCreateGoal)
	mux.HandleFunc("PUT /api/goals/{id}", s.handleUpdateGoal)
	mux.HandleFunc("DELETE /api/goals/{id}", s.handleDeleteGoal)
	mux.HandleFunc("POST /api/goals/{id}/funds", s.handleAddFunds)

	mux.HandleFunc("GET /api/savings", s.handleListSavings)
	mux.HandleFunc("POST /api/savings", s.handleCreateSavings)
	mux.HandleFunc("PUT /api/savings/{id}", s.handleUpdateSavings)
	mux.HandleFunc("DELETE /api/savings/{id}", s.handleDeleteSavings)

	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/reports/monthly", s.handleMonthlyReport)
	mux.HandleFunc("GET /api/categories", s.handleCategories)

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no such endpoint").Write(w)
	})
}

// withUser resolves the acting user from the auth proxy header.
func (s *Server) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			if s.authRequired {
				UnauthorizedError("missing " + UserIDHeader + " header").Write(w)
				return
			}
			userID = s.defaultUserID
		}
		if !core.ValidUserID(userID) {
			s.detector.RecordInvalidUserID()
			log.FromContext(r.Context()).WarnContext(r.Context(), "Rejected invalid user id",
				log.FieldErrorType, log.ErrorTypeAuth,
				log.FieldClientIP, s.detector.ExtractClientIP(r))
			UnauthorizedError("invalid " + UserIDHeader + " header").Write(w)
			return
		}

		ctx := withUserID(r.Context(), userID)
		ctx = log.WithLogger(ctx, log.FromContext(ctx).With(log.FieldUserID, userID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// svc returns the services bound to the request's user.
func (s *Server) svc(r *http.Request) *services.Services {
	return services.New(s.deps, s.scope(r))
}

func (s *Server) scope(r *http.Request) docstore.Scope {
	return docstore.Scope{AppID: s.appID, UserID: userIDFrom(r.Context())}
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady checks that the store answers a read.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	probe := docstore.Scope{AppID: s.appID, UserID: "_readyz"}.Collection(core.AccountsCollection)
	if _, err := s.deps.Store.List(ctx, probe); err != nil {
		s.logger.ErrorContext(ctx, "Readiness check failed", log.FieldError, err.Error())
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Package http exposes the finance API: registration and login, profile
// management, seeded categories, owner-scoped transaction CRUD with filters,
// and the report endpoints. Handlers stay thin; semantics live in storage
// and report.
package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"fintrack/internal/auth"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/log"
	"fintrack/internal/report"
	"fintrack/internal/storage"
)

// Store is the persistence surface the handlers depend on.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, name, email, passwordHash string) (core.User, error)
	GetUserByID(ctx context.Context, id int64) (core.User, error)
	GetUserByEmail(ctx context.Context, email string) (core.User, error)
	UpdateUserProfile(ctx context.Context, id int64, name, email *string) (core.User, error)

	ListCategories(ctx context.Context, kind core.Kind) ([]core.Category, error)

	CreateTransaction(ctx context.Context, owner int64, draft core.Transaction) (core.Transaction, error)
	ListTransactions(ctx context.Context, owner int64, f storage.TransactionFilter) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, owner, id int64) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, owner, id int64, patch core.TransactionPatch) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, owner, id int64) error
}

// Reporter derives the summary views served under /api/reports.
type Reporter interface {
	Dashboard(ctx context.Context, owner int64, month, year int) (report.DashboardView, error)
	ByPeriod(ctx context.Context, owner int64, from, to core.Date, kind core.Kind) ([]report.PeriodBucket, error)
	ByCategory(ctx context.Context, owner int64, month, year int) ([]report.CategoryStat, error)
}

// Options carries the knobs NewServer needs beyond its collaborators.
type Options struct {
	Addr         string
	BcryptCost   int
	CacheTTL     time.Duration
	CacheMaxSize int
}

type Server struct {
	http.Server

	store     Store
	reports   Reporter
	tokens    *auth.TokenService
	publisher events.Publisher
	logger    *log.Logger

	bcryptCost int

	// now supplies the default month/year for reports; the engine itself
	// never reads the clock.
	now func() time.Time

	rateLimiter *rateLimiter

	// Dashboard views are cached per owner. Keys embed a per-owner version
	// counter that is bumped on every write, so invalidation is a counter
	// increment rather than a scan.
	dashCache    *cache.LRUCache[report.DashboardView]
	cacheManager *cache.Manager
	versionMu    sync.Mutex
	versions     map[int64]uint64

	shutdownOnce sync.Once
}

// NewServer configures routes and returns a ready-to-run server.
func NewServer(opts Options, store Store, reports Reporter, tokens *auth.TokenService, publisher events.Publisher, logger *log.Logger) *Server {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = 10
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = time.Minute
	}
	if opts.CacheMaxSize == 0 {
		opts.CacheMaxSize = 1000
	}

	s := &Server{
		store:       store,
		reports:     reports,
		tokens:      tokens,
		publisher:   publisher,
		logger:      logger.WithComponent(log.ComponentHTTP),
		bcryptCost:  opts.BcryptCost,
		now:         time.Now,
		rateLimiter: newRateLimiter(),
		dashCache:   cache.NewLRUCache[report.DashboardView](opts.CacheMaxSize, opts.CacheTTL),
		versions:    make(map[int64]uint64),
	}

	s.cacheManager = cache.NewManager()
	s.cacheManager.Register(s.dashCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	s.Server = http.Server{
		Addr:         opts.Addr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestLogger)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(api chi.Router) {
		api.Group(func(pub chi.Router) {
			pub.Use(s.rateLimit)
			pub.Post("/auth/register", s.handleRegister)
			pub.Post("/auth/login", s.handleLogin)
		})

		api.Group(func(priv chi.Router) {
			priv.Use(s.requireAuth)

			priv.Get("/auth/profile", s.handleGetProfile)
			priv.Put("/auth/profile", s.handleUpdateProfile)

			priv.Get("/categories", s.handleListCategories)

			priv.Route("/transactions", func(tr chi.Router) {
				tr.Post("/", s.handleCreateTransaction)
				tr.Get("/", s.handleListTransactions)
				tr.Get("/{id}", s.handleGetTransaction)
				tr.Put("/{id}", s.handleUpdateTransaction)
				tr.Delete("/{id}", s.handleDeleteTransaction)
			})

			priv.Route("/reports", func(rep chi.Router) {
				rep.Get("/dashboard", s.handleDashboard)
				rep.Get("/period", s.handlePeriodReport)
				rep.Get("/categories", s.handleCategoryReport)
			})
		})
	})

	return r
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		if s.cacheManager != nil {
			s.cacheManager.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Readiness check failed", log.FieldError, err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) ownerVersion(owner int64) uint64 {
	s.versionMu.Lock()
	defer s.versionMu.Unlock()
	return s.versions[owner]
}

func (s *Server) bumpOwnerVersion(owner int64) {
	s.versionMu.Lock()
	defer s.versionMu.Unlock()
	s.versions[owner]++
}

func (s *Server) dashboardCacheKey(owner int64, month, year int) string {
	return strconv.FormatInt(owner, 10) + ":" +
		strconv.FormatUint(s.ownerVersion(owner), 10) + ":" +
		strconv.Itoa(year) + "-" + strconv.Itoa(month)
}

// publishEvent notifies the broker of a transaction write. Publishing is
// best-effort; a failure is logged and never surfaced to the API caller.
func (s *Server) publishEvent(ctx context.Context, transactionID, owner int64, action string) {
	ev := events.NewTransactionEvent(transactionID, owner, action)
	if err := s.publisher.PublishTransactionEvent(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "Event publish failed",
			log.FieldError, err,
			log.FieldTransactionID, transactionID,
			log.FieldUserID, owner,
			"action", action)
	}
}

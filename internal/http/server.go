package http

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"lifeplan/internal/cache"
	"lifeplan/internal/core"
	"lifeplan/internal/log"
	"lifeplan/internal/middleware/ratelimit"
	"lifeplan/internal/middleware/security"
	"lifeplan/internal/middleware/trace"
	"lifeplan/internal/services"
	"lifeplan/internal/settings"
	appweb "lifeplan/web"
)

// Config tunes the HTTP surface.
type Config struct {
	Addr              string
	RequestsPerMinute int
	TrustedProxies    []string
	BlockSuspicious   bool
	RequestTimeout    time.Duration
}

// Dependencies are the services the handlers call into.
type Dependencies struct {
	Plans    *services.PlanService
	Sessions *services.SessionManager
	Exports  *services.ExportService
	Settings settings.Store
	// Cache is optional; its cleanup loop is stopped on shutdown.
	Cache  *cache.Manager
	Logger *log.Logger
}

type Server struct {
	http.Server
	templates *template.Template

	plans    *services.PlanService
	sessions *services.SessionManager
	exports  *services.ExportService
	settings settings.Store
	cache    *cache.Manager

	logger           *log.Logger
	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware
	requestTimeout   time.Duration
	started          time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run http.Server.
func NewServer(cfg Config, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	limitCfg := ratelimit.DefaultConfig()
	if cfg.RequestsPerMinute > 0 {
		limitCfg.RequestsPerMinute = cfg.RequestsPerMinute
	}

	s := &Server{
		plans:            deps.Plans,
		sessions:         deps.Sessions,
		exports:          deps.Exports,
		settings:         deps.Settings,
		cache:            deps.Cache,
		logger:           logger,
		securityDetector: detector,
		rateLimiter:      ratelimit.NewLimiter(limitCfg),
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, logger),
		requestTimeout:   cfg.RequestTimeout,
		started:          time.Now(),
	}
	if s.settings == nil {
		s.settings = settings.NewMemoryStore(settings.Default())
	}
	if s.exports == nil && s.plans != nil {
		s.exports = services.NewExportService(s.plans)
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", log.FieldError, err)
	} else {
		s.templates = t
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(detector.ExtractClientIP, s.onRateLimit)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = detector.Middleware(cfg.BlockSuspicious)(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /plans/{id}", s.handlePlanPage)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	api := func(pattern, component string, h http.HandlerFunc) {
		mux.Handle(pattern, security.NoStoreMiddleware(log.ComponentMiddleware(component)(s.withTimeout(h))))
	}
	api("GET /api/plans", log.ComponentPlans, s.handleListPlans)
	api("POST /api/plans", log.ComponentPlans, s.handleCreatePlan)
	api("DELETE /api/plans/{id}", log.ComponentPlans, s.handleDeletePlan)
	api("GET /api/plans/{id}/dashboard", log.ComponentPlans, s.handleDashboard)
	api("GET /api/plans/{id}/export", log.ComponentExport, s.handleExport)
	api("GET /api/overview", log.ComponentPlans, s.handleOverview)

	api("POST /api/plans/{id}/sessions", log.ComponentSessions, s.handleOpenSession)
	api("GET /api/sessions/{sid}", log.ComponentSessions, s.handleGetSession)
	api("DELETE /api/sessions/{sid}", log.ComponentSessions, s.handleCloseSession)
	api("POST /api/sessions/{sid}/select", log.ComponentSessions, s.handleSelect)
	api("POST /api/sessions/{sid}/commit", log.ComponentSessions, s.handleCommit)
	api("POST /api/sessions/{sid}/cancel", log.ComponentSessions, s.handleCancel)
	api("PUT /api/sessions/{sid}/cells", log.ComponentSessions, s.handleSetCell)
	api("POST /api/sessions/{sid}/rows", log.ComponentSessions, s.handleAddRow)
	api("DELETE /api/sessions/{sid}/rows/{category}/{row}", log.ComponentSessions, s.handleRemoveRow)
	api("PUT /api/sessions/{sid}/rows/{category}/{row}/name", log.ComponentSessions, s.handleRenameRow)
	api("POST /api/sessions/{sid}/save", log.ComponentSessions, s.handleSave)
	api("POST /api/sessions/{sid}/discard", log.ComponentSessions, s.handleDiscard)

	api("GET /api/settings", log.ComponentHTTP, s.handleGetSettings)
	api("PUT /api/settings", log.ComponentHTTP, s.handlePutSettings)
	api("POST /api/settings/theme", log.ComponentHTTP, s.handleToggleTheme)
}

// withTimeout bounds API calls so a stalled backend cannot pin a request.
func (s *Server) withTimeout(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldComponent, log.ComponentRateLimit,
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	NewResponse().
		Status(http.StatusTooManyRequests).
		Notify(NotificationWarning, "Too many changes in a short time. Please wait a moment.").
		Write(w)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		if s.cache != nil {
			s.cache.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
		if errors.Is(shutdownErr, http.ErrServerClosed) {
			shutdownErr = nil
		}
	})
	return shutdownErr
}

var templateFuncs = template.FuncMap{
	"amount": core.FormatAmount,
	"label":  func(c core.Category) string { return c.Label() },
}

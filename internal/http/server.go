package http

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"sync"
	"time"

	"milkbook/internal/cache"
	"milkbook/internal/core"
	applog "milkbook/internal/log"
	"milkbook/internal/middleware/ratelimit"
	"milkbook/internal/middleware/security"
	"milkbook/internal/middleware/trace"
	"milkbook/internal/services"
	appweb "milkbook/web"
)

// Options tunes a Server. Zero values fall back to defaults.
type Options struct {
	Logger *applog.Logger

	// Cache cleans the session cache. When nil the server runs its own
	// manager and stops it on Shutdown.
	Cache           *cache.Manager
	CleanupInterval time.Duration

	MaxSessions int
	SessionTTL  time.Duration

	// SavesPerMinute limits POST requests per client.
	SavesPerMinute int

	// DefaultPrice is offered when a request carries no price. Nil means
	// core.DefaultUnitPrice; zero is a valid price.
	DefaultPrice *core.UnitPrice
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = applog.New(applog.DefaultConfig())
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = 10 * time.Minute
	}
	if o.MaxSessions <= 0 {
		o.MaxSessions = 64
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = 12 * time.Hour
	}
	if o.SavesPerMinute <= 0 {
		o.SavesPerMinute = 60
	}
	if o.DefaultPrice == nil || o.DefaultPrice.Validate() != nil {
		price := core.UnitPrice(core.DefaultUnitPrice)
		o.DefaultPrice = &price
	}
	return o
}

type Server struct {
	http.Server
	templates *template.Template
	ledger    *services.MonthlyLedger
	logger    *applog.Logger
	price     core.UnitPrice
	now       func() time.Time
	started   time.Time

	// sessions holds one snapshot per open grid, keyed by session id.
	sessions *cache.LRUCache[*services.Session]
	saveMu   sync.Mutex

	cacheManager *cache.Manager
	ownsCache    bool
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, ledger *services.MonthlyLedger, opts Options) *Server {
	opts = opts.withDefaults()
	logger := opts.Logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		ledger:   ledger,
		logger:   logger,
		price:    *opts.DefaultPrice,
		now:      time.Now,
		sessions: cache.NewLRUCache[*services.Session](opts.MaxSessions, opts.SessionTTL),
		detector: security.NewDetector(),
	}
	s.started = s.now()

	s.cacheManager = opts.Cache
	if s.cacheManager == nil {
		s.cacheManager = cache.NewManager(logger.Logger)
		s.ownsCache = true
	}
	s.cacheManager.Register(s.sessions)
	if s.ownsCache {
		s.cacheManager.StartCleanup(opts.CleanupInterval)
	}

	s.limiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: opts.SavesPerMinute,
		CleanupInterval:   5 * time.Minute,
		Methods:           []string{http.MethodPost},
	})
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("/ui/ledger", s.handleLedger)
	mux.HandleFunc("/ledger", s.handleSaveLedger)
	mux.HandleFunc("/ui/totals", s.handleTotals)
	mux.HandleFunc("/api/ledger", s.handleAPILedger)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, nil)(handler)
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		if s.ownsCache {
			s.cacheManager.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// openSession stores a new session for sheet and returns it.
func (s *Server) openSession(sheet core.MonthSheet, price core.UnitPrice) *services.Session {
	sess := services.NewSession(sheet, price)
	s.sessions.Set(sess.ID, sess)
	return sess
}

// parsePrice reads the "price" field, falling back to the configured price.
func (s *Server) parsePrice(values url.Values) (core.UnitPrice, error) {
	return ParsePrice(values, s.price)
}

func (s *Server) session(id string) (*services.Session, bool) {
	if id == "" {
		return nil, false
	}
	return s.sessions.Get(id)
}

// render executes a template into a buffer first so a failed render never
// leaves a half-written response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any, b *HTMXResponseBuilder) {
	if s.templates == nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded", applog.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err, "template", name)
		InternalServerError("Rendering failed").Write(w)
		return
	}
	if b == nil {
		b = NewHTMXResponse()
	}
	b.BodyHTML(buf.String()).Write(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
		"requests":  s.tracer.TotalRequests(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if err := s.ledger.Ping(ctx); err != nil {
		checks["storage"] = "failed: " + err.Error()
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}

	checks["sessions"] = s.sessions.Size()

	writeJSON(w, httpStatus, map[string]any{
		"status": status,
		"checks": checks,
	})
}

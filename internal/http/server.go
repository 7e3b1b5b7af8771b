package http

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"compteur/internal/core"
	"compteur/internal/log"
	"compteur/internal/metrics"
	"compteur/internal/middleware/ratelimit"
	"compteur/internal/middleware/security"
	"compteur/internal/middleware/trace"
	appweb "compteur/web"
)

// CounterService is what the handlers need from the service layer.
type CounterService interface {
	Load(ctx context.Context) ([]core.Counter, error)
	Snapshot(ctx context.Context) (core.Snapshot, error)
	Board() core.BoardState
	Counters() []core.Counter
	Add(ctx context.Context, name string) (core.Counter, error)
	Increment(ctx context.Context, id string) (core.Counter, error)
	Decrement(ctx context.Context, id string) (core.Counter, error)
	Delete(ctx context.Context, id string) error
	Weekly(ctx context.Context) (core.WeeklySeries, error)
	Ping(ctx context.Context) error
}

// Config holds the knobs the server takes from the application config.
type Config struct {
	Addr               string
	RefreshInterval    time.Duration
	RateLimitPerMinute int
	Locale             string
	Metrics            *metrics.Metrics
	Logger             *log.Logger
}

type Server struct {
	http.Server
	templates   *template.Template
	counters    CounterService
	metrics     *metrics.Metrics
	logger      *log.Logger
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector

	refreshInterval time.Duration
	locale          string
	started         time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(cfg Config, counters CounterService) *Server {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.DefaultConfig())
	}
	if cfg.Locale == "" {
		cfg.Locale = "fr"
	}

	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		counters:        counters,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger.WithComponent(log.ComponentHTTP),
		rateLimiter:     ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		detector:        security.NewDetector(),
		refreshInterval: cfg.RefreshInterval,
		locale:          cfg.Locale,
		started:         time.Now(),
	}

	// Parse embedded templates at startup.
	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", log.FieldError, err)
	}
	s.templates = t

	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	limited := s.rateLimiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)
	mutation := func(h http.HandlerFunc) http.Handler {
		return limited(security.NoStoreMiddleware(h))
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /ui/counters", security.NoStoreMiddleware(http.HandlerFunc(s.handleCountersPartial)))
	mux.Handle("GET /ui/weekly", security.NoStoreMiddleware(http.HandlerFunc(s.handleWeeklyPartial)))

	mux.Handle("POST /counters", mutation(s.handleCreateCounter))
	mux.Handle("POST /counters/{id}/increment", mutation(s.handleIncrement))
	mux.Handle("POST /counters/{id}/decrement", mutation(s.handleDecrement))
	mux.Handle("POST /counters/{id}/delete", mutation(s.handleDelete))

	api := log.ComponentMiddleware(log.ComponentAPI)
	mux.Handle("GET /api/counters", api(http.HandlerFunc(s.handleAPICounters)))
	mux.Handle("GET /api/weekly", api(http.HandlerFunc(s.handleAPIWeekly)))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(s.detector.ExtractClientIP, s.logger, s.metrics).WithRoutes(mux)

	var h http.Handler = mux
	h = headers.Middleware(h)
	h = s.detector.Middleware(h)
	h = log.RequestIDMiddleware(trace.RequestIDFromRequest)(h)
	h = log.Middleware(s.logger)(h)
	h = tracer.Middleware(h)
	return h
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Trop de requêtes, réessayez dans un instant.").Write(w)
}

// Shutdown stops background routines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// render executes a template into a buffer so a failing template never
// leaves a half-written partial on the wire.
func (s *Server) render(ctx context.Context, name string, data any) ([]byte, bool) {
	if s.templates == nil {
		s.logger.ErrorContext(ctx, "Templates not loaded", "template", name)
		return nil, false
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.ErrorContext(ctx, "Template execution failed", "template", name, log.FieldError, err)
		return nil, false
	}
	return buf.Bytes(), true
}

package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"

	"form-intake/internal/ingest"
	"form-intake/internal/storage"
	"form-intake/internal/submission"
)

type BuildInfo struct {
	Version string
	Commit  string
}

// Submitter runs one form submission end to end.
type Submitter interface {
	Submit(ctx context.Context, form ingest.Form) (submission.Submission, error)
}

type Config struct {
	Addr  string // e.g. ":8080"
	Build BuildInfo

	Logger      *httplog.Logger
	CORSOrigins []string

	// MaxUploadBytes caps a submit request body; 0 disables the cap.
	MaxUploadBytes int64
	// SubmitRate submissions per SubmitWindow are allowed per client IP;
	// 0 disables the limit.
	SubmitRate   int
	SubmitWindow time.Duration

	StreamKeepAlive time.Duration
	StreamBuffer    int

	Submitter Submitter
	Store     submission.Store
	Hooks     *submission.Hooks
	Files     storage.Opener
	// DB is nil when submissions are kept in memory.
	DB      Database
	Metrics *Metrics
}

type Server struct {
	cfg        Config
	router     chi.Router
	httpServer *http.Server
	metrics    *Metrics
	limiter    *rateLimiter

	done      chan struct{}
	closeOnce sync.Once
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = NewLogger(LogConfig{})
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}
	if cfg.StreamKeepAlive <= 0 {
		cfg.StreamKeepAlive = 15 * time.Second
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = 64
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	s := &Server{
		cfg:     cfg,
		metrics: cfg.Metrics,
		done:    make(chan struct{}),
	}
	if cfg.SubmitRate > 0 {
		s.limiter = newRateLimiter(cfg.SubmitRate, cfg.SubmitWindow)
	}

	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.router,
		// Uploads and event streams are long-lived; only the header read
		// is bounded.
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(s.cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.middleware)
	r.Use(securityHeadersMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/health", s.HandleHealth)
	r.Get("/ready", s.HandleReady)
	r.Get("/live", s.HandleLive)
	r.Get("/metrics", s.metrics.Handler(s.cfg.Build))

	r.Route("/api", func(r chi.Router) {
		submit := r
		if s.limiter != nil {
			submit = r.With(s.limiter.middleware)
		}
		submit.Post("/submit", s.handleSubmit)
		r.Get("/submissions", s.handleListSubmissions)
		r.Get("/subscriptions/submissions", s.handleSubmissionStream)
	})

	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

// Shutdown ends open event streams first; http.Server.Shutdown would
// otherwise wait for them until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.limiter != nil {
			s.limiter.stop()
		}
	})
	return s.httpServer.Shutdown(ctx)
}

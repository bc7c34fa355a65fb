package web

import (
	"embed"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"sinulogmap/internal/auth"
	"sinulogmap/internal/config"
	"sinulogmap/internal/directions"
	"sinulogmap/internal/geo"
	"sinulogmap/internal/ics"
	appLog "sinulogmap/internal/log"
	"sinulogmap/internal/metrics"
	"sinulogmap/internal/schedule"
	"sinulogmap/internal/session"
	"sinulogmap/internal/venue"
	"sinulogmap/internal/view"
)

// SessionCookie carries the viewer session id.
const SessionCookie = "sinulog_session"

//go:embed all:static
var embeddedStatic embed.FS

//go:embed templates/index.html
var indexTemplate string

// Deps are the collaborators a Server needs.
type Deps struct {
	Config   *config.Config
	Store    *schedule.Store
	Dir      *venue.Directory
	Sessions *session.Manager
	Router   directions.Router
	Exporter *ics.Exporter
	Metrics  *metrics.Metrics
}

// Server exposes the schedule, the per-viewer map state and the calendar
// export over HTTP.
type Server struct {
	cfg      *config.Config
	store    *schedule.Store
	dir      *venue.Directory
	sessions *session.Manager
	router   directions.Router
	exporter *ics.Exporter
	metrics  *metrics.Metrics

	viewCfg  view.Config
	validate *validator.Validate
	mux      *chi.Mux
}

// NewServer constructs a new Server.
func NewServer(d Deps) *Server {
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	s := &Server{
		cfg:      d.Config,
		store:    d.Store,
		dir:      d.Dir,
		sessions: d.Sessions,
		router:   d.Router,
		exporter: d.Exporter,
		metrics:  d.Metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		mux:      chi.NewRouter(),
	}
	s.viewCfg = view.Config{
		Center:        d.Config.Map.Center,
		WideZoom:      d.Config.Map.WideZoom,
		FocusZoom:     d.Config.Map.FocusZoom,
		MapsAvailable: d.Config.MapsAPIKey != "",
		Geolocation:   geoOptions(d.Config),
	}
	s.registerRoutes()
	return s
}

func geoOptions(cfg *config.Config) geo.Options {
	return geo.Options{
		HighAccuracy: cfg.Geolocation.HighAccuracy,
		Timeout:      time.Duration(cfg.Geolocation.TimeoutMS) * time.Millisecond,
		MaximumAge:   time.Duration(cfg.Geolocation.MaximumAgeMS) * time.Millisecond,
	}
}

// Handler returns the root http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) credentials() auth.Credentials {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return auth.Credentials{}
	}
	return auth.Credentials{
		Username: s.cfg.BasicAuth.Username,
		Password: s.cfg.BasicAuth.Password,
		Hash:     s.cfg.BasicAuth.PasswordHash,
	}
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func basicAuthMiddleware(creds auth.Credentials) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}
			u, p, ok := r.BasicAuth()
			if !ok || !creds.Check(u, p) {
				if ok {
					appLog.Warn("basic auth failed", "remote", r.RemoteAddr, "user", u)
				}
				w.Header().Set("WWW-Authenticate", `Basic realm="sinulogmap", charset="UTF-8"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs one line per request through the app logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"took", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) registerRoutes() {
	s.mux.Use(middleware.RequestID)
	s.mux.Use(middleware.RealIP)
	s.mux.Use(requestLogger)
	s.mux.Use(middleware.Recoverer)
	if len(s.cfg.CORSOrigins) > 0 {
		s.mux.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if creds := s.credentials(); creds.Enabled() {
		appLog.Info("HTTP basic auth enabled", "user", creds.Username)
		s.mux.Use(basicAuthMiddleware(creds))
	}

	s.mux.Get("/health", s.handleHealth)
	s.mux.Handle("/metrics", s.metrics.Handler())
	s.mux.Get("/", s.handleIndex)
	s.mux.Handle("/static/*", s.staticFileServer())
	s.mux.Get("/calendar.ics", s.handleCalendar)

	s.mux.Route("/api", func(r chi.Router) {
		r.Get("/schedule", s.handleSchedule)
		r.Get("/venues", s.handleVenues)
		r.Get("/search", s.handleSearch)
		r.Get("/event/{ref}/ics", s.handleEventICS)

		r.Get("/view", s.handleView)
		r.Post("/date", s.handleSelectDate)
		r.Post("/query", s.handleQuery)
		r.Post("/event", s.handleSelectEvent)
		r.Post("/marker", s.handleSelectMarker)
		r.Post("/info/close", s.handleCloseInfo)
		r.Post("/location/request", s.handleLocateRequest)
		r.Post("/location", s.handleLocateResult)
		r.Post("/directions", s.handleDirections)
		r.Delete("/directions", s.handleClearDirections)

		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound, "not found")
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// staticFileServer serves the embedded page assets under /static/.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static assets not available", http.StatusServiceUnavailable)
		})
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"

	"cosmossdk.io/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/openalpha/termvault/api/eventstore"
	"github.com/openalpha/termvault/api/handlers"
	"github.com/openalpha/termvault/api/middleware"
	"github.com/openalpha/termvault/api/websocket"
	"github.com/openalpha/termvault/metrics"
)

// Server represents the API server
type Server struct {
	httpServer *http.Server
	config     *Config
	logger     log.Logger

	service *KeeperService
	hub     *websocket.Hub
	events  *eventstore.Store // nil unless EventsDSN is set

	rateLimiter *middleware.RateLimiter
	metrics     *metrics.Collector

	handler http.Handler
	cancel  context.CancelFunc
}

// NewLogger builds the server logger from the configured level and format
func NewLogger(w io.Writer, cfg *Config) (log.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	opts := []log.Option{log.LevelOption(level)}
	if cfg.LogFormat == "json" {
		opts = append(opts, log.OutputJSONOption())
	}
	return log.NewLogger(w, opts...), nil
}

// NewServer creates a new API server. The event archive is opened, and its
// migrations applied, when cfg.EventsDSN is set.
func NewServer(ctx context.Context, cfg *Config, logger log.Logger, opts ...ServiceOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	collector := metrics.GetCollector()
	s := &Server{
		config:  cfg,
		logger:  logger.With("module", "server"),
		hub:     websocket.NewHub(cfg.Hub, collector, logger),
		metrics: collector,
	}

	opts = append([]ServiceOption{WithEventSink(s.hub), WithMetrics(collector)}, opts...)
	if cfg.EventsDSN != "" {
		store, err := eventstore.Open(ctx, cfg.EventsDSN, logger)
		if err != nil {
			return nil, err
		}
		s.events = store
		opts = append(opts, WithEventSink(store))
	}

	service, err := NewKeeperService(cfg.Chain, logger, opts...)
	if err != nil {
		if s.events != nil {
			s.events.Close()
		}
		return nil, fmt.Errorf("failed to create keeper service: %w", err)
	}
	s.service = service

	if !cfg.DisableRateLimit {
		s.rateLimiter = middleware.NewRateLimiter(cfg.RateLimit, collector)
	}
	s.handler = s.buildHandler()
	return s, nil
}

// Service returns the keeper service behind the handlers
func (s *Server) Service() *KeeperService {
	return s.service
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) buildHandler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.metricsMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.hub.ServeWS)

	handlers.NewPoolHandler(s.service).RegisterRoutes(r)
	handlers.NewCustodyHandler(s.service).RegisterRoutes(r)
	handlers.NewAccountHandler(s.service, s.config.Faucet, s.config.DefaultDenom).RegisterRoutes(r)
	if s.events != nil {
		handlers.NewEventHandler(s.events).RegisterRoutes(r)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Endpoint not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// CORS -> RateLimit -> Router
	var handler http.Handler = r
	if s.rateLimiter != nil {
		handler = middleware.RateLimitMiddleware(s.rateLimiter)(handler)
	}
	return cors.New(cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         600,
	}).Handler(handler)
}

// Start serves until ctx is done or Stop is called
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(ctx)
	if s.events != nil {
		s.events.Start(ctx)
	}

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("API server starting",
		"addr", addr,
		"events_archive", s.events != nil,
		"rate_limit", s.rateLimiter != nil,
		"faucet", s.config.Faucet,
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server and its background workers
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.events != nil {
		s.events.Close()
	}
	return err
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"timestamp":      nowMillis(),
		"height":         s.service.Height(),
		"ws_clients":     s.hub.GetClientCount(),
		"events_archive": s.events != nil,
	})
}

// statusRecorder captures the status code for request metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the WebSocket upgrade take over the connection
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// metricsMiddleware records latency per route template so pool ids do not
// explode label cardinality
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.RecordAPIRequest(r.Method, route, strconv.Itoa(rec.status), timer.ElapsedMs())
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

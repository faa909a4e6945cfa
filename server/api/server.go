package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/compose-network/throne/server/api/middleware"
	"github.com/compose-network/throne/x/auth"
)

const shutdownGrace = 10 * time.Second

// Server is the HTTP API server. Components register routes on Router;
// process-wide middleware goes through Use and wraps the router from outside.
type Server struct {
	cfg Config
	log zerolog.Logger

	Router *mux.Router
	http   *http.Server
	chain  []func(http.Handler) http.Handler

	mtx      sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// NewServer builds a server. Zero timeouts and limits take their defaults.
func NewServer(cfg Config, log zerolog.Logger) *Server {
	cfg = cfg.withDefaults()

	r := mux.NewRouter()
	r.Use(middleware.CaptureRoute)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		WriteError(w, req, http.StatusNotFound, "not_found", "no route for "+req.URL.Path, nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		WriteError(w, req, http.StatusMethodNotAllowed, "method_not_allowed", req.Method+" is not allowed here", nil)
	})

	s := &Server{
		cfg:    cfg,
		log:    log.With().Str("component", "http-api").Logger(),
		Router: r,
		ready:  make(chan struct{}),
	}
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	return s
}

// Use appends mw to the chain. The first middleware added is the outermost.
func (s *Server) Use(mw func(http.Handler) http.Handler) {
	s.chain = append(s.chain, mw)

	h := http.Handler(s.Router)
	for i := len(s.chain) - 1; i >= 0; i-- {
		h = s.chain[i](h)
	}
	s.http.Handler = h
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start listens and serves until ctx is cancelled, then drains in-flight
// requests for up to shutdownGrace.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}

	s.mtx.Lock()
	s.listener = ln
	s.mtx.Unlock()
	close(s.ready)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("HTTP API shutdown did not drain cleanly")
		}
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("HTTP API server starting")
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info().Msg("HTTP API server stopped")
	return nil
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// EnableCORS allows the given origins ("*" when empty). Signed submissions
// from browsers need the signature header allowed.
func (s *Server) EnableCORS(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.Use(handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type", middleware.RequestIDHeader, auth.Header}),
		handlers.ExposedHeaders([]string{middleware.RequestIDHeader}),
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
	))
}

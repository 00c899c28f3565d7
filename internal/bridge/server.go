// Package bridge exposes the broker protocol over local HTTP so a browser
// extension or another process can act as the page side.
package bridge

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	chicors "github.com/go-chi/cors"

	"github.com/ibeckermayer/fauxpost/internal/config"
	"github.com/ibeckermayer/fauxpost/internal/logger"
)

// MessagesPath is where protocol envelopes are posted
const MessagesPath = "/v1/messages"

// maxEnvelope bounds a request body; posts are text, not media
const maxEnvelope = 1 << 20

// Dispatcher answers one raw protocol envelope
type Dispatcher interface {
	Handle(ctx context.Context, raw []byte) []byte
}

// Server is the HTTP face of the broker
type Server struct {
	dispatcher Dispatcher
	cfg        config.BridgeConfig
	router     chi.Router
	log        *logger.Logger
}

// NewServer builds the router
func NewServer(d Dispatcher, cfg config.BridgeConfig) *Server {
	s := &Server{
		dispatcher: d,
		cfg:        cfg,
		router:     chi.NewRouter(),
		log:        logger.Named("bridge"),
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s.router.Use(
		chimw.RequestID,
		s.requestLogger,
		accessLog(s.log),
		chimw.Recoverer,
		chicors.Handler(chicors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}),
		chimw.Timeout(timeout),
	)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Post(MessagesPath, s.handleMessage)

	return s
}

// Handler returns the root http.Handler
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("bridge listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, `{"status":"ok"}`)
}

// handleMessage always answers 200; failures travel inside the envelope
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelope))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	out := s.dispatcher.Handle(r.Context(), body)
	w.Header().Set("Content-Type", "application/json")
	w.Write(out)
}

// requestLogger carries chi's request id into the logger context
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithRequest(r.Context(), chimw.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/emiliopalmerini/splitlab/internal/domain"
	"github.com/emiliopalmerini/splitlab/internal/ports"
)

// AssignmentService is the engine surface the API depends on.
type AssignmentService interface {
	CreateExperiment(ctx context.Context, name string, description *string, variants []domain.Variant) (*domain.Experiment, error)
	Resolve(ctx context.Context, experimentID int64, userID string) (*domain.Assignment, error)
}

// ResultsService computes experiment summaries.
type ResultsService interface {
	Summarize(ctx context.Context, experimentID int64, eventType string, since *time.Time) (*domain.ResultsSummary, error)
}

type Server struct {
	router      *http.ServeMux
	port        int
	assignments AssignmentService
	results     ResultsService
	relay       ports.EventRelay
	tokens      map[string]struct{}
	log         zerolog.Logger
}

func NewServer(
	port int,
	assignments AssignmentService,
	results ResultsService,
	relay ports.EventRelay,
	apiTokens []string,
	log zerolog.Logger,
) *Server {
	tokens := make(map[string]struct{}, len(apiTokens))
	for _, t := range apiTokens {
		tokens[t] = struct{}{}
	}
	s := &Server{
		router:      http.NewServeMux(),
		port:        port,
		assignments: assignments,
		results:     results,
		relay:       relay,
		tokens:      tokens,
		log:         log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// API endpoints
	s.router.Handle("POST /api/experiments", s.withAuth(http.HandlerFunc(s.handleCreateExperiment)))
	s.router.Handle("GET /api/experiments/{id}/assignment/{userID}", s.withAuth(http.HandlerFunc(s.handleAssignment)))
	s.router.Handle("GET /api/experiments/{id}/results", s.withAuth(http.HandlerFunc(s.handleResults)))
	s.router.Handle("POST /api/events", s.withAuth(http.HandlerFunc(s.handleRecordEvent)))
}

// Handler returns the full middleware-wrapped handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.router)
}

func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Int("port", s.port).Msg("starting API server")

	// Handle graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		// ListenAndServe returns as soon as Shutdown starts; in-flight
		// handlers may still be using the relay and store, so wait for
		// the drain to finish before the caller tears those down.
		<-shutdownDone
		return nil
	}
	return err
}

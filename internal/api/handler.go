package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/usecase"
)

// Listings is the listing store as seen by the admin API
type Listings interface {
	Get(ctx context.Context, id string) (*domain.Listing, error)
	ListAll(ctx context.Context) ([]*domain.Listing, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Listing, error)
	Delete(ctx context.Context, userID, id string) (*domain.Listing, error)
	ClearSchedule(ctx context.Context, id string) (*domain.Listing, error)
}

// Sessions is the conversation state as seen by the admin API
type Sessions interface {
	List(ctx context.Context) ([]*domain.Session, error)
	Reset(ctx context.Context, userID string) error
}

// Sweeper runs one auto-post sweep
type Sweeper interface {
	Sweep(ctx context.Context) (*usecase.SweepReport, error)
}

// Server provides the admin HTTP API used by operators and the MCP server
type Server struct {
	listings  Listings
	publisher usecase.Publisher
	sweeper   Sweeper
	scheduler repo.Scheduler
	sessions  Sessions

	server *http.Server
	port   int
	log    zerolog.Logger
}

// NewServer creates a new API server
func NewServer(
	listings Listings,
	publisher usecase.Publisher,
	sweeper Sweeper,
	scheduler repo.Scheduler,
	sessions Sessions,
	port int,
) *Server {
	return &Server{
		listings:  listings,
		publisher: publisher,
		sweeper:   sweeper,
		scheduler: scheduler,
		sessions:  sessions,
		port:      port,
		log:       log.With().Str("component", "api").Logger(),
	}
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Route("/api", func(r chi.Router) {
		r.Route("/listings", func(r chi.Router) {
			r.Get("/", s.handleListListings)
			r.Get("/{id}", s.handleGetListing)
			r.Post("/{id}/publish", s.handlePublish)
			r.Delete("/{id}", s.handleDeleteListing)
		})
		r.Post("/sweep", s.handleSweep)
		r.Get("/jobs", s.handleListJobs)
		r.Delete("/jobs/{name}", s.handleCancelJob)
		r.Get("/sessions", s.handleListSessions)
		r.Delete("/sessions/{user_id}", s.handleResetSession)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.log.Info().Int("port", s.port).Msg("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// GetPort returns the server port
func (s *Server) GetPort() int {
	return s.port
}

func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	var (
		listings []*domain.Listing
		err      error
	)
	if owner := r.URL.Query().Get("owner"); owner != "" {
		listings, err = s.listings.ListByOwner(r.Context(), owner)
	} else {
		listings, err = s.listings.ListAll(r.Context())
	}
	if err != nil {
		s.log.Error().Err(err).Msg("list listings failed")
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if listings == nil {
		listings = []*domain.Listing{}
	}
	JSON(w, http.StatusOK, listings)
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	l, err := s.listings.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.listingError(w, err)
		return
	}
	JSON(w, http.StatusOK, l)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.publisher.Publish(r.Context(), id)
	switch {
	case usecase.IsPublishError(err):
		JSON(w, http.StatusBadGateway, res)
	case errors.Is(err, domain.ErrPublishInProgress):
		Error(w, http.StatusConflict, err.Error())
	case err != nil:
		s.listingError(w, err)
	default:
		if s.scheduler.Cancel(domain.ScheduledJobName(id)) {
			s.log.Info().Str("listing_id", id).Msg("scheduled job cancelled")
		}
		s.log.Info().Str("listing_id", id).Str("result", usecase.FormatResult(res)).Msg("publish requested")
		JSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	l, err := s.listings.Delete(r.Context(), "", chi.URLParam(r, "id"))
	if err != nil {
		s.listingError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"deleted": l.ID})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	report, err := s.sweeper.Sweep(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("sweep failed")
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, report)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, s.scheduler.Jobs())
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.scheduler.Cancel(name) {
		Error(w, http.StatusNotFound, "job not found")
		return
	}
	// A cancelled publish job hands the listing back to the auto-post sweep
	if id, ok := domain.ListingIDFromJobName(name); ok {
		if _, err := s.listings.ClearSchedule(r.Context(), id); err != nil && !errors.Is(err, domain.ErrListingNotFound) {
			s.log.Warn().Err(err).Str("listing_id", id).Msg("failed to clear schedule")
		}
	}
	JSON(w, http.StatusOK, map[string]string{"cancelled": name})
}

// sessionView is the admin rendering of a conversation
type sessionView struct {
	UserID       string    `json:"user_id"`
	Stage        string    `json:"stage"`
	Registering  bool      `json:"registering"`
	HasDraft     bool      `json:"has_draft"`
	PendingLink  string    `json:"pending_contact_listing_id,omitempty"`
	Rescheduling string    `json:"reschedule_listing_id,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list sessions failed")
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, sessionView{
			UserID:       sess.UserID,
			Stage:        sess.Stage.String(),
			Registering:  sess.Stage.IsRegistration(),
			HasDraft:     sess.Draft != nil,
			PendingLink:  sess.PendingContactListingID,
			Rescheduling: sess.RescheduleListingID,
			UpdatedAt:    sess.UpdatedAt,
		})
	}
	JSON(w, http.StatusOK, views)
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if err := s.sessions.Reset(r.Context(), userID); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("reset session failed")
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info().Str("user_id", userID).Msg("session reset")
	JSON(w, http.StatusOK, map[string]string{"reset": userID})
}

func (s *Server) listingError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrListingNotFound) {
		Error(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Error().Err(err).Msg("listing request failed")
	Error(w, http.StatusInternalServerError, err.Error())
}

// JSON writes v as a JSON response
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// Error writes an error response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

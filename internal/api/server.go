package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/speedwagon-io/soilwatch/internal/dashboard"
	"github.com/speedwagon-io/soilwatch/internal/export"
	"github.com/speedwagon-io/soilwatch/internal/lib/logger/sl"
	"github.com/speedwagon-io/soilwatch/internal/model"
)

type DashboardResponse struct {
	*model.Report
	Summary        *model.Summary       `json:"summary,omitempty"`
	CurrentDisplay model.CurrentDisplay `json:"current_display"`
}

type CurrentResponse struct {
	Current     model.Current        `json:"current"`
	Display     model.CurrentDisplay `json:"display"`
	GeneratedAt time.Time            `json:"generated_at"`
}

type Server struct {
	log      *slog.Logger
	address  string
	server   *http.Server
	state    *dashboard.State
	hub      *Hub
	limiter  *RateLimiter
	checkers []HealthChecker
	mu       sync.RWMutex
}

func NewServer(log *slog.Logger, address string, state *dashboard.State, hub *Hub) *Server {
	return &Server{
		log:      log.With(slog.String("component", "http")),
		address:  address,
		state:    state,
		hub:      hub,
		checkers: make([]HealthChecker, 0),
	}
}

func (s *Server) AddChecker(checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers = append(s.checkers, checker)
}

// LimitExports rate limits the CSV export endpoint. It must be called
// before Start.
func (s *Server) LimitExports(limiter *RateLimiter) {
	s.limiter = limiter
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/live", s.handleLive)

	r.Route("/api", func(r chi.Router) {
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/current", s.handleCurrent)
		r.With(s.exportLimit).Get("/export.csv", s.handleExport)
	})

	if s.hub != nil {
		r.Get("/ws", s.hub.ServeHTTP)
	}

	return r
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info("starting http server", slog.String("address", ln.Addr().String()))

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", sl.Err(err))
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) exportLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return s.limiter.Middleware(next)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	checkers := make([]HealthChecker, len(s.checkers))
	copy(checkers, s.checkers)
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:     StatusHealthy,
		Components: make([]ComponentHealth, 0, len(checkers)),
		Timestamp:  time.Now().UTC(),
	}

	for _, checker := range checkers {
		status, message := checker.Check(ctx)
		response.Components = append(response.Components, ComponentHealth{
			Name:    checker.Name(),
			Status:  status,
			Message: message,
		})

		if status == StatusUnhealthy {
			response.Status = StatusUnhealthy
		} else if status == StatusDegraded && response.Status == StatusHealthy {
			response.Status = StatusDegraded
		}
	}

	statusCode := http.StatusOK
	if response.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, response)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.state.Latest(); err != nil {
		http.Error(w, "NOT READY", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	report, ok := s.latest(w)
	if !ok {
		return
	}

	resp := DashboardResponse{
		Report:         report,
		CurrentDisplay: report.Current.Display(),
	}
	if report.Metrics != nil {
		summary := report.Metrics.Summary()
		resp.Summary = &summary
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	report, ok := s.latest(w)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, CurrentResponse{
		Current:     report.Current,
		Display:     report.Current.Display(),
		GeneratedAt: report.GeneratedAt,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	report, ok := s.latest(w)
	if !ok {
		return
	}

	if report.Metrics == nil {
		writeError(w, http.StatusNotFound, report.Notice)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(time.Now())))

	if err := export.WriteCSV(w, report.Metrics.Readings); err != nil {
		s.log.Error("failed to write export", sl.Err(err))
	}
}

func (s *Server) latest(w http.ResponseWriter) (*model.Report, bool) {
	report, err := s.state.Latest()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return nil, false
	}
	return report, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

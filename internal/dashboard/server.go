// Package dashboard serves a read-only JSON view of the portfolio.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/portfolio"
)

// Source is the portfolio state the dashboard reads. *portfolio.Manager satisfies it.
type Source interface {
	Positions() []*models.Position
	Position(id string) (*models.Position, bool)
	Summary() portfolio.Summary
	StatsByExitHour() []portfolio.GroupStats
	StatsByExitDay() []portfolio.GroupStats
}

// MarketClock reports whether the session is open.
type MarketClock interface {
	IsOpen(now time.Time) bool
}

type Server struct {
	router    *chi.Mux
	server    *http.Server
	source    Source
	clock     MarketClock
	logger    logrus.FieldLogger
	addr      string
	authToken string
}

type Config struct {
	Addr      string
	AuthToken string
}

type PositionView struct {
	ID             string                `json:"id"`
	TradeGroupID   string                `json:"trade_group_id"`
	Symbol         string                `json:"symbol"`
	Status         models.PositionStatus `json:"status"`
	ExitReason     models.ExitReason     `json:"exit_reason,omitempty"`
	Expiry         string                `json:"expiry"`
	SubmittedAt    time.Time             `json:"submitted_at"`
	EntryTime      *time.Time            `json:"entry_time,omitempty"`
	ExitTime       *time.Time            `json:"exit_time,omitempty"`
	Strikes        [4]float64            `json:"strikes"`
	Quantity       int                   `json:"quantity"`
	OpeningCredit  float64               `json:"opening_credit"`
	FilledLegs     int                   `json:"filled_legs"`
	RealizedPnL    float64               `json:"realized_pnl"`
	RealizedPnLPct float64               `json:"realized_pnl_pct"`
	OverallScore   float64               `json:"overall_score"`
}

type StatsView struct {
	Summary    portfolio.Summary      `json:"summary"`
	ByExitHour []portfolio.GroupStats `json:"by_exit_hour"`
	ByExitDay  []portfolio.GroupStats `json:"by_exit_day"`
	MarketOpen bool                   `json:"market_open"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// NewServer creates a dashboard over source. clock may be nil.
func NewServer(cfg Config, source Source, clock MarketClock, logger logrus.FieldLogger) *Server {
	if source == nil {
		panic("dashboard.NewServer: source must not be nil")
	}
	if logger == nil {
		logger = logrus.New().WithField("component", "dashboard")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	s := &Server{
		router:    chi.NewRouter(),
		source:    source,
		clock:     clock,
		logger:    logger,
		addr:      cfg.Addr,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/positions", s.handleGetPositions)
		r.Get("/positions/{id}", s.handleGetPosition)
		r.Get("/stats", s.handleGetStats)
	})
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start serves until Shutdown. A graceful shutdown is not an error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.WithField("addr", s.addr).Info("Starting dashboard server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	s.writeJSON(w, http.StatusOK, health)
}

// handleGetPositions lists positions, optionally filtered by ?status=opened,closed.
func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	var want map[models.PositionStatus]bool
	if raw := r.URL.Query().Get("status"); raw != "" {
		want = make(map[models.PositionStatus]bool)
		for _, st := range strings.Split(raw, ",") {
			status := models.PositionStatus(strings.TrimSpace(st))
			if !status.Valid() {
				http.Error(w, "Bad Request: unknown status "+st, http.StatusBadRequest)
				return
			}
			want[status] = true
		}
	}

	positions := s.source.Positions()
	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		if want != nil && !want[p.Status] {
			continue
		}
		views = append(views, toView(p))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	position, found := s.source.Position(id)
	if !found {
		s.logger.WithField("position_id", id).Debug("Position not found")
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, toView(position))
}

func (s *Server) handleGetStats(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	view := StatsView{
		Summary:    s.source.Summary(),
		ByExitHour: s.source.StatsByExitHour(),
		ByExitDay:  s.source.StatsByExitDay(),
		UpdatedAt:  now,
	}
	if s.clock != nil {
		view.MarketOpen = s.clock.IsOpen(now)
	}
	s.writeJSON(w, http.StatusOK, view)
}

func toView(p *models.Position) PositionView {
	v := PositionView{
		ID:             p.ID,
		TradeGroupID:   p.TradeGroupID,
		Symbol:         p.Symbol,
		Status:         p.Status,
		ExitReason:     p.ExitReason,
		SubmittedAt:    p.SubmittedAt,
		Quantity:       p.Quantity,
		RealizedPnL:    p.RealizedPnL,
		RealizedPnLPct: p.RealizedPnLPct,
	}
	if !p.Expiry.IsZero() {
		v.Expiry = p.Expiry.Format(models.ExpiryLayout)
	}
	if !p.EntryTime.IsZero() {
		t := p.EntryTime
		v.EntryTime = &t
	}
	if !p.ExitTime.IsZero() {
		t := p.ExitTime
		v.ExitTime = &t
	}
	if p.Opening != nil {
		v.Strikes = p.Opening.Strikes()
		v.FilledLegs = p.Opening.FilledCount()
	}
	v.OpeningCredit, _ = p.OpeningCredit()
	if p.Candidate != nil {
		v.OverallScore = p.Candidate.OverallScore
	}
	return v
}

// Package api exposes the monitor's operations over HTTP for the dashboard.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/stall10n/internal/metrics"
	"github.com/yourusername/stall10n/internal/models"
	"github.com/yourusername/stall10n/internal/service"
)

// Monitor is the set of operations the API serves
type Monitor interface {
	EnableMonitoring(ctx context.Context, raceID uuid.UUID, externalID string, postTime time.Time) (bool, error)
	DisableMonitoring(ctx context.Context, raceID uuid.UUID) error
	History(ctx context.Context, raceID uuid.UUID) (*service.RaceHistory, error)
	Recommendations(ctx context.Context, raceID uuid.UUID) ([]*models.ProbabilityResult, error)
	RecommendationHistory(ctx context.Context, raceID uuid.UUID) ([]*models.ProbabilityResult, error)
	LiveOdds(ctx context.Context, raceID uuid.UUID) (*service.LiveOdds, error)
	Status(ctx context.Context) (*service.MonitorStatus, error)
}

// Config configures the API server
type Config struct {
	Port           int
	AllowedOrigins []string
	MetricsPath    string
}

// Server serves the REST and stream endpoints
type Server struct {
	cfg        Config
	monitor    Monitor
	hub        *Hub
	upgrader   websocket.Upgrader
	logger     logrus.FieldLogger
	httpServer *http.Server
}

// NewServer creates an API server
func NewServer(cfg Config, monitor Monitor, hub *Hub, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	s := &Server{
		cfg:     cfg,
		monitor: monitor,
		hub:     hub,
		logger:  logger.WithField("component", "api"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Router builds the HTTP handler with CORS applied
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/races/{id}/odds", s.handleOdds).Methods(http.MethodGet)
	api.HandleFunc("/races/{id}/live-odds", s.handleLiveOdds).Methods(http.MethodGet)
	api.HandleFunc("/races/{id}/recommendations", s.handleRecommendations).Methods(http.MethodGet)
	api.HandleFunc("/races/{id}/monitor", s.handleEnable).Methods(http.MethodPost)
	api.HandleFunc("/races/{id}/monitor", s.handleDisable).Methods(http.MethodDelete)
	api.HandleFunc("/races/{id}/stream", s.handleStream).Methods(http.MethodGet)

	if s.cfg.MetricsPath != "" {
		router.Handle(s.cfg.MetricsPath, metrics.Handler())
	}

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(router)
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Error("API server shutdown error")
		}
	}()

	s.logger.WithField("port", s.cfg.Port).Info("API server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

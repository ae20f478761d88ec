package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/stall10n/internal/models"
	"github.com/yourusername/stall10n/internal/oddsfeed"
	"github.com/yourusername/stall10n/internal/service"
)

// EnableRequest is the body of POST /api/races/{id}/monitor
type EnableRequest struct {
	ExternalID string    `json:"external_id"`
	PostTime   time.Time `json:"post_time"`
}

// EnableResponse reports whether the request changed anything
type EnableResponse struct {
	RaceID  uuid.UUID `json:"race_id"`
	Changed bool      `json:"changed"`
}

type errorResponse struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes; anything unexpected is
// logged and reported generically so provider details never reach clients.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request", Problems: verr.Problems})
	case errors.Is(err, models.ErrInvalidID):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid race id"})
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "race not found"})
	case errors.Is(err, models.ErrRaceClosed):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "race is closed"})
	case errors.Is(err, oddsfeed.ErrQuotaExceeded), errors.Is(err, oddsfeed.ErrProviderUnavailable):
		s.logger.WithError(err).WithField("path", r.URL.Path).Warn("Odds provider unavailable")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "odds provider unavailable"})
	default:
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func raceID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, models.ErrInvalidID
	}
	return id, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.monitor.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleOdds(w http.ResponseWriter, r *http.Request) {
	id, err := raceID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	history, err := s.monitor.History(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleLiveOdds(w http.ResponseWriter, r *http.Request) {
	id, err := raceID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	live, err := s.monitor.LiveOdds(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, live)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	id, err := raceID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var results []*models.ProbabilityResult
	if r.URL.Query().Get("all") == "true" {
		results, err = s.monitor.RecommendationHistory(r.Context(), id)
	} else {
		results, err = s.monitor.Recommendations(r.Context(), id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	id, err := raceID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req EnableRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	changed, err := s.monitor.EnableMonitoring(r.Context(), id, req.ExternalID, req.PostTime)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EnableResponse{RaceID: id, Changed: changed})
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	id, err := raceID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.monitor.DisableMonitoring(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, err := raceID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "streaming disabled"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}

	c := &client{hub: s.hub, conn: conn, raceID: id, send: make(chan []byte, sendBufferSize)}
	if !s.hub.add(c) {
		_ = conn.Close()
		return
	}
	s.logger.WithFields(logrus.Fields{
		"race_id":     id,
		"subscribers": s.hub.Subscribers(),
	}).Debug("Stream subscriber connected")
	go c.writePump()
	go c.readPump()
}

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/daily-missions/internal/missions"
	"github.com/terra-clan/daily-missions/internal/models"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondMissionError maps service errors onto HTTP statuses
func respondMissionError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, missions.ErrInvalidPlayer),
		errors.Is(err, missions.ErrInvalidSlot),
		errors.Is(err, missions.ErrInvalidAmount),
		errors.Is(err, missions.ErrInvalidLevel),
		errors.Is(err, missions.ErrUnknownMissionType):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, missions.ErrSlotVacant):
		respondError(w, http.StatusNotFound, "slot_vacant", err.Error())
	case errors.Is(err, missions.ErrMissionIncomplete):
		respondError(w, http.StatusConflict, "mission_incomplete", err.Error())
	case errors.Is(err, missions.ErrAlreadyClaimed):
		respondError(w, http.StatusConflict, "already_claimed", err.Error())
	default:
		slog.Error("failed to "+action,
			"error", err,
			"player_id", chi.URLParam(r, "playerID"),
			"request_id", requestID(r),
		)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

func newMissionsView(snap *missions.Snapshot) models.MissionsView {
	view := models.MissionsView{
		PlayerID:        snap.State.PlayerID,
		Level:           snap.Level,
		Missions:        make([]models.MissionView, 0, models.SlotCount),
		NextReset:       snap.State.NextReset,
		TimeLeftSeconds: int64(snap.TimeLeft / time.Second),
		TimeLeft:        missions.FormatTimeLeft(snap.TimeLeft),
		Warnings:        snap.Warnings,
	}
	for i, m := range snap.State.Slots {
		view.Missions = append(view.Missions, models.NewMissionView(i, m))
	}
	return view
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.missions.Ping(r.Context()); err != nil {
		slog.Warn("readiness check failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Definition handlers

func (s *Server) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs := s.definitions.List()

	if raw := r.URL.Query().Get("difficulty"); raw != "" {
		d, err := models.ParseDifficulty(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		defs = s.definitions.ByDifficulty(d)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"definitions": defs,
		"total":       len(defs),
	})
}

func (s *Server) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	def := s.definitions.Get(id)
	if def == nil {
		respondError(w, http.StatusNotFound, "not_found", "definition not found")
		return
	}

	respondJSON(w, http.StatusOK, def)
}

// Mission handlers

func (s *Server) handleGetMissions(w http.ResponseWriter, r *http.Request) {
	snap, err := s.missions.Missions(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		respondMissionError(w, r, err, "load missions")
		return
	}

	respondJSON(w, http.StatusOK, newMissionsView(snap))
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	var req models.ProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.Type == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "type is required")
		return
	}

	amount := 1
	if req.Amount != nil {
		amount = *req.Amount
	}

	res, err := s.missions.Progress(r.Context(), chi.URLParam(r, "playerID"), req.Type, amount)
	if err != nil {
		respondMissionError(w, r, err, "record progress")
		return
	}

	changed := res.Changed
	if changed == nil {
		changed = []int{}
	}

	respondJSON(w, http.StatusOK, models.ProgressView{
		MissionsView: newMissionsView(res.Snapshot),
		Changed:      changed,
	})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "slot must be a number")
		return
	}

	res, err := s.missions.Claim(r.Context(), chi.URLParam(r, "playerID"), slot)
	if err != nil {
		respondMissionError(w, r, err, "claim mission")
		return
	}

	respondJSON(w, http.StatusOK, models.ClaimView{
		Slot:     res.Slot,
		Reward:   res.Reward,
		Missions: newMissionsView(res.Snapshot),
	})
}

func (s *Server) handleSetLevel(w http.ResponseWriter, r *http.Request) {
	var req models.LevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.Level == nil {
		respondError(w, http.StatusBadRequest, "validation_error", "level is required")
		return
	}

	playerID := chi.URLParam(r, "playerID")
	if err := s.missions.SetLevel(r.Context(), playerID, *req.Level); err != nil {
		respondMissionError(w, r, err, "set level")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"player_id": playerID,
		"level":     *req.Level,
	})
}

func (s *Server) handleReassign(w http.ResponseWriter, r *http.Request) {
	snap, err := s.missions.Reassign(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		respondMissionError(w, r, err, "reassign missions")
		return
	}

	respondJSON(w, http.StatusOK, newMissionsView(snap))
}

func (s *Server) handleClearMissions(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if err := s.missions.Clear(r.Context(), playerID); err != nil {
		respondMissionError(w, r, err, "clear missions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"player_id": playerID,
		"cleared":   true,
	})
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/spotbot/internal/auth"
	"github.com/spotbot/internal/domain"
)

// SpotRequest is the body of POST /spots. The scorer defaults to the
// calling actor.
type SpotRequest struct {
	ScopeID  string   `json:"scope_id"`
	ScorerID string   `json:"scorer_id"`
	Targets  []string `json:"targets"`
	EventKey string   `json:"event_key"`
	ImageRef string   `json:"image_ref"`
}

// SubmitSpot records a spot of one or more players
func (h *Handler) SubmitSpot(w http.ResponseWriter, r *http.Request) {
	var req SpotRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ScorerID == "" {
		req.ScorerID = auth.ActorFrom(r.Context())
	}

	result, err := h.engine.Spot(r.Context(), domain.SpotEvent{
		ScopeID:  req.ScopeID,
		ScorerID: req.ScorerID,
		Targets:  req.Targets,
		EventKey: req.EventKey,
		ImageRef: req.ImageRef,
	})
	if err != nil {
		h.writeDomainError(w, "submit spot", err)
		return
	}
	h.writeSuccess(w, result)
}

// RetractEvent deletes every record of an event
func (h *Handler) RetractEvent(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.Retract(r.Context(), chi.URLParam(r, "eventKey"))
	if err != nil {
		h.writeDomainError(w, "retract event", err)
		return
	}
	h.writeSuccess(w, map[string]int64{"removed": n})
}

// InvalidateEvent drops an event from every aggregation
func (h *Handler) InvalidateEvent(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.Invalidate(r.Context(), chi.URLParam(r, "eventKey"))
	if err != nil {
		h.writeDomainError(w, "invalidate event", err)
		return
	}
	h.writeSuccess(w, map[string]int64{"invalidated": n})
}

// GetLeaderboard returns ?board=scorer|scored_of, current season unless
// ?all_time=true
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	board := domain.BoardKind(q.Get("board"))
	if board == "" {
		board = domain.BoardSpotters
	}
	allTime := q.Get("all_time") == "true"

	entries, err := h.engine.Leaderboard(r.Context(), chi.URLParam(r, "scopeID"), board, intQuery(r, "limit", 0), allTime)
	if err != nil {
		h.writeDomainError(w, "get leaderboard", err)
		return
	}
	h.writeSuccess(w, entries)
}

// GetPlayerStats returns a player's all-time totals
func (h *Handler) GetPlayerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.PlayerStats(r.Context(), chi.URLParam(r, "scopeID"), chi.URLParam(r, "playerID"))
	if err != nil {
		h.writeDomainError(w, "get player stats", err)
		return
	}
	h.writeSuccess(w, stats)
}

// GetSeason describes the running season
func (h *Handler) GetSeason(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.engine.Season(chi.URLParam(r, "scopeID")))
}

// ResetSeason floors the scope's current-season board at now
func (h *Handler) ResetSeason(w http.ResponseWriter, r *http.Request) {
	at, err := h.engine.ResetSeason(r.Context(), chi.URLParam(r, "scopeID"))
	if err != nil {
		h.writeDomainError(w, "reset season", err)
		return
	}
	h.writeSuccess(w, map[string]any{"reset_at": at})
}

// GetBonus returns today's bonus pair
func (h *Handler) GetBonus(w http.ResponseWriter, r *http.Request) {
	a, ok := h.engine.Bonus(chi.URLParam(r, "scopeID"))
	if !ok {
		h.writeError(w, http.StatusNotFound, domain.ErrNotFound)
		return
	}
	h.writeSuccess(w, a)
}

// TriggerRollover runs the season rollover now
func (h *Handler) TriggerRollover(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Rollover(r.Context())
	if err != nil {
		h.writeDomainError(w, "rollover", err)
		return
	}
	h.writeSuccess(w, report)
}

// TriggerBonuses redraws every scope's bonus pair now
func (h *Handler) TriggerBonuses(w http.ResponseWriter, r *http.Request) {
	drawn, err := h.engine.RegenerateBonuses(r.Context())
	if err != nil {
		h.writeDomainError(w, "regenerate bonuses", err)
		return
	}
	if drawn == nil {
		drawn = []domain.BonusAssignment{}
	}
	h.writeSuccess(w, drawn)
}

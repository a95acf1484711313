package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/spotbot/internal/auth"
	"github.com/spotbot/internal/domain"
)

// StartRingRequest lists the players of a new game
type StartRingRequest struct {
	Players []string `json:"players"`
}

// EliminateRequest is a kill claim made by the calling actor
type EliminateRequest struct {
	VictimID    string `json:"victim_id"`
	EvidenceRef string `json:"evidence_ref"`
}

// StartRing starts an elimination game
func (h *Handler) StartRing(w http.ResponseWriter, r *http.Request) {
	var req StartRingRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	players, err := h.engine.StartRing(r.Context(), chi.URLParam(r, "scopeID"), req.Players)
	if err != nil {
		h.writeDomainError(w, "start ring", err)
		return
	}
	// Targets stay private; only the roster is returned.
	roster := make([]string, len(players))
	for i, p := range players {
		roster[i] = p.PlayerID
	}
	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    map[string]any{"players": roster},
	})
}

// AbortRing cancels the running game
func (h *Handler) AbortRing(w http.ResponseWriter, r *http.Request) {
	running, err := h.engine.AbortRing(r.Context(), chi.URLParam(r, "scopeID"))
	if err != nil {
		h.writeDomainError(w, "abort ring", err)
		return
	}
	h.writeSuccess(w, map[string]bool{"aborted": running})
}

// Eliminate applies the actor's kill claim
func (h *Handler) Eliminate(w http.ResponseWriter, r *http.Request) {
	var req EliminateRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	killer := auth.ActorFrom(r.Context())
	if killer == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	outcome, err := h.engine.Eliminate(r.Context(), domain.EliminationClaim{
		ScopeID:     chi.URLParam(r, "scopeID"),
		KillerID:    killer,
		VictimID:    req.VictimID,
		EvidenceRef: req.EvidenceRef,
	})
	if err != nil {
		h.writeDomainError(w, "eliminate", err)
		return
	}
	h.writeSuccess(w, outcome)
}

// GetTarget returns the calling actor's current target
func (h *Handler) GetTarget(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	if actor == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	target, err := h.engine.CurrentTarget(r.Context(), chi.URLParam(r, "scopeID"), actor)
	if err != nil {
		h.writeDomainError(w, "get target", err)
		return
	}
	h.writeSuccess(w, map[string]string{"target_id": target})
}

// ListRingPlayers returns the active roster without targets
func (h *Handler) ListRingPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := h.engine.RingPlayers(r.Context(), chi.URLParam(r, "scopeID"))
	if err != nil {
		h.writeDomainError(w, "list ring players", err)
		return
	}
	type publicPlayer struct {
		PlayerID  string `json:"player_id"`
		KillCount int    `json:"kill_count"`
	}
	out := make([]publicPlayer, len(players))
	for i, p := range players {
		out[i] = publicPlayer{PlayerID: p.PlayerID, KillCount: p.KillCount}
	}
	h.writeSuccess(w, out)
}

// ListEliminations returns the elimination log, newest first
func (h *Handler) ListEliminations(w http.ResponseWriter, r *http.Request) {
	events, err := h.engine.Eliminations(r.Context(), chi.URLParam(r, "scopeID"))
	if err != nil {
		h.writeDomainError(w, "list eliminations", err)
		return
	}
	h.writeSuccess(w, events)
}

// GetTopKills ranks the running game's players by kills
func (h *Handler) GetTopKills(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.TopKills(r.Context(), chi.URLParam(r, "scopeID"), intQuery(r, "limit", 10))
	if err != nil {
		h.writeDomainError(w, "top kills", err)
		return
	}
	h.writeSuccess(w, entries)
}

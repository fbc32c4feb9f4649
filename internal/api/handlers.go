package api

import (
	"encoding/json"
	"net/http"

	"gunfight/internal/game"
	"gunfight/internal/game/geom"
)

// Policy rejections travel as structured results with HTTP 200: the
// request was understood and answered, the action was just not allowed.
// HTTP error codes are reserved for malformed requests and capacity.

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Snapshot())
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	journal := h.engine.Journal()
	writeJSON(w, map[string]interface{}{
		"playerCount":    h.engine.PlayerCount(),
		"journalTotal":   journal.GetTotalCount(),
		"journalDropped": journal.GetDroppedCount(),
		"journalPending": journal.Pending(),
		"gateBuckets":    h.engine.Gate().BucketCount(),
	})
}

func (h *routerHandlers) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries := h.engine.Leaderboard()
	if len(entries) > 10 {
		entries = entries[:10]
	}
	writeJSON(w, entries)
}

func (h *routerHandlers) handleGetWeapons(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Catalog().All())
}

func (h *routerHandlers) handleGetWeaponsReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Catalog().Report())
}

func (h *routerHandlers) handlePlayerJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"playerId"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PlayerID == "" {
		writeError(w, "playerId is required", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		req.Name = req.PlayerID
	}

	result := h.engine.Join(req.PlayerID, req.Name)
	if !result.Success && result.Reason == game.ReasonMatchFull {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(result)
		return
	}
	writeJSON(w, result)
}

func (h *routerHandlers) handlePlayerLeave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"playerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		writeError(w, "playerId is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, h.engine.Leave(req.PlayerID))
}

func (h *routerHandlers) handlePlayerMove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string    `json:"playerId"`
		Position geom.Vec3 `json:"position"`
		Velocity geom.Vec3 `json:"velocity"`
		Facing   geom.Vec3 `json:"facing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		writeError(w, "playerId is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, h.engine.Move(req.PlayerID, req.Position, req.Velocity, req.Facing))
}

func (h *routerHandlers) handlePlayerLatency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string  `json:"playerId"`
		RTTMs    float64 `json:"rttMs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		writeError(w, "playerId is required", http.StatusBadRequest)
		return
	}
	if req.RTTMs < 0 {
		writeError(w, "rttMs must be non-negative", http.StatusBadRequest)
		return
	}
	writeJSON(w, h.engine.ReportLatency(req.PlayerID, req.RTTMs))
}

func (h *routerHandlers) handleFire(w http.ResponseWriter, r *http.Request) {
	var req game.FireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PlayerID == "" || req.WeaponID == "" {
		writeError(w, "playerId and weaponId are required", http.StatusBadRequest)
		return
	}

	result := h.engine.Fire(req)
	if !result.Success {
		RecordShotRejected(result.Reason)
	}
	writeJSON(w, result)
}

func (h *routerHandlers) handleReload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"playerId"`
		WeaponID string `json:"weaponId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" || req.WeaponID == "" {
		writeError(w, "playerId and weaponId are required", http.StatusBadRequest)
		return
	}
	writeJSON(w, h.engine.Reload(req.PlayerID, req.WeaponID))
}

func (h *routerHandlers) handleEquip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string          `json:"playerId"`
		WeaponID string          `json:"weaponId"`
		Slot     game.WeaponSlot `json:"slot"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" || req.WeaponID == "" {
		writeError(w, "playerId and weaponId are required", http.StatusBadRequest)
		return
	}
	writeJSON(w, h.engine.Equip(req.PlayerID, req.WeaponID, req.Slot))
}

func (h *routerHandlers) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string          `json:"playerId"`
		Slot     game.WeaponSlot `json:"slot"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		writeError(w, "playerId is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, h.engine.SwitchSlot(req.PlayerID, req.Slot))
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/gray-logic-etrv/internal/etrv"
)

const commandSource = "api"

// setpointRequest is the body of PUT /setpoint.
type setpointRequest struct {
	Value *float64 `json:"value"`
}

// profileRequest is the body of PUT /profile. Level is the selector level:
// 10, 20 or 30.
type profileRequest struct {
	Level *float64 `json:"level"`
}

// commandResponse acknowledges an armed write. The appliance confirms it
// later; GET /state shows the mirrored value once it does.
type commandResponse struct {
	Status string `json:"status"`
	Task   string `json:"task"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	components := make(map[string]string, len(s.checks)+1)

	snap, err := s.session.Snapshot(r.Context())
	if err != nil {
		status = "degraded"
		components["session"] = err.Error()
	} else {
		components["session"] = snap.Connection
	}

	for name, check := range s.checks {
		if err := check.HealthCheck(r.Context()); err != nil {
			status = "degraded"
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	code := http.StatusOK
	if err != nil {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Snapshot(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Refresh(r.Context()); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, commandResponse{Status: "accepted", Task: etrv.FetchAll{}.String()})
}

func (s *Server) handleSetSetpoint(w http.ResponseWriter, r *http.Request) {
	var req setpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}

	if err := s.session.SetSetpoint(r.Context(), *req.Value, commandSource); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, commandResponse{
		Status: "accepted",
		Task:   etrv.WriteSetpoint{Value: *req.Value}.String(),
	})
}

func (s *Server) handleSetProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Level == nil {
		writeBadRequest(w, "level is required")
		return
	}

	if err := s.session.SetProfileLevel(r.Context(), *req.Level, commandSource); err != nil {
		writeSessionError(w, err)
		return
	}
	profile, _ := etrv.ProfileForLevel(*req.Level)
	writeJSON(w, http.StatusAccepted, commandResponse{
		Status: "accepted",
		Task:   etrv.WriteProfile{Profile: profile}.String(),
	})
}

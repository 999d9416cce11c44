package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/core"
)

type triggerPreviewRequest struct {
	Trigger *triggerPayload `json:"trigger"`
	Now     string          `json:"now,omitempty"`
	Count   int             `json:"count,omitempty"`
}

type triggerPreviewResponse struct {
	Valid     bool     `json:"valid"`
	Summary   string   `json:"summary,omitempty"`
	NextTimes []string `json:"next_times,omitempty"`
	Message   string   `json:"message,omitempty"`
}

func (s *Server) handleTriggerPreview(w http.ResponseWriter, r *http.Request) {
	var req triggerPreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, triggerPreviewResponse{Valid: false, Message: "invalid JSON payload"})
		return
	}
	if req.Trigger == nil {
		writeJSON(w, http.StatusBadRequest, triggerPreviewResponse{Valid: false, Message: "trigger is required"})
		return
	}
	trigger, err := req.Trigger.toTrigger()
	if err != nil {
		writeJSON(w, http.StatusOK, triggerPreviewResponse{Valid: false, Message: err.Error()})
		return
	}
	if err := trigger.Validate(); err != nil {
		writeJSON(w, http.StatusOK, triggerPreviewResponse{Valid: false, Message: err.Error()})
		return
	}

	count := req.Count
	if count <= 0 || count > 10 {
		count = 5
	}

	base := time.Now().In(s.location)
	if req.Now != "" {
		if parsed, err := time.Parse(time.RFC3339, req.Now); err == nil {
			base = parsed.In(s.location)
		}
	}

	times, err := core.NextOccurrences(trigger, base, count)
	if err != nil {
		writeJSON(w, http.StatusOK, triggerPreviewResponse{Valid: false, Message: err.Error()})
		return
	}
	formatted := make([]string, 0, len(times))
	for _, t := range times {
		formatted = append(formatted, t.In(s.location).Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, triggerPreviewResponse{
		Valid:     true,
		Summary:   trigger.Describe(),
		NextTimes: formatted,
	})
}

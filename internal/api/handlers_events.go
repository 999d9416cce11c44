package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type eventResponse struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	TaskName  string `json:"task_name"`
	Type      string `json:"type"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(r.URL.Query().Get("task_id"))
	limit := parseIntDefault(r.URL.Query().Get("limit"), 100)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

	events, err := s.store.ListEvents(r.Context(), taskID, limit, offset)
	if err != nil {
		s.logger.Error("list events", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list events")
		return
	}
	res := make([]eventResponse, 0, len(events))
	for _, e := range events {
		res = append(res, eventResponse{
			ID:        e.ID,
			TaskID:    e.TaskID,
			TaskName:  e.TaskName,
			Type:      string(e.Type),
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.In(s.location).Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, res)
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func (s *Server) handleClearEvents(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearEvents(r.Context()); err != nil {
		s.logger.Error("clear events", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to clear events")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type iconResponse struct {
	ExePath     string `json:"exe_path"`
	ProcessName string `json:"process_name"`
	FirstSeenAt string `json:"first_seen_at"`
}

func (s *Server) handleListIcons(w http.ResponseWriter, r *http.Request) {
	icons, err := s.store.ListIcons(r.Context())
	if err != nil {
		s.logger.Error("list icons", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list icons")
		return
	}
	res := make([]iconResponse, 0, len(icons))
	for _, icon := range icons {
		res = append(res, iconResponse{
			ExePath:     icon.ExePath,
			ProcessName: icon.ProcessName,
			FirstSeenAt: icon.FirstSeenAt.In(s.location).Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, res)
}

// handleChangeStream streams task state changes as server-sent events so the
// countdown view can refresh without polling.
func (s *Server) handleChangeStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	changes, cancel := s.hub.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case change, ok := <-changes:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: task\ndata: {\"task_id\":%q,\"name\":%q,\"state\":%q,\"at\":%q}\n\n",
				change.Task.ID, change.Task.Name, change.State,
				change.At.In(s.location).Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/core"
)

type triggerPayload struct {
	Kind    string  `json:"kind"`
	At      *string `json:"at,omitempty"`
	Minute  *int    `json:"minute,omitempty"`
	Hour    *int    `json:"hour,omitempty"`
	Weekday *int    `json:"weekday,omitempty"`
}

type createTaskRequest struct {
	Name            string          `json:"name"`
	Target          string          `json:"target"`
	Trigger         *triggerPayload `json:"trigger"`
	Enabled         *bool           `json:"enabled,omitempty"`
	Paused          bool            `json:"paused"`
	Aggressive      bool            `json:"aggressive"`
	WakeLeadMinutes int             `json:"wake_lead_minutes"`
	SleepAfter      bool            `json:"sleep_after"`
}

type updateTaskRequest struct {
	Name            *string         `json:"name"`
	Target          *string         `json:"target"`
	Trigger         *triggerPayload `json:"trigger"`
	Enabled         *bool           `json:"enabled"`
	Paused          *bool           `json:"paused"`
	Aggressive      *bool           `json:"aggressive"`
	WakeLeadMinutes *int            `json:"wake_lead_minutes"`
	SleepAfter      *bool           `json:"sleep_after"`
}

type taskResponse struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Target          string         `json:"target"`
	Trigger         triggerPayload `json:"trigger"`
	TriggerSummary  string         `json:"trigger_summary"`
	Enabled         bool           `json:"enabled"`
	Paused          bool           `json:"paused"`
	Aggressive      bool           `json:"aggressive"`
	WakeLeadMinutes int            `json:"wake_lead_minutes"`
	SleepAfter      bool           `json:"sleep_after"`
	Running         bool           `json:"running"`
	LastRunAt       *string        `json:"last_run_at,omitempty"`
	NextRunAt       *string        `json:"next_run_at,omitempty"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
}

func (p *triggerPayload) toTrigger() (core.Trigger, error) {
	trigger := core.Trigger{Kind: core.TriggerKind(strings.TrimSpace(p.Kind))}
	if p.At != nil {
		at, err := time.Parse(time.RFC3339, *p.At)
		if err != nil {
			return core.Trigger{}, errors.New("at must be an RFC3339 timestamp")
		}
		trigger.At = &at
	}
	if p.Minute != nil {
		trigger.Minute = *p.Minute
	}
	if p.Hour != nil {
		trigger.Hour = *p.Hour
	}
	if p.Weekday != nil {
		trigger.Weekday = time.Weekday(*p.Weekday)
	}
	return trigger, nil
}

func triggerToPayload(t core.Trigger) triggerPayload {
	p := triggerPayload{Kind: string(t.Kind)}
	switch t.Kind {
	case core.TriggerOnce:
		if t.At != nil {
			formatted := t.At.Format(time.RFC3339)
			p.At = &formatted
		}
	case core.TriggerHourly:
		minute := t.Minute
		p.Minute = &minute
	case core.TriggerDaily:
		minute, hour := t.Minute, t.Hour
		p.Minute, p.Hour = &minute, &hour
	case core.TriggerWeekly:
		minute, hour, weekday := t.Minute, t.Hour, int(t.Weekday)
		p.Minute, p.Hour, p.Weekday = &minute, &hour, &weekday
	}
	return p
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if req.Trigger == nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "trigger is required")
		return
	}
	trigger, err := req.Trigger.toTrigger()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	task := &core.Task{
		Name:       strings.TrimSpace(req.Name),
		Target:     strings.TrimSpace(req.Target),
		Trigger:    trigger,
		Enabled:    enabled,
		Paused:     req.Paused,
		Aggressive: req.Aggressive,
		Wake:       core.WakePolicy{LeadMinutes: req.WakeLeadMinutes},
		SleepAfter: req.SleepAfter,
	}

	if err := s.engine.AddTask(r.Context(), task); err != nil {
		s.writeEngineError(w, "create task", task.ID, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.taskToResponse(task))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := s.engine.ListTasks()
	res := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, s.taskToResponse(t))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.engine.GetTask(taskID)
	if err != nil {
		s.writeEngineError(w, "get task", taskID, err)
		return
	}
	writeJSON(w, http.StatusOK, s.taskToResponse(task))
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.engine.GetTask(taskID)
	if err != nil {
		s.writeEngineError(w, "get task for update", taskID, err)
		return
	}

	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	if req.Name != nil {
		task.Name = strings.TrimSpace(*req.Name)
	}
	if req.Target != nil {
		task.Target = strings.TrimSpace(*req.Target)
	}
	if req.Trigger != nil {
		trigger, err := req.Trigger.toTrigger()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		task.Trigger = trigger
	}
	if req.Enabled != nil {
		task.Enabled = *req.Enabled
	}
	if req.Paused != nil {
		task.Paused = *req.Paused
	}
	if req.Aggressive != nil {
		task.Aggressive = *req.Aggressive
	}
	if req.WakeLeadMinutes != nil {
		task.Wake.LeadMinutes = *req.WakeLeadMinutes
	}
	if req.SleepAfter != nil {
		task.SleepAfter = *req.SleepAfter
	}

	if err := s.engine.UpdateTask(r.Context(), task); err != nil {
		s.writeEngineError(w, "update task", taskID, err)
		return
	}
	writeJSON(w, http.StatusOK, s.taskToResponse(task))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.engine.DeleteTask(r.Context(), taskID); err != nil {
		s.writeEngineError(w, "delete task", taskID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePauseTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.engine.PauseTask(r.Context(), taskID); err != nil {
		s.writeEngineError(w, "pause task", taskID, err)
		return
	}
	task, err := s.engine.GetTask(taskID)
	if err != nil {
		s.writeEngineError(w, "get task after pause", taskID, err)
		return
	}
	writeJSON(w, http.StatusOK, s.taskToResponse(task))
}

func (s *Server) handleResumeTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.engine.ResumeTask(r.Context(), taskID); err != nil {
		s.writeEngineError(w, "resume task", taskID, err)
		return
	}
	task, err := s.engine.GetTask(taskID)
	if err != nil {
		s.writeEngineError(w, "get task after resume", taskID, err)
		return
	}
	writeJSON(w, http.StatusOK, s.taskToResponse(task))
}

func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	run, err := s.engine.RunNow(r.Context(), taskID)
	if err != nil {
		s.writeEngineError(w, "run task now", taskID, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID})
}

func (s *Server) writeEngineError(w http.ResponseWriter, op, taskID string, err error) {
	switch {
	case errors.Is(err, core.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "not_found", "task not found")
	case errors.Is(err, core.ErrInvalidTask):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, core.ErrTaskRunning):
		writeError(w, http.StatusConflict, "conflict", "task is already running")
	default:
		s.logger.Error(op, "task_id", taskID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "operation failed")
	}
}

func (s *Server) taskToResponse(task *core.Task) taskResponse {
	var last, next *string
	if task.LastRunAt != nil {
		formatted := task.LastRunAt.In(s.location).Format(time.RFC3339)
		last = &formatted
	}
	if task.NextRunAt != nil {
		formatted := task.NextRunAt.In(s.location).Format(time.RFC3339)
		next = &formatted
	}
	return taskResponse{
		ID:              task.ID,
		Name:            task.Name,
		Target:          task.Target,
		Trigger:         triggerToPayload(task.Trigger),
		TriggerSummary:  task.Trigger.Describe(),
		Enabled:         task.Enabled,
		Paused:          task.Paused,
		Aggressive:      task.Aggressive,
		WakeLeadMinutes: task.Wake.LeadMinutes,
		SleepAfter:      task.SleepAfter,
		Running:         s.engine.Running(task.ID),
		LastRunAt:       last,
		NextRunAt:       next,
		CreatedAt:       task.CreatedAt.In(s.location).Format(time.RFC3339),
		UpdatedAt:       task.UpdatedAt.In(s.location).Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}

// Package api provides HTTP handlers for radbot endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/perrymanuk/radbot-sub001/internal/models"
	"github.com/perrymanuk/radbot-sub001/internal/scheduler"
)

type createReminderRequest struct {
	OwnerID string    `json:"owner_id"`
	Message string    `json:"message"`
	FireAt  time.Time `json:"fire_at"`
}

type createTaskRequest struct {
	OwnerID  string `json:"owner_id"`
	Name     string `json:"name"`
	CronExpr string `json:"cron_expr"`
	Prompt   string `json:"prompt"`
}

type setEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// isValidationError reports whether err is a client-input error that should
// map to a 400 rather than a 500.
func isValidationError(err error) bool {
	for _, target := range []error{
		models.ErrEmptyOwner,
		models.ErrEmptyMessage,
		models.ErrMessageTooLong,
		models.ErrPastFireTime,
		models.ErrEmptyTaskName,
		models.ErrTaskNameTooLong,
		models.ErrEmptyPrompt,
		models.ErrPromptTooLong,
		models.ErrInvalidCron,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Server) remindersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodPost:
		s.createReminderHandler(w, r)
	case http.MethodGet:
		s.listRemindersHandler(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		slog.Warn("Server.remindersHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) createReminderHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.createReminderHandler: processing create request", "path", r.URL.Path)
	var req createReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createReminderHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	id, err := s.st.CreateReminder(req.OwnerID, req.Message, req.FireAt)
	if err != nil {
		if isValidationError(err) {
			slog.Warn("Server.createReminderHandler: validation failed", "error", err, "ownerID", req.OwnerID)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.createReminderHandler: failed to create reminder", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create reminder"))
		return
	}

	rem, err := s.st.GetReminder(id)
	if err != nil || rem == nil {
		slog.Error("Server.createReminderHandler: failed to load created reminder", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load created reminder"))
		return
	}

	slog.Info("Server.createReminderHandler: reminder created", "id", id, "ownerID", req.OwnerID, "fireAt", rem.FireAt)
	writeJSONResponse(w, http.StatusCreated, models.Created(rem))
}

func (s *Server) listRemindersHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required query parameter: owner"))
		return
	}
	status := models.ReminderStatus(r.URL.Query().Get("status"))
	if status != "" && !models.IsValidReminderStatus(status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid status filter"))
		return
	}

	reminders, err := s.st.ListReminders(ownerID, status)
	if err != nil {
		slog.Error("Server.listRemindersHandler: failed to list reminders", "error", err, "ownerID", ownerID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list reminders"))
		return
	}
	slog.Debug("Server.listRemindersHandler: reminders fetched", "ownerID", ownerID, "count", len(reminders))
	writeJSONResponse(w, http.StatusOK, models.Success(reminders))
}

func (s *Server) reminderByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	path := strings.TrimPrefix(r.URL.Path, "/reminders/")
	segments := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(segments) != 1 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown reminder endpoint"))
		return
	}
	id := segments[0]

	switch r.Method {
	case http.MethodGet:
		s.getReminderHandler(w, r, id)
	case http.MethodDelete:
		s.cancelReminderHandler(w, r, id)
	default:
		w.Header().Set("Allow", "GET, DELETE")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

func (s *Server) getReminderHandler(w http.ResponseWriter, r *http.Request, id string) {
	rem, err := s.st.GetReminder(id)
	if err != nil {
		slog.Error("Server.getReminderHandler: failed to fetch reminder", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch reminder"))
		return
	}
	if rem == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Reminder not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(rem))
}

func (s *Server) cancelReminderHandler(w http.ResponseWriter, r *http.Request, id string) {
	slog.Debug("Server.cancelReminderHandler: processing cancel request", "id", id)
	cancelled, err := s.st.CancelReminder(id)
	if err != nil {
		slog.Error("Server.cancelReminderHandler: failed to cancel reminder", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to cancel reminder"))
		return
	}
	if !cancelled {
		// Distinguish a missing record from one that already left pending.
		rem, getErr := s.st.GetReminder(id)
		if getErr != nil {
			slog.Error("Server.cancelReminderHandler: failed to fetch reminder", "error", getErr, "id", id)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to cancel reminder"))
			return
		}
		if rem == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Reminder not found"))
			return
		}
		slog.Warn("Server.cancelReminderHandler: reminder no longer pending", "id", id, "status", rem.Status)
		writeJSONResponse(w, http.StatusConflict, models.Error("Reminder is no longer pending"))
		return
	}
	slog.Info("Server.cancelReminderHandler: reminder cancelled", "id", id)
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

func (s *Server) tasksHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodPost:
		s.createTaskHandler(w, r)
	case http.MethodGet:
		s.listTasksHandler(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		slog.Warn("Server.tasksHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) createTaskHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.createTaskHandler: processing create request", "path", r.URL.Path)
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createTaskHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if err := models.ValidateTaskInput(req.OwnerID, req.Name, req.Prompt); err != nil {
		slog.Warn("Server.createTaskHandler: validation failed", "error", err, "ownerID", req.OwnerID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	// Cron expressions are rejected at creation; a task that persists is
	// always schedulable.
	nextRun, err := scheduler.Next(req.CronExpr, time.Now())
	if err != nil {
		slog.Warn("Server.createTaskHandler: invalid cron expression", "error", err, "cron", req.CronExpr)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	id, err := s.st.CreateTask(req.OwnerID, req.Name, req.CronExpr, req.Prompt, nextRun)
	if err != nil {
		slog.Error("Server.createTaskHandler: failed to create task", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create task"))
		return
	}

	task, err := s.st.GetTask(id)
	if err != nil || task == nil {
		slog.Error("Server.createTaskHandler: failed to load created task", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load created task"))
		return
	}

	slog.Info("Server.createTaskHandler: task created", "id", id, "ownerID", req.OwnerID, "nextRunAt", task.NextRunAt)
	writeJSONResponse(w, http.StatusCreated, models.Created(task))
}

func (s *Server) listTasksHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required query parameter: owner"))
		return
	}

	tasks, err := s.st.ListTasks(ownerID)
	if err != nil {
		slog.Error("Server.listTasksHandler: failed to list tasks", "error", err, "ownerID", ownerID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list tasks"))
		return
	}
	slog.Debug("Server.listTasksHandler: tasks fetched", "ownerID", ownerID, "count", len(tasks))
	writeJSONResponse(w, http.StatusOK, models.Success(tasks))
}

func (s *Server) taskByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	path := strings.TrimPrefix(r.URL.Path, "/tasks/")
	segments := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown task endpoint"))
		return
	}
	id := segments[0]

	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.getTaskHandler(w, r, id)
		case http.MethodDelete:
			s.deleteTaskHandler(w, r, id)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	if len(segments) == 2 && segments[1] == "enabled" {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		s.setTaskEnabledHandler(w, r, id)
		return
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown task endpoint"))
}

func (s *Server) getTaskHandler(w http.ResponseWriter, r *http.Request, id string) {
	task, err := s.st.GetTask(id)
	if err != nil {
		slog.Error("Server.getTaskHandler: failed to fetch task", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch task"))
		return
	}
	if task == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Task not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(task))
}

func (s *Server) deleteTaskHandler(w http.ResponseWriter, r *http.Request, id string) {
	deleted, err := s.st.DeleteTask(id)
	if err != nil {
		slog.Error("Server.deleteTaskHandler: failed to delete task", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete task"))
		return
	}
	if !deleted {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Task not found"))
		return
	}
	slog.Info("Server.deleteTaskHandler: task deleted", "id", id)
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

func (s *Server) setTaskEnabledHandler(w http.ResponseWriter, r *http.Request, id string) {
	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.setTaskEnabledHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	task, err := s.st.GetTask(id)
	if err != nil {
		slog.Error("Server.setTaskEnabledHandler: failed to fetch task", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update task"))
		return
	}
	if task == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Task not found"))
		return
	}

	if err := s.st.SetTaskEnabled(id, req.Enabled); err != nil {
		slog.Error("Server.setTaskEnabledHandler: failed to update task", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update task"))
		return
	}
	slog.Info("Server.setTaskEnabledHandler: task updated", "id", id, "enabled", req.Enabled)
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

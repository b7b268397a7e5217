// -----------------------------------------------------------------------
// Task Handler - Query surface over the task store and plan rendering
// -----------------------------------------------------------------------

package handlers

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
)

// TaskHandler handles task-related API requests
type TaskHandler struct {
	taskStorage interfaces.TaskStorage
	markdown    goldmark.Markdown
	logger      arbor.ILogger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskStorage interfaces.TaskStorage, logger arbor.ILogger) *TaskHandler {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)

	return &TaskHandler{
		taskStorage: taskStorage,
		markdown:    md,
		logger:      logger,
	}
}

// ListTasksHandler returns a paginated list of tasks
// GET /api/tasks?limit=50&offset=0
func (h *TaskHandler) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	ctx := r.Context()

	limit, offset := ParseLimitOffset(r, 50, 200)

	tasks, err := h.taskStorage.List(ctx, offset, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list tasks")
		WriteError(w, http.StatusInternalServerError, "Failed to list tasks")
		return
	}

	totalCount, err := h.taskStorage.Count(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to count tasks")
		totalCount = len(tasks)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tasks":       tasks,
		"total_count": totalCount,
		"limit":       limit,
		"offset":      offset,
	})
}

// taskFromPath resolves the task addressed by
// /api/tasks/{owner}/{repo}/issues/{number}[/plan]. Returns nil after
// writing the error response when the path or lookup fails.
func (h *TaskHandler) taskFromPath(w http.ResponseWriter, r *http.Request) *models.Task {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	// Expected: api tasks {owner} {repo} issues {number} [plan]
	if len(pathParts) < 6 || pathParts[4] != "issues" {
		WriteError(w, http.StatusBadRequest, "Expected /api/tasks/{owner}/{repo}/issues/{number}")
		return nil
	}

	owner := pathParts[2]
	repo := pathParts[3]
	issueNumber, err := strconv.Atoi(pathParts[5])
	if err != nil || issueNumber < 1 {
		WriteError(w, http.StatusBadRequest, "Invalid issue number: "+pathParts[5])
		return nil
	}

	taskID := models.TaskID(owner, repo, issueNumber)
	task, err := h.taskStorage.Get(r.Context(), taskID)
	if err != nil {
		h.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to get task")
		WriteError(w, http.StatusInternalServerError, "Failed to get task")
		return nil
	}
	if task == nil {
		WriteError(w, http.StatusNotFound, "Task not found")
		return nil
	}
	return task
}

// GetTaskHandler returns a single task by its issue coordinates
// GET /api/tasks/{owner}/{repo}/issues/{number}
func (h *TaskHandler) GetTaskHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	task := h.taskFromPath(w, r)
	if task == nil {
		return
	}

	WriteJSON(w, http.StatusOK, task)
}

// GetTaskPlanHandler returns a task's plan. The default is the stored
// JSON structure; ?format=markdown returns the rendered markdown and
// ?format=html (or an Accept: text/html header) returns GFM HTML.
// GET /api/tasks/{owner}/{repo}/issues/{number}/plan
func (h *TaskHandler) GetTaskPlanHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	task := h.taskFromPath(w, r)
	if task == nil {
		return
	}
	if task.Plan == nil {
		WriteError(w, http.StatusNotFound, "Task has no plan yet")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" && strings.Contains(r.Header.Get("Accept"), "text/html") {
		format = "html"
	}

	switch format {
	case "html":
		var buf bytes.Buffer
		if err := h.markdown.Convert([]byte(task.Plan.Markdown()), &buf); err != nil {
			h.logger.Error().Err(err).Str("task_id", task.ID).Msg("Failed to render plan HTML")
			WriteError(w, http.StatusInternalServerError, "Failed to render plan")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(task.Plan.Markdown()))
	default:
		WriteJSON(w, http.StatusOK, task.Plan)
	}
}

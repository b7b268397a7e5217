package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Webhooks
	mux.HandleFunc("/api/webhooks/github", s.app.WebhookHandler.GitHubWebhookHandler)

	// API routes - Jobs (status queries and cancellation)
	mux.HandleFunc("/api/jobs/stats", s.app.JobHandler.GetJobStatsHandler)
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListJobsHandler)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // Handles /api/jobs/{id} and subpaths

	// API routes - Tasks
	mux.HandleFunc("/api/tasks", s.app.TaskHandler.ListTasksHandler)
	mux.HandleFunc("/api/tasks/", s.handleTaskRoutes) // Handles /api/tasks/{owner}/{repo}/issues/{n} and /plan

	// API routes - Audit trail
	mux.HandleFunc("/api/audit", s.app.AuditHandler.QueryAuditHandler)

	// API routes - Retention
	mux.HandleFunc("/api/retention/cleanup", s.app.RetentionHandler.TriggerCleanupHandler)

	// API routes - Logs
	mux.HandleFunc("/api/logs/recent", s.app.WSHandler.GetRecentLogsHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.HealthHandler.GetHealthHandler)
	mux.HandleFunc("/api/shutdown", s.ShutdownHandler) // Graceful shutdown endpoint (dev mode)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobRoutes routes /api/jobs/{id} requests to the appropriate handler
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	// POST /api/jobs/{id}/cancel
	if r.Method == "POST" {
		if RouteByPathSuffix(w, r, "/api/jobs/", []PathSuffixRouter{
			{Suffix: "/cancel", Handler: s.app.JobHandler.CancelJobHandler},
		}) {
			return
		}
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	// GET /api/jobs/{id}
	if r.Method == "GET" && len(r.URL.Path) > len("/api/jobs/") {
		s.app.JobHandler.GetJobHandler(w, r)
		return
	}

	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// handleTaskRoutes routes /api/tasks/{owner}/{repo}/issues/{n} requests
func (s *Server) handleTaskRoutes(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"GET": func(w http.ResponseWriter, r *http.Request) {
			// GET /api/tasks/{owner}/{repo}/issues/{n}/plan
			if strings.HasSuffix(r.URL.Path, "/plan") {
				s.app.TaskHandler.GetTaskPlanHandler(w, r)
				return
			}
			// GET /api/tasks/{owner}/{repo}/issues/{n}
			s.app.TaskHandler.GetTaskHandler(w, r)
		},
	})
}

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jordanhubbard/counsel/internal/metrics"
	"github.com/jordanhubbard/counsel/internal/models"
	"github.com/jordanhubbard/counsel/internal/orchestrator"
)

// Server is the HTTP boundary in front of the orchestration engine.
type Server struct {
	engine    *orchestrator.Engine
	jwtSecret string
	metrics   *metrics.Metrics
}

// NewServer creates an API server. An empty jwtSecret disables
// authentication, for local and test deployments.
func NewServer(engine *orchestrator.Engine, jwtSecret string) *Server {
	return &Server{
		engine:    engine,
		jwtSecret: jwtSecret,
		metrics:   metrics.NewMetrics(),
	}
}

// SetupRoutes configures HTTP routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/tasks", s.handleTasks)
	mux.HandleFunc("/api/v1/tasks/", s.handleTaskFeedback)
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())

	handler := s.loggingMiddleware(mux)
	handler = s.authMiddleware(handler)
	return handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTasks handles POST /api/v1/tasks: submit a task for consultation.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var task models.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(task.Description) == "" {
		http.Error(w, "Task description is required", http.StatusBadRequest)
		return
	}

	outcome := s.engine.ProcessTask(r.Context(), &task)

	status := http.StatusOK
	if !outcome.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, outcome)
}

// handleTaskFeedback handles POST /api/v1/tasks/{id}/feedback.
func (s *Server) handleTaskFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "feedback" {
		http.NotFound(w, r)
		return
	}
	taskID := parts[0]

	var feedback models.Feedback
	if err := json.NewDecoder(r.Body).Decode(&feedback); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if feedback.Satisfaction < 0 || feedback.Satisfaction > 1 {
		http.Error(w, "Satisfaction must be in [0,1]", http.StatusBadRequest)
		return
	}

	if err := s.engine.ProcessFeedback(r.Context(), taskID, &feedback); err != nil {
		if errors.Is(err, orchestrator.ErrTaskNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Feedback recorded"})
}

// handleStatus handles GET /api/v1/status: the aggregated system view.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, err := s.engine.GetSystemStatus(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		path := routePattern(r.URL.Path)
		s.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, http.StatusText(rec.status)).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(elapsed.Seconds())
		log.Printf("[API] %s %s %d %v", r.Method, r.URL.Path, rec.status, elapsed)
	})
}

// routePattern collapses task ids so the path label stays low-cardinality.
func routePattern(path string) string {
	if strings.HasPrefix(path, "/api/v1/tasks/") {
		return "/api/v1/tasks/{id}/feedback"
	}
	return path
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

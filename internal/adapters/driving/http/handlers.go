package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driving"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse represents a simple status response
type StatusResponse struct {
	Status string `json:"status"`
}

// TaskAcceptedResponse is returned when pipeline work has been enqueued
type TaskAcceptedResponse struct {
	TaskID string `json:"task_id"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

// Health endpoints

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady checks the backing services the API depends on
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			checks["database"] = err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}

	if s.contentStore != nil {
		if err := s.contentStore.HealthCheck(r.Context()); err != nil {
			checks["index"] = err.Error()
			healthy = false
		} else {
			checks["index"] = "ok"
		}
	}

	if s.redisClient != nil {
		if err := s.redisClient.Ping(r.Context()); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ready": healthy, "checks": checks})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Retrieval endpoints

// handleRecommendations returns content matched to the authenticated
// student's profile for a subject
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	profile := GetProfile(r.Context())
	if profile == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	subject := r.URL.Query().Get("subject")
	if subject == "" && len(profile.SubjectsOfInterest) > 0 {
		subject = profile.SubjectsOfInterest[0]
	}

	limit := queryInt(r, "limit", 0)

	result, err := s.retrievalService.Recommend(r.Context(), profile, subject, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req driving.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result, err := s.retrievalService.Search(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Learning plan endpoints

// createPlanRequest is the request body for plan assembly. The student
// profile comes from the token, never from the body.
type createPlanRequest struct {
	Subject      string `json:"subject"`
	Weeks        int    `json:"weeks,omitempty"`
	Activities   int    `json:"activities,omitempty"`
	AllowUnbound bool   `json:"allow_unbound,omitempty"`
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	profile := GetProfile(r.Context())
	if profile == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Subject == "" {
		writeError(w, http.StatusBadRequest, "subject is required")
		return
	}

	plan, err := s.planService.BuildPlan(r.Context(), driving.BuildPlanRequest{
		Profile:      profile,
		Subject:      req.Subject,
		Weeks:        req.Weeks,
		Activities:   req.Activities,
		AllowUnbound: req.AllowUnbound,
	})
	if err != nil {
		if errors.Is(err, domain.ErrContentUnavailable) {
			writeError(w, http.StatusUnprocessableEntity, "no content available for this subject")
			return
		}
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, plan)
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	profile := GetProfile(r.Context())
	if profile == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	subject := r.URL.Query().Get("subject")

	plans, err := s.planService.ListPlans(r.Context(), profile.StudentID, subject)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	profile := GetProfile(r.Context())
	if profile == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	plan, err := s.planService.GetPlan(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	// Plans are private to their student
	if plan.StudentID != profile.StudentID {
		writeError(w, http.StatusNotFound, "plan not found")
		return
	}

	writeJSON(w, http.StatusOK, plan)
}

// updateActivityRequest is the request body for an activity status change
type updateActivityRequest struct {
	Status      domain.ActivityStatus `json:"status"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
}

func (s *Server) handleUpdateActivity(w http.ResponseWriter, r *http.Request) {
	profile := GetProfile(r.Context())
	if profile == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	planID := r.PathValue("id")

	// Ownership check before mutation
	existing, err := s.planService.GetPlan(r.Context(), planID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if existing.StudentID != profile.StudentID {
		writeError(w, http.StatusNotFound, "plan not found")
		return
	}

	var req updateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	plan, err := s.planService.UpdateActivityStatus(r.Context(), driving.StatusUpdate{
		PlanID:      planID,
		ActivityID:  r.PathValue("activityID"),
		Status:      req.Status,
		CompletedAt: req.CompletedAt,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, plan)
}

// Pipeline endpoints

// triggerRequest selects the subject for a pipeline run
type triggerRequest struct {
	Subject string `json:"subject"`
}

func (s *Server) handleTriggerIndex(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Subject == "" {
		writeError(w, http.StatusBadRequest, "subject is required")
		return
	}

	task, err := s.pipelineService.TriggerIndex(r.Context(), req.Subject)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, TaskAcceptedResponse{
		TaskID: task.ID,
		Type:   string(task.Type),
		Status: string(task.Status),
	})
}

func (s *Server) handleTriggerExtract(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Subject == "" {
		writeError(w, http.StatusBadRequest, "subject is required")
		return
	}

	task, err := s.pipelineService.TriggerExtract(r.Context(), req.Subject)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, TaskAcceptedResponse{
		TaskID: task.ID,
		Type:   string(task.Type),
		Status: string(task.Status),
	})
}

func (s *Server) handleTriggerRefresh(w http.ResponseWriter, r *http.Request) {
	task, err := s.pipelineService.TriggerEmbeddingRefresh(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, TaskAcceptedResponse{
		TaskID: task.ID,
		Type:   string(task.Type),
		Status: string(task.Status),
	})
}

func (s *Server) handlePipelineStatus(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		writeError(w, http.StatusBadRequest, "subject is required")
		return
	}

	report, err := s.pipelineService.PipelineStatus(r.Context(), subject)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Helpers

// writeServiceError maps domain sentinels onto HTTP statuses
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

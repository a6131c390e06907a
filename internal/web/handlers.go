package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/emiliopalmerini/splitlab/internal/domain"
	"github.com/emiliopalmerini/splitlab/internal/relay"
)

type variantPayload struct {
	Name             string  `json:"name"`
	AllocationWeight float64 `json:"allocation_weight"`
}

type createExperimentRequest struct {
	Name        string           `json:"name"`
	Description *string          `json:"description,omitempty"`
	Variants    []variantPayload `json:"variants"`
}

type experimentResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type assignmentResponse struct {
	ID           int64     `json:"id"`
	ExperimentID int64     `json:"experiment_id"`
	UserID       string    `json:"user_id"`
	VariantName  string    `json:"variant_name"`
	AssignedAt   time.Time `json:"assigned_at"`
}

type eventRequest struct {
	UserID     string         `json:"user_id"`
	Type       string         `json:"type"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

type variantResultPayload struct {
	TotalAssignments int64   `json:"total_assignments"`
	ConversionCount  int64   `json:"conversion_count"`
	ConversionRate   float64 `json:"conversion_rate"`
}

type resultsResponse struct {
	ExperimentID      int64                           `json:"experiment_id"`
	ExperimentName    string                          `json:"experiment_name"`
	ReportGeneratedAt time.Time                       `json:"report_generated_at"`
	VariantData       map[string]variantResultPayload `json:"variant_data"`
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req createExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "experiment name is required")
		return
	}

	variants := make([]domain.Variant, len(req.Variants))
	for i, v := range req.Variants {
		variants[i] = domain.Variant{Name: v.Name, AllocationWeight: v.AllocationWeight}
	}

	experiment, err := s.assignments.CreateExperiment(r.Context(), req.Name, req.Description, variants)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, experimentResponse{
		ID:        experiment.ID,
		Name:      experiment.Name,
		IsActive:  experiment.IsActive,
		CreatedAt: experiment.CreatedAt,
	})
}

func (s *Server) handleAssignment(w http.ResponseWriter, r *http.Request) {
	experimentID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid experiment id")
		return
	}
	userID := r.PathValue("userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	assignment, err := s.assignments.Resolve(r.Context(), experimentID, userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, assignmentResponse{
		ID:           assignment.ID,
		ExperimentID: assignment.ExperimentID,
		UserID:       assignment.UserID,
		VariantName:  assignment.VariantName,
		AssignedAt:   assignment.AssignedAt,
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	experimentID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid experiment id")
		return
	}

	eventType := r.URL.Query().Get("event_type")
	if eventType == "" {
		eventType = "purchase"
	}

	// last_day overrides start_date when both are sent; zero means unset.
	var since *time.Time
	days := 0
	if lastDay := r.URL.Query().Get("last_day"); lastDay != "" {
		d, err := strconv.Atoi(lastDay)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "invalid last_day value")
			return
		}
		days = d
	}
	if days > 0 {
		t := time.Now().UTC().AddDate(0, 0, -days)
		since = &t
	} else if startDate := r.URL.Query().Get("start_date"); startDate != "" {
		t, err := time.Parse(time.RFC3339, startDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_date format, use RFC 3339")
			return
		}
		since = &t
	}

	summary, err := s.results.Summarize(r.Context(), experimentID, eventType, since)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	variantData := make(map[string]variantResultPayload, len(summary.Variants))
	for name, result := range summary.Variants {
		variantData[name] = variantResultPayload{
			TotalAssignments: result.TotalAssignments,
			ConversionCount:  result.ConversionCount,
			ConversionRate:   result.ConversionRate,
		}
	}

	writeJSON(w, http.StatusOK, resultsResponse{
		ExperimentID:      summary.ExperimentID,
		ExperimentName:    summary.ExperimentName,
		ReportGeneratedAt: summary.ReportGeneratedAt,
		VariantData:       variantData,
	})
}

func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "user_id and type are required")
		return
	}

	timestamp := time.Now().UTC()
	if req.Timestamp != nil {
		timestamp = req.Timestamp.UTC()
	}

	taskID, err := s.relay.Record(r.Context(), &domain.Event{
		UserID:     req.UserID,
		Type:       req.Type,
		Timestamp:  timestamp,
		Properties: req.Properties,
	})
	if err != nil {
		if errors.Is(err, relay.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, "event relay is saturated, retry later")
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("event relay failure")
		writeError(w, http.StatusInternalServerError, "failed to record event")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "task_id": taskID})
}

// writeDomainError maps engine failures to API responses. Only the three
// named conditions ever reach the boundary; everything else is a 500.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrExperimentNotFound):
		writeError(w, http.StatusNotFound, "Experiment not found or has no variants.")
	case errors.Is(err, domain.ErrInvalidDistribution):
		writeError(w, http.StatusBadRequest, "Invalid variant weight distribution.")
	case errors.Is(err, domain.ErrAssignmentWriteFailed):
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("assignment write failed")
		writeError(w, http.StatusInternalServerError, "Unable to create assignment.")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("unhandled service error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "failed", "error": message})
}

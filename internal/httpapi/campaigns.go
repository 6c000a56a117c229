package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fernmail/fern/internal/metrics"
	"github.com/fernmail/fern/internal/models"
	"github.com/fernmail/fern/internal/repository"
)

// CampaignRequest is the request body for POST /campaigns
type CampaignRequest struct {
	Name            string            `json:"name"`
	TemplateID      string            `json:"template_id"`
	ConstantsValues map[string]string `json:"constants_values"`
}

// ScheduleRequest is the request body for schedule and reschedule
type ScheduleRequest struct {
	ScheduledFor time.Time `json:"scheduled_for"`
	SendTimezone string    `json:"send_timezone"`
}

// CampaignListResponse is the response for GET /campaigns
type CampaignListResponse struct {
	Campaigns []models.Campaign `json:"campaigns"`
	Total     int               `json:"total"`
}

// CampaignStatusResponse is the response for GET /campaigns/{id}/status
type CampaignStatusResponse struct {
	ID     string                `json:"id"`
	Status models.CampaignStatus `json:"status"`
	SentAt *time.Time            `json:"sent_at,omitempty"`
	Stats  models.CampaignStats  `json:"stats"`
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	filter := models.CampaignListFilter{
		Status: models.CampaignStatus(r.URL.Query().Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		s.sendError(w, http.StatusBadRequest, "invalid status filter")
		return
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		filter.Offset = offset
	}

	campaigns, total, err := s.campaigns.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list campaigns", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to list campaigns")
		return
	}

	s.sendJSON(w, http.StatusOK, CampaignListResponse{Campaigns: campaigns, Total: total})
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.TemplateID == "" {
		s.sendError(w, http.StatusBadRequest, "template_id is required")
		return
	}

	tmpl, err := s.templates.GetByID(r.Context(), req.TemplateID)
	if err != nil {
		s.logger.Error("failed to get template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to get template")
		return
	}
	if tmpl == nil {
		s.sendError(w, http.StatusNotFound, "template not found")
		return
	}

	campaign := &models.Campaign{
		Name:            req.Name,
		Subject:         tmpl.Subject,
		TemplateID:      tmpl.ID,
		ConstantsValues: req.ConstantsValues,
	}
	if err := s.campaigns.Create(r.Context(), campaign); err != nil {
		s.logger.Error("failed to create campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to create campaign")
		return
	}

	metrics.IncCampaignsCreated()
	s.sendJSON(w, http.StatusCreated, campaign)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.campaigns.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to get campaign")
		return
	}
	if campaign == nil {
		s.sendError(w, http.StatusNotFound, "campaign not found")
		return
	}
	s.sendJSON(w, http.StatusOK, campaign)
}

func (s *Server) handleCampaignStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	campaign, err := s.campaigns.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to get campaign")
		return
	}
	if campaign == nil {
		s.sendError(w, http.StatusNotFound, "campaign not found")
		return
	}

	stats, err := s.sendLogs.Stats(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get campaign stats", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to get campaign stats")
		return
	}

	s.sendJSON(w, http.StatusOK, CampaignStatusResponse{
		ID:     campaign.ID,
		Status: campaign.Status,
		SentAt: campaign.SentAt,
		Stats:  stats,
	})
}

// scheduleCampaign backs both the schedule and reschedule endpoints; the
// lifecycle map allows scheduled -> scheduled so the same transition
// serves both.
func (s *Server) scheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ScheduledFor.IsZero() {
		s.sendError(w, http.StatusBadRequest, "scheduled_for is required")
		return
	}
	if !req.ScheduledFor.After(time.Now()) {
		s.sendError(w, http.StatusBadRequest, "scheduled_for must be in the future")
		return
	}
	if req.SendTimezone != "" {
		if _, err := time.LoadLocation(req.SendTimezone); err != nil {
			s.sendError(w, http.StatusBadRequest, "invalid send_timezone")
			return
		}
	}

	campaign, err := s.campaigns.Schedule(r.Context(), chi.URLParam(r, "id"), req.ScheduledFor, req.SendTimezone)
	if err != nil {
		s.campaignTransitionError(w, err, "failed to schedule campaign")
		return
	}

	metrics.IncCampaignsScheduled()
	s.sendJSON(w, http.StatusOK, campaign)
}

func (s *Server) handleScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	s.scheduleCampaign(w, r)
}

func (s *Server) handleRescheduleCampaign(w http.ResponseWriter, r *http.Request) {
	s.scheduleCampaign(w, r)
}

func (s *Server) handleCancelCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.campaigns.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.campaignTransitionError(w, err, "failed to cancel campaign")
		return
	}

	metrics.IncCampaignsCancelled()
	s.sendJSON(w, http.StatusOK, campaign)
}

func (s *Server) campaignTransitionError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.sendError(w, http.StatusNotFound, "campaign not found")
	case errors.Is(err, repository.ErrInvalidTransition):
		s.sendError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error(fallback, "error", err)
		s.sendError(w, http.StatusInternalServerError, fallback)
	}
}

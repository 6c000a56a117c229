package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fernmail/fern/internal/metrics"
	"github.com/fernmail/fern/internal/models"
	"github.com/fernmail/fern/internal/repository"
	"github.com/fernmail/fern/internal/wizard"
)

// campaignCreator adapts the repositories to the wizard's submission
// interface. The campaign is created as a draft and then moved to
// scheduled through the regular lifecycle.
type campaignCreator struct {
	templates *repository.TemplateRepository
	campaigns *repository.CampaignRepository
}

func (c *campaignCreator) CreateCampaign(ctx context.Context, in wizard.CreateCampaignInput) (*models.Campaign, error) {
	tmpl, err := c.templates.GetByID(ctx, in.TemplateID)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, fmt.Errorf("template %s not found", in.TemplateID)
	}

	campaign := &models.Campaign{
		Name:            in.Name,
		Subject:         tmpl.Subject,
		TemplateID:      tmpl.ID,
		ConstantsValues: in.ConstantsValues,
		SendTimezone:    in.SendTimezone,
	}
	if err := c.campaigns.Create(ctx, campaign); err != nil {
		return nil, err
	}

	scheduled, err := c.campaigns.Schedule(ctx, campaign.ID, in.ScheduledFor, in.SendTimezone)
	if err != nil {
		return nil, err
	}

	metrics.IncCampaignsCreated()
	return scheduled, nil
}

// SessionResponse wraps a wizard snapshot with its session ID
type SessionResponse struct {
	ID string `json:"id"`
	wizard.Draft
}

// SelectTemplateRequest is the request body for POST .../template
type SelectTemplateRequest struct {
	TemplateID string `json:"template_id"`
}

// SetValueRequest is the request body for PUT .../values
type SetValueRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MetadataRequest is the request body for PUT .../metadata
type MetadataRequest struct {
	Name         string    `json:"name"`
	ScheduledFor time.Time `json:"scheduled_for"`
	SendTimezone string    `json:"send_timezone"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	wz := wizard.New(s.templates, &campaignCreator{
		templates: s.templates,
		campaigns: s.campaigns,
	})
	id := s.sessions.Create(wz)

	metrics.IncWizardSessions()
	s.sendJSON(w, http.StatusCreated, SessionResponse{ID: id, Draft: wz.Snapshot()})
}

// sessionWizard resolves the session from the URL, writing a 404 when it
// is unknown or expired
func (s *Server) sessionWizard(w http.ResponseWriter, r *http.Request) (*wizard.Wizard, string, bool) {
	id := chi.URLParam(r, "id")
	wz, ok := s.sessions.Get(id)
	if !ok {
		s.sendError(w, http.StatusNotFound, "session not found")
		return nil, "", false
	}
	return wz, id, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	wz, id, ok := s.sessionWizard(w, r)
	if !ok {
		return
	}
	s.sendJSON(w, http.StatusOK, SessionResponse{ID: id, Draft: wz.Snapshot()})
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	wz, id, ok := s.sessionWizard(w, r)
	if !ok {
		return
	}
	wz.Cancel()
	s.sessions.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionSelectTemplate(w http.ResponseWriter, r *http.Request) {
	wz, id, ok := s.sessionWizard(w, r)
	if !ok {
		return
	}

	var req SelectTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := wz.SelectTemplate(r.Context(), req.TemplateID); err != nil {
		s.wizardError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, SessionResponse{ID: id, Draft: wz.Snapshot()})
}

func (s *Server) handleSessionSetValue(w http.ResponseWriter, r *http.Request) {
	wz, id, ok := s.sessionWizard(w, r)
	if !ok {
		return
	}

	var req SetValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := wz.SetCustomValue(req.Name, req.Value); err != nil {
		s.wizardError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, SessionResponse{ID: id, Draft: wz.Snapshot()})
}

func (s *Server) handleSessionSetMetadata(w http.ResponseWriter, r *http.Request) {
	wz, id, ok := s.sessionWizard(w, r)
	if !ok {
		return
	}

	var req MetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SendTimezone != "" {
		if _, err := time.LoadLocation(req.SendTimezone); err != nil {
			s.sendError(w, http.StatusBadRequest, "invalid send_timezone")
			return
		}
	}

	if err := wz.SetMetadata(wizard.Metadata{
		Name:         req.Name,
		ScheduledFor: req.ScheduledFor,
		SendTimezone: req.SendTimezone,
	}); err != nil {
		s.wizardError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, SessionResponse{ID: id, Draft: wz.Snapshot()})
}

func (s *Server) handleSessionAdvance(w http.ResponseWriter, r *http.Request) {
	wz, id, ok := s.sessionWizard(w, r)
	if !ok {
		return
	}

	if err := wz.Advance(); err != nil {
		if errors.Is(err, wizard.ErrBlocked) {
			// step gate failed: return the snapshot with its field errors
			s.sendJSON(w, http.StatusUnprocessableEntity, SessionResponse{ID: id, Draft: wz.Snapshot()})
			return
		}
		s.wizardError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, SessionResponse{ID: id, Draft: wz.Snapshot()})
}

func (s *Server) handleSessionRetreat(w http.ResponseWriter, r *http.Request) {
	wz, id, ok := s.sessionWizard(w, r)
	if !ok {
		return
	}

	if err := wz.Retreat(); err != nil {
		s.wizardError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, SessionResponse{ID: id, Draft: wz.Snapshot()})
}

func (s *Server) handleSessionPreview(w http.ResponseWriter, r *http.Request) {
	wz, _, ok := s.sessionWizard(w, r)
	if !ok {
		return
	}

	preview, err := wz.Preview()
	if err != nil {
		s.wizardError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, preview)
}

func (s *Server) handleSessionSubmit(w http.ResponseWriter, r *http.Request) {
	wz, id, ok := s.sessionWizard(w, r)
	if !ok {
		return
	}

	campaign, err := wz.Submit(r.Context())
	if err != nil {
		metrics.IncWizardSubmissions("failure")
		switch {
		case errors.Is(err, wizard.ErrCancelled),
			errors.Is(err, wizard.ErrInvalidStep),
			errors.Is(err, wizard.ErrSubmitInFlight):
			s.wizardError(w, err)
		default:
			// store rejected the draft: it survives at review with a
			// submit-scoped error, so the client can retry
			s.sendJSON(w, http.StatusUnprocessableEntity, SessionResponse{ID: id, Draft: wz.Snapshot()})
		}
		return
	}

	metrics.IncWizardSubmissions("success")
	s.sessions.Delete(id)
	s.sendJSON(w, http.StatusCreated, campaign)
}

// wizardError maps wizard sentinel errors to HTTP statuses
func (s *Server) wizardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, wizard.ErrCancelled):
		s.sendError(w, http.StatusGone, "session cancelled")
	case errors.Is(err, wizard.ErrNoTemplate):
		s.sendError(w, http.StatusNotFound, "template not found")
	case errors.Is(err, wizard.ErrUnknownField):
		s.sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, wizard.ErrInvalidStep),
		errors.Is(err, wizard.ErrFirstStep),
		errors.Is(err, wizard.ErrLastStep),
		errors.Is(err, wizard.ErrSubmitInFlight):
		s.sendError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("wizard operation failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "wizard operation failed")
	}
}

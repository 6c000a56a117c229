package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fernmail/fern/internal/models"
	"github.com/fernmail/fern/internal/repository"
	"github.com/fernmail/fern/internal/template"
)

// TemplateRequest is the request body for creating or updating a template.
// Variables is tolerant of legacy clients: a JSON array, a JSON-encoded
// array string and a comma-separated string are all accepted.
type TemplateRequest struct {
	Name      string `json:"name"`
	Subject   string `json:"subject"`
	HTML      string `json:"html"`
	Text      string `json:"text"`
	Variables any    `json:"variables"`
	IsActive  *bool  `json:"is_active"`
}

// TemplateListResponse is the response for GET /templates
type TemplateListResponse struct {
	Templates []models.Template `json:"templates"`
	Total     int               `json:"total"`
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	filter := models.TemplateListFilter{
		Search:     r.URL.Query().Get("search"),
		ActiveOnly: r.URL.Query().Get("active") == "true",
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		filter.Offset = offset
	}

	templates, total, err := s.templates.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list templates", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to list templates")
		return
	}

	s.sendJSON(w, http.StatusOK, TemplateListResponse{Templates: templates, Total: total})
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Subject == "" && req.HTML == "" {
		s.sendError(w, http.StatusBadRequest, "subject or html is required")
		return
	}

	tmpl := &models.Template{
		Name:      req.Name,
		Subject:   req.Subject,
		HTML:      req.HTML,
		Text:      req.Text,
		Variables: template.NormalizeConstants(req.Variables),
		IsActive:  true,
	}
	if req.IsActive != nil {
		tmpl.IsActive = *req.IsActive
	}

	// no declared variables: seed them from the template body
	if len(tmpl.Variables) == 0 {
		tmpl.Variables = template.ExtractVariables(req.Subject + " " + req.HTML + " " + req.Text)
	}

	if err := s.templates.Create(r.Context(), tmpl); err != nil {
		s.logger.Error("failed to create template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to create template")
		return
	}

	s.sendJSON(w, http.StatusCreated, tmpl)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.templates.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to get template")
		return
	}
	if tmpl == nil {
		s.sendError(w, http.StatusNotFound, "template not found")
		return
	}
	s.sendJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := s.templates.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to get template")
		return
	}
	if existing == nil {
		s.sendError(w, http.StatusNotFound, "template not found")
		return
	}

	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.Subject != "" {
		existing.Subject = req.Subject
	}
	if req.HTML != "" {
		existing.HTML = req.HTML
	}
	if req.Text != "" {
		existing.Text = req.Text
	}
	if req.Variables != nil {
		existing.Variables = template.NormalizeConstants(req.Variables)
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}

	if err := s.templates.Update(r.Context(), existing); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "template not found")
			return
		}
		s.logger.Error("failed to update template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to update template")
		return
	}

	s.sendJSON(w, http.StatusOK, existing)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.templates.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.logger.Error("failed to delete template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to delete template")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VariablesResponse partitions a template's variables into system and
// custom groups, the same split the wizard shows.
type VariablesResponse struct {
	SystemVariables []string `json:"system_variables"`
	CustomVariables []string `json:"custom_variables"`
}

func (s *Server) handleTemplateVariables(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.templates.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to get template")
		return
	}
	if tmpl == nil {
		s.sendError(w, http.StatusNotFound, "template not found")
		return
	}

	c := template.Classify(tmpl.Variables)
	s.sendJSON(w, http.StatusOK, VariablesResponse{
		SystemVariables: c.System,
		CustomVariables: c.Custom,
	})
}

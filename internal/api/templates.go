package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pelora/outreach/internal/campaign"
	"github.com/pelora/outreach/internal/models"
)

// TemplateRequest is the request body for creating or updating a template
type TemplateRequest struct {
	Name    string `json:"name"`
	Channel string `json:"channel"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateListResponse is the response for GET /templates
type TemplateListResponse struct {
	Templates []models.Template `json:"templates"`
	Total     int               `json:"total"`
}

// PreviewResponse is the response for POST /templates/{id}/preview
type PreviewResponse struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// handleCreateTemplate handles POST /api/v1/templates
func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Channel != models.ChannelEmail && req.Channel != models.ChannelSMS {
		s.sendError(w, http.StatusBadRequest, "channel must be email or sms")
		return
	}
	if req.Body == "" {
		s.sendError(w, http.StatusBadRequest, "body is required")
		return
	}

	tmpl := &models.Template{
		TenantID: tenantID(r),
		Name:     req.Name,
		Channel:  req.Channel,
		Subject:  req.Subject,
		Body:     req.Body,
	}
	if err := s.templates.Create(tmpl); err != nil {
		s.logger.Error("failed to create template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create template")
		return
	}

	s.sendJSON(w, http.StatusCreated, tmpl)
}

// handleListTemplates handles GET /api/v1/templates
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	filter := models.TemplateListFilter{
		TenantID: tenantID(r),
		Channel:  r.URL.Query().Get("channel"),
		Limit:    queryInt(r, "limit", 50),
		Offset:   queryInt(r, "offset", 0),
	}

	templates, total, err := s.templates.List(filter)
	if err != nil {
		s.logger.Error("failed to list templates", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}

	s.sendJSON(w, http.StatusOK, TemplateListResponse{Templates: templates, Total: total})
}

// getTenantTemplate loads a template and enforces tenant ownership.
func (s *Server) getTenantTemplate(w http.ResponseWriter, r *http.Request) *models.Template {
	id := chi.URLParam(r, "id")

	tmpl, err := s.templates.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get template", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get template")
		return nil
	}
	if tmpl == nil || tmpl.TenantID != tenantID(r) {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return nil
	}
	return tmpl
}

// handleGetTemplate handles GET /api/v1/templates/{id}
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl := s.getTenantTemplate(w, r)
	if tmpl == nil {
		return
	}
	s.sendJSON(w, http.StatusOK, tmpl)
}

// handleUpdateTemplate handles PUT /api/v1/templates/{id}. Edits only
// affect campaigns created afterwards; a sending campaign keeps the
// content it was dispatched with.
func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl := s.getTenantTemplate(w, r)
	if tmpl == nil {
		return
	}

	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name != "" {
		tmpl.Name = req.Name
	}
	if req.Subject != "" {
		tmpl.Subject = req.Subject
	}
	if req.Body != "" {
		tmpl.Body = req.Body
	}

	if err := s.templates.Update(tmpl); err != nil {
		s.logger.Error("failed to update template", "id", tmpl.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update template")
		return
	}

	s.sendJSON(w, http.StatusOK, tmpl)
}

// handleDeleteTemplate handles DELETE /api/v1/templates/{id}
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl := s.getTenantTemplate(w, r)
	if tmpl == nil {
		return
	}

	if err := s.templates.Delete(tmpl.ID); err != nil {
		s.logger.Error("failed to delete template", "id", tmpl.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handlePreviewTemplate handles POST /api/v1/templates/{id}/preview
func (s *Server) handlePreviewTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl := s.getTenantTemplate(w, r)
	if tmpl == nil {
		return
	}

	subject, body, err := s.campaigns.Preview(tenantID(r), tmpl.ID)
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "Template not found")
			return
		}
		s.logger.Error("failed to preview template", "id", tmpl.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to preview template")
		return
	}

	s.sendJSON(w, http.StatusOK, PreviewResponse{Subject: subject, Body: body})
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pelora/outreach/internal/campaign"
	"github.com/pelora/outreach/internal/models"
	"github.com/pelora/outreach/internal/targeting"
)

// CampaignListResponse is the response for GET /campaigns
type CampaignListResponse struct {
	Campaigns []models.Campaign `json:"campaigns"`
	Total     int               `json:"total"`
}

// DeliveryListResponse is the response for GET /campaigns/{id}/deliveries
type DeliveryListResponse struct {
	Deliveries []models.DeliveryRecord `json:"deliveries"`
	Total      int                     `json:"total"`
}

// handleCreateCampaign handles POST /api/v1/campaigns
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaign.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.TenantID = tenantID(r)

	c, err := s.campaigns.Create(req)
	if err != nil {
		switch {
		case errors.Is(err, campaign.ErrValidation), errors.Is(err, targeting.ErrUnknownTargetGroup):
			s.sendError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("failed to create campaign", "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to create campaign")
		}
		return
	}

	s.sendJSON(w, http.StatusCreated, c)
}

// handleListCampaigns handles GET /api/v1/campaigns
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	filter := models.CampaignListFilter{
		TenantID: tenantID(r),
		Status:   r.URL.Query().Get("status"),
		Channel:  r.URL.Query().Get("channel"),
		Limit:    queryInt(r, "limit", 50),
		Offset:   queryInt(r, "offset", 0),
	}

	campaigns, total, err := s.campaigns.List(filter)
	if err != nil {
		s.logger.Error("failed to list campaigns", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list campaigns")
		return
	}

	s.sendJSON(w, http.StatusOK, CampaignListResponse{Campaigns: campaigns, Total: total})
}

// getTenantCampaign loads a campaign and enforces tenant ownership. A
// campaign belonging to another tenant reads as not found.
func (s *Server) getTenantCampaign(w http.ResponseWriter, r *http.Request) *models.Campaign {
	id := chi.URLParam(r, "id")

	c, err := s.campaigns.Get(id)
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "Campaign not found")
			return nil
		}
		s.logger.Error("failed to get campaign", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get campaign")
		return nil
	}
	if c.TenantID != tenantID(r) {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return nil
	}
	return c
}

// handleGetCampaign handles GET /api/v1/campaigns/{id}. This is the
// progress endpoint, cheap enough to poll while a campaign sends.
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c := s.getTenantCampaign(w, r)
	if c == nil {
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

// handleApproveCampaign handles POST /api/v1/campaigns/{id}/approve
func (s *Server) handleApproveCampaign(w http.ResponseWriter, r *http.Request) {
	c := s.getTenantCampaign(w, r)
	if c == nil {
		return
	}

	approved, err := s.campaigns.Approve(c.ID)
	if err != nil {
		if errors.Is(err, campaign.ErrInvalidTransition) {
			s.sendError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("failed to approve campaign", "id", c.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to approve campaign")
		return
	}

	s.sendJSON(w, http.StatusAccepted, approved)
}

// handleCancelCampaign handles POST /api/v1/campaigns/{id}/cancel
func (s *Server) handleCancelCampaign(w http.ResponseWriter, r *http.Request) {
	c := s.getTenantCampaign(w, r)
	if c == nil {
		return
	}

	cancelled, err := s.campaigns.Cancel(c.ID)
	if err != nil {
		if errors.Is(err, campaign.ErrInvalidTransition) {
			s.sendError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("failed to cancel campaign", "id", c.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to cancel campaign")
		return
	}

	s.sendJSON(w, http.StatusOK, cancelled)
}

// handleDeleteCampaign handles DELETE /api/v1/campaigns/{id}
func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	c := s.getTenantCampaign(w, r)
	if c == nil {
		return
	}

	if err := s.campaigns.Delete(c.ID); err != nil {
		s.logger.Error("failed to delete campaign", "id", c.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete campaign")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListDeliveries handles GET /api/v1/campaigns/{id}/deliveries
func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	c := s.getTenantCampaign(w, r)
	if c == nil {
		return
	}

	records, total, err := s.campaigns.Deliveries(c.ID, queryInt(r, "limit", 100), queryInt(r, "offset", 0))
	if err != nil {
		s.logger.Error("failed to list deliveries", "id", c.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list deliveries")
		return
	}

	s.sendJSON(w, http.StatusOK, DeliveryListResponse{Deliveries: records, Total: total})
}

// queryInt parses an integer query parameter with a fallback.
func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/pelora/outreach/internal/models"
)

// DeliveryEventRequest is the request body for POST /events/delivery.
// Transport providers post status updates keyed by the message id they
// returned at send time.
type DeliveryEventRequest struct {
	MessageID string `json:"message_id"`
	Event     string `json:"event"`
}

// outcomeRank orders delivery outcomes so replayed or out-of-order
// callbacks can never downgrade a record.
var outcomeRank = map[string]int{
	models.OutcomeSent:      1,
	models.OutcomeDelivered: 2,
	models.OutcomeOpened:    3,
	models.OutcomeClicked:   4,
}

// handleDeliveryEvent handles POST /events/delivery
func (s *Server) handleDeliveryEvent(w http.ResponseWriter, r *http.Request) {
	var req DeliveryEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.MessageID == "" {
		s.sendError(w, http.StatusBadRequest, "message_id is required")
		return
	}

	switch req.Event {
	case models.OutcomeDelivered, models.OutcomeOpened, models.OutcomeClicked, models.OutcomeBounced:
	default:
		s.sendError(w, http.StatusBadRequest, "event must be delivered, opened, clicked or bounced")
		return
	}

	record, err := s.deliveries.GetByMessageID(req.MessageID)
	if err != nil {
		s.logger.Error("failed to look up delivery record", "message_id", req.MessageID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to process event")
		return
	}
	if record == nil {
		s.sendError(w, http.StatusNotFound, "Unknown message id")
		return
	}

	if req.Event == models.OutcomeBounced {
		if err := s.deliveries.UpdateOutcome(record.ID, models.OutcomeBounced, ""); err != nil {
			s.logger.Error("failed to record bounce", "message_id", req.MessageID, "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to process event")
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// Upgrades only: a replayed "delivered" after an "opened" is a no-op,
	// and campaign engagement counters move once per upgrade.
	if outcomeRank[req.Event] <= outcomeRank[record.Outcome] {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.deliveries.UpdateOutcome(record.ID, req.Event, ""); err != nil {
		s.logger.Error("failed to update delivery outcome", "message_id", req.MessageID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to process event")
		return
	}

	var delta models.CounterDelta
	switch req.Event {
	case models.OutcomeDelivered:
		delta.Delivered = 1
	case models.OutcomeOpened:
		delta.Opened = 1
	case models.OutcomeClicked:
		delta.Clicked = 1
	}
	if err := s.campRepo.IncrementCounters(record.CampaignID, delta); err != nil {
		s.logger.Error("failed to update campaign counters", "campaign_id", record.CampaignID, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// OptOutRequest is the request body for POST /api/v1/optouts
type OptOutRequest struct {
	ConsumerID string `json:"consumer_id"`
	Channel    string `json:"channel"`
	Source     string `json:"source"`
}

// handleCreateOptOut handles POST /api/v1/optouts. Recording the same
// consumer and channel twice is a no-op.
func (s *Server) handleCreateOptOut(w http.ResponseWriter, r *http.Request) {
	var req OptOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Channel != models.ChannelEmail && req.Channel != models.ChannelSMS {
		s.sendError(w, http.StatusBadRequest, "channel must be email or sms")
		return
	}

	consumer, err := s.consumers.GetByID(req.ConsumerID)
	if err != nil {
		s.logger.Error("failed to look up consumer", "consumer_id", req.ConsumerID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to record opt-out")
		return
	}
	if consumer == nil || consumer.TenantID != tenantID(r) {
		s.sendError(w, http.StatusNotFound, "Consumer not found")
		return
	}

	optOut := &models.OptOut{
		TenantID:   tenantID(r),
		ConsumerID: req.ConsumerID,
		Channel:    req.Channel,
		Source:     req.Source,
	}
	if err := s.optOuts.Create(optOut); err != nil {
		s.logger.Error("failed to record opt-out", "consumer_id", req.ConsumerID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to record opt-out")
		return
	}

	s.logger.Info("opt-out recorded",
		"tenant_id", optOut.TenantID,
		"consumer_id", optOut.ConsumerID,
		"channel", optOut.Channel,
	)

	s.sendJSON(w, http.StatusCreated, optOut)
}

// handleQuota handles GET /api/v1/quota
func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	usage, err := s.quota.CurrentUsage(tenantID(r))
	if err != nil {
		s.logger.Error("failed to compute quota usage", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to compute usage")
		return
	}
	s.sendJSON(w, http.StatusOK, usage)
}

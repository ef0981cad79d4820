package models

import "time"

// Delivery outcomes. A record starts at sent or error and may be
// upgraded by transport callbacks (delivered, opened, clicked) or by an
// opt-out suppression at dispatch time.
const (
	OutcomeSent      = "sent"
	OutcomeDelivered = "delivered"
	OutcomeOpened    = "opened"
	OutcomeClicked   = "clicked"
	OutcomeError     = "error"
	OutcomeOptOut    = "opt_out"
	OutcomeBounced   = "bounced"
)

// DeliveryRecord is one row per message actually attempted. MessageID is
// the transport's id and keys asynchronous status callbacks.
type DeliveryRecord struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	TenantID   string    `json:"tenant_id"`
	ConsumerID string    `json:"consumer_id"`
	Address    string    `json:"address"`
	MessageID  string    `json:"message_id,omitempty"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// OptOut is a per consumer+channel suppression marker. Once set it
// overrides every targeting rule for that channel.
type OptOut struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	ConsumerID string    `json:"consumer_id"`
	Channel    string    `json:"channel"`
	Source     string    `json:"source,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

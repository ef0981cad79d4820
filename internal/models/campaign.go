package models

import "time"

// Campaign statuses. pending_approval is the canonical initial state;
// older records may carry the legacy "pending" spelling, which
// NormalizeStatus maps onto it.
const (
	StatusPendingApproval = "pending_approval"
	StatusPendingLegacy   = "pending"
	StatusSending         = "sending"
	StatusCompleted       = "completed"
	StatusFailed          = "failed"
	StatusCancelled       = "cancelled"
)

// Channels a campaign can be sent over.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Target groups for recipient resolution.
const (
	TargetAll          = "all"
	TargetWithBalance  = "with-balance"
	TargetOverdue      = "overdue"
	TargetDecline      = "decline"
	TargetRecentUpload = "recent-upload"
	TargetFolder       = "folder"
)

// Campaign is the central aggregate: one template sent to a resolved
// recipient set, driven through an approval/send lifecycle.
type Campaign struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenant_id"`
	TemplateID  string   `json:"template_id"`
	Name        string   `json:"name"`
	Channel     string   `json:"channel"`
	TargetGroup string   `json:"target_group"`
	FolderIDs   []string `json:"folder_ids,omitempty"`

	// PhonesPerRecipient controls SMS fan-out: "1", "2", "3" or "all".
	// Ignored for email campaigns.
	PhonesPerRecipient string `json:"phones_per_recipient,omitempty"`

	Status string `json:"status"`

	TotalRecipients int `json:"total_recipients"`
	TotalSent       int `json:"total_sent"`
	TotalDelivered  int `json:"total_delivered"`
	TotalOpened     int `json:"total_opened"`
	TotalClicked    int `json:"total_clicked"`
	TotalErrors     int `json:"total_errors"`
	TotalOptOuts    int `json:"total_opt_outs"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NormalizeStatus maps the legacy "pending" spelling onto the canonical
// pending_approval state. All status comparisons must go through this.
func NormalizeStatus(status string) string {
	if status == StatusPendingLegacy {
		return StatusPendingApproval
	}
	return status
}

// IsTerminal reports whether a campaign in this status accepts no
// further dispatch activity. Engagement callbacks (delivered, opened,
// clicked) may still arrive after completion.
func IsTerminal(status string) bool {
	switch NormalizeStatus(status) {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CounterDelta is an atomic increment applied to campaign counters.
// Fields are added to the stored values, never overwritten.
type CounterDelta struct {
	Sent      int
	Delivered int
	Opened    int
	Clicked   int
	Errors    int
	OptOuts   int
}

// CampaignListFilter for filtering campaign listings.
type CampaignListFilter struct {
	TenantID string
	Status   string
	Channel  string
	Limit    int
	Offset   int
}

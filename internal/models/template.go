package models

import "time"

// Template holds a raw message body (HTML or SMS text) plus an optional
// subject for email. Edits only affect future sends; a campaign renders
// against the template content as read at dispatch time.
type Template struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Channel   string    `json:"channel"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TemplateListFilter for filtering template listings.
type TemplateListFilter struct {
	TenantID string
	Channel  string
	Limit    int
	Offset   int
}

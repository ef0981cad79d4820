package models

// Recipient is one resolved target of a campaign, captured as a snapshot
// at approval time so later consumer edits do not change an in-flight
// campaign's list. For SMS the Addresses slice carries the fanned-out
// phone numbers (primary first, then additional numbers in import
// order); each address is a separate billable send but all group under
// the one consumer for reporting.
type Recipient struct {
	ConsumerID string   `json:"consumer_id"`
	AccountID  string   `json:"account_id,omitempty"`
	FirstName  string   `json:"first_name"`
	LastName   string   `json:"last_name"`
	Addresses  []string `json:"addresses"`
}

// Sends returns the number of billable sends this recipient produces.
func (r Recipient) Sends() int {
	return len(r.Addresses)
}

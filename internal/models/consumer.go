package models

import "time"

// Consumer is a debtor/customer owned by a tenant. The typed fields are
// the core schema; Metadata carries open-ended per-import extra columns
// used as custom template variables.
type Consumer struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenant_id"`
	FirstName     string            `json:"first_name"`
	LastName      string            `json:"last_name"`
	Email         string            `json:"email"`
	Phone         string            `json:"phone"`
	ImportBatchID string            `json:"import_batch_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// PhoneNumber is an additional number attached to a consumer during
// import. Position preserves import order; the consumer's primary Phone
// always sorts before these.
type PhoneNumber struct {
	ID         string `json:"id"`
	ConsumerID string `json:"consumer_id"`
	Number     string `json:"number"`
	Position   int    `json:"position"`
}

// Account is a debt/receivable linked to a consumer. BalanceCents is an
// integer; formatting to currency happens only at render time.
type Account struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenant_id"`
	ConsumerID    string            `json:"consumer_id"`
	AccountNumber string            `json:"account_number"`
	BalanceCents  int64             `json:"balance_cents"`
	DueDate       *time.Time        `json:"due_date,omitempty"`
	Status        string            `json:"status"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Account statuses used by targeting predicates.
const (
	AccountStatusOpen     = "open"
	AccountStatusDeclined = "declined"
	AccountStatusPaid     = "paid"
)

// Folder groups consumers for folder-targeted campaigns.
type Folder struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ImportBatch records one consumer upload; recent-upload targeting
// resolves against the latest batch per tenant.
type ImportBatch struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	FileName  string    `json:"file_name"`
	RowCount  int       `json:"row_count"`
	CreatedAt time.Time `json:"created_at"`
}

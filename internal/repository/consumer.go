package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pelora/outreach/internal/models"
)

type ConsumerRepository struct {
	db *sql.DB
}

func NewConsumerRepository(db *sql.DB) *ConsumerRepository {
	return &ConsumerRepository{db: db}
}

// Create creates a new consumer
func (r *ConsumerRepository) Create(c *models.Consumer) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now()

	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO consumers (id, tenant_id, first_name, last_name, email, phone, import_batch_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TenantID, c.FirstName, c.LastName, c.Email, c.Phone, c.ImportBatchID, string(metadata), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	return nil
}

const consumerColumns = `c.id, c.tenant_id, COALESCE(c.first_name, ''), COALESCE(c.last_name, ''),
	COALESCE(c.email, ''), COALESCE(c.phone, ''), COALESCE(c.import_batch_id, ''), COALESCE(c.metadata, '{}'), c.created_at`

func scanConsumer(row interface{ Scan(...any) error }) (*models.Consumer, error) {
	c := &models.Consumer{}
	var metadata string

	err := row.Scan(&c.ID, &c.TenantID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.ImportBatchID, &metadata, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	return c, nil
}

// GetByID returns a consumer by ID
func (r *ConsumerRepository) GetByID(id string) (*models.Consumer, error) {
	row := r.db.QueryRow("SELECT "+consumerColumns+" FROM consumers c WHERE c.id = ?", id)
	c, err := scanConsumer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ConsumerRepository) queryConsumers(query string, args ...any) ([]models.Consumer, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	consumers := []models.Consumer{}
	for rows.Next() {
		c, err := scanConsumer(rows)
		if err != nil {
			return nil, err
		}
		consumers = append(consumers, *c)
	}

	return consumers, rows.Err()
}

// ListAll returns every consumer for a tenant in creation order.
func (r *ConsumerRepository) ListAll(tenantID string) ([]models.Consumer, error) {
	return r.queryConsumers(
		"SELECT "+consumerColumns+" FROM consumers c WHERE c.tenant_id = ? ORDER BY c.created_at, c.id",
		tenantID,
	)
}

// ListWithBalance returns consumers with at least one account carrying a
// positive balance. A consumer with several qualifying accounts appears
// once.
func (r *ConsumerRepository) ListWithBalance(tenantID string) ([]models.Consumer, error) {
	return r.queryConsumers(`
		SELECT `+consumerColumns+` FROM consumers c
		WHERE c.tenant_id = ?
		  AND EXISTS (SELECT 1 FROM accounts a WHERE a.consumer_id = c.id AND a.balance_cents > 0)
		ORDER BY c.created_at, c.id`,
		tenantID,
	)
}

// ListOverdue returns consumers with an unpaid account past its due date.
func (r *ConsumerRepository) ListOverdue(tenantID string) ([]models.Consumer, error) {
	return r.queryConsumers(`
		SELECT `+consumerColumns+` FROM consumers c
		WHERE c.tenant_id = ?
		  AND EXISTS (
			SELECT 1 FROM accounts a
			WHERE a.consumer_id = c.id AND a.due_date IS NOT NULL AND a.due_date < ? AND a.status != ?)
		ORDER BY c.created_at, c.id`,
		tenantID, time.Now(), models.AccountStatusPaid,
	)
}

// ListDeclined returns consumers with an account in declined status.
func (r *ConsumerRepository) ListDeclined(tenantID string) ([]models.Consumer, error) {
	return r.queryConsumers(`
		SELECT `+consumerColumns+` FROM consumers c
		WHERE c.tenant_id = ?
		  AND EXISTS (SELECT 1 FROM accounts a WHERE a.consumer_id = c.id AND a.status = ?)
		ORDER BY c.created_at, c.id`,
		tenantID, models.AccountStatusDeclined,
	)
}

// ListRecentUpload returns consumers belonging to the tenant's most
// recent import batch.
func (r *ConsumerRepository) ListRecentUpload(tenantID string) ([]models.Consumer, error) {
	return r.queryConsumers(`
		SELECT `+consumerColumns+` FROM consumers c
		WHERE c.tenant_id = ?
		  AND c.import_batch_id = (
			SELECT id FROM import_batches WHERE tenant_id = ? ORDER BY created_at DESC, id DESC LIMIT 1)
		ORDER BY c.created_at, c.id`,
		tenantID, tenantID,
	)
}

// ListByFolders returns the union of consumers assigned to any of the
// folders. A consumer in several folders appears once.
func (r *ConsumerRepository) ListByFolders(tenantID string, folderIDs []string) ([]models.Consumer, error) {
	if len(folderIDs) == 0 {
		return []models.Consumer{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(folderIDs)), ",")
	args := []any{tenantID}
	for _, id := range folderIDs {
		args = append(args, id)
	}

	return r.queryConsumers(`
		SELECT DISTINCT `+consumerColumns+` FROM consumers c
		JOIN consumer_folders cf ON cf.consumer_id = c.id
		WHERE c.tenant_id = ? AND cf.folder_id IN (`+placeholders+`)
		ORDER BY c.created_at, c.id`,
		args...,
	)
}

// Phones returns a consumer's numbers in send order: primary first, then
// additional numbers in import order.
func (r *ConsumerRepository) Phones(consumerID string) ([]string, error) {
	c, err := r.GetByID(consumerID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}

	phones := []string{}
	if c.Phone != "" {
		phones = append(phones, c.Phone)
	}

	rows, err := r.db.Query(
		"SELECT number FROM consumer_phones WHERE consumer_id = ? ORDER BY position, id",
		consumerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		phones = append(phones, n)
	}

	return phones, rows.Err()
}

// AddPhone attaches an additional number to a consumer
func (r *ConsumerRepository) AddPhone(p *models.PhoneNumber) error {
	p.ID = uuid.New().String()
	_, err := r.db.Exec(
		"INSERT INTO consumer_phones (id, consumer_id, number, position) VALUES (?, ?, ?, ?)",
		p.ID, p.ConsumerID, p.Number, p.Position,
	)
	return err
}

// CreateAccount creates an account linked to a consumer
func (r *ConsumerRepository) CreateAccount(a *models.Account) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now()
	if a.Status == "" {
		a.Status = models.AccountStatusOpen
	}

	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO accounts (id, tenant_id, consumer_id, account_number, balance_cents, due_date, status, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TenantID, a.ConsumerID, a.AccountNumber, a.BalanceCents, a.DueDate, a.Status, string(metadata), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetAccount returns an account by ID
func (r *ConsumerRepository) GetAccount(id string) (*models.Account, error) {
	row := r.db.QueryRow(`
		SELECT id, tenant_id, consumer_id, COALESCE(account_number, ''), balance_cents, due_date, COALESCE(status, 'open'), COALESCE(metadata, '{}'), created_at
		FROM accounts WHERE id = ?`, id,
	)

	var a models.Account
	var dueDate sql.NullTime
	var metadata string

	err := row.Scan(&a.ID, &a.TenantID, &a.ConsumerID, &a.AccountNumber, &a.BalanceCents, &dueDate, &a.Status, &metadata, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if dueDate.Valid {
		a.DueDate = &dueDate.Time
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &a.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return &a, nil
}

// Accounts returns a consumer's accounts in creation order
func (r *ConsumerRepository) Accounts(consumerID string) ([]models.Account, error) {
	rows, err := r.db.Query(`
		SELECT id, tenant_id, consumer_id, COALESCE(account_number, ''), balance_cents, due_date, COALESCE(status, 'open'), COALESCE(metadata, '{}'), created_at
		FROM accounts WHERE consumer_id = ? ORDER BY created_at, id`,
		consumerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		var dueDate sql.NullTime
		var metadata string

		err := rows.Scan(&a.ID, &a.TenantID, &a.ConsumerID, &a.AccountNumber, &a.BalanceCents, &dueDate, &a.Status, &metadata, &a.CreatedAt)
		if err != nil {
			return nil, err
		}
		if dueDate.Valid {
			a.DueDate = &dueDate.Time
		}
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &a.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata: %w", err)
			}
		}
		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
}

// CreateFolder creates a consumer folder
func (r *ConsumerRepository) CreateFolder(f *models.Folder) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	f.CreatedAt = time.Now()
	_, err := r.db.Exec(
		"INSERT INTO folders (id, tenant_id, name, created_at) VALUES (?, ?, ?, ?)",
		f.ID, f.TenantID, f.Name, f.CreatedAt,
	)
	return err
}

// AssignFolder places a consumer in a folder. Idempotent.
func (r *ConsumerRepository) AssignFolder(folderID, consumerID string) error {
	_, err := r.db.Exec(
		"INSERT OR IGNORE INTO consumer_folders (folder_id, consumer_id) VALUES (?, ?)",
		folderID, consumerID,
	)
	return err
}

// CreateImportBatch records a consumer upload
func (r *ConsumerRepository) CreateImportBatch(b *models.ImportBatch) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.CreatedAt = time.Now()
	_, err := r.db.Exec(
		"INSERT INTO import_batches (id, tenant_id, file_name, row_count, created_at) VALUES (?, ?, ?, ?, ?)",
		b.ID, b.TenantID, b.FileName, b.RowCount, b.CreatedAt,
	)
	return err
}

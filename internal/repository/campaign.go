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

type CampaignRepository struct {
	db *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create persists a new campaign in pending_approval with its resolved
// recipient count. All other counters start at zero.
func (r *CampaignRepository) Create(c *models.Campaign) error {
	c.ID = uuid.New().String()
	c.Status = models.StatusPendingApproval
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt

	folderIDs, err := json.Marshal(c.FolderIDs)
	if err != nil {
		return fmt.Errorf("failed to encode folder ids: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO campaigns (id, tenant_id, template_id, name, channel, target_group, folder_ids, phones_per_recipient, status, total_recipients, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TenantID, c.TemplateID, c.Name, c.Channel, c.TargetGroup, string(folderIDs), c.PhonesPerRecipient, c.Status, c.TotalRecipients, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

const campaignColumns = `id, tenant_id, template_id, name, channel, target_group, COALESCE(folder_ids, '[]'), COALESCE(phones_per_recipient, ''), status,
	total_recipients, total_sent, total_delivered, total_opened, total_clicked, total_errors, total_opt_outs,
	created_at, updated_at, completed_at`

func scanCampaign(row interface{ Scan(...any) error }) (*models.Campaign, error) {
	c := &models.Campaign{}
	var folderIDs string
	var completedAt sql.NullTime

	err := row.Scan(&c.ID, &c.TenantID, &c.TemplateID, &c.Name, &c.Channel, &c.TargetGroup, &folderIDs, &c.PhonesPerRecipient, &c.Status,
		&c.TotalRecipients, &c.TotalSent, &c.TotalDelivered, &c.TotalOpened, &c.TotalClicked, &c.TotalErrors, &c.TotalOptOuts,
		&c.CreatedAt, &c.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if folderIDs != "" {
		if err := json.Unmarshal([]byte(folderIDs), &c.FolderIDs); err != nil {
			return nil, fmt.Errorf("failed to decode folder ids: %w", err)
		}
	}
	if completedAt.Valid {
		c.CompletedAt = &completedAt.Time
	}

	// Legacy records may still carry the old "pending" spelling.
	c.Status = models.NormalizeStatus(c.Status)

	return c, nil
}

// GetByID returns a campaign by ID
func (r *CampaignRepository) GetByID(id string) (*models.Campaign, error) {
	row := r.db.QueryRow("SELECT "+campaignColumns+" FROM campaigns WHERE id = ?", id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// statusFilter builds the status predicate for listings. Filtering on
// pending_approval also matches legacy "pending" rows, mirroring the
// alias handling in TransitionStatus.
func statusFilter(status string) (string, []any) {
	if status == "" {
		return "", nil
	}
	if models.NormalizeStatus(status) == models.StatusPendingApproval {
		return " AND status IN (?, ?)", []any{models.StatusPendingApproval, models.StatusPendingLegacy}
	}
	return " AND status = ?", []any{status}
}

// List returns campaigns with optional filtering
func (r *CampaignRepository) List(filter models.CampaignListFilter) ([]models.Campaign, int, error) {
	statusClause, statusArgs := statusFilter(filter.Status)

	countQuery := "SELECT COUNT(*) FROM campaigns WHERE tenant_id = ?"
	args := []any{filter.TenantID}

	countQuery += statusClause
	args = append(args, statusArgs...)
	if filter.Channel != "" {
		countQuery += " AND channel = ?"
		args = append(args, filter.Channel)
	}

	var total int
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + campaignColumns + " FROM campaigns WHERE tenant_id = ?"
	args = []any{filter.TenantID}

	query += statusClause
	args = append(args, statusArgs...)
	if filter.Channel != "" {
		query += " AND channel = ?"
		args = append(args, filter.Channel)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, *c)
	}

	return campaigns, total, nil
}

// TransitionStatus moves a campaign to a new status only if its current
// status is one of from. Returns false when no transition happened,
// which callers treat as an invalid-transition or lost race. The legacy
// "pending" spelling is accepted wherever pending_approval is.
func (r *CampaignRepository) TransitionStatus(id, to string, from ...string) (bool, error) {
	states := make([]string, 0, len(from)+1)
	for _, s := range from {
		states = append(states, s)
		if s == models.StatusPendingApproval {
			states = append(states, models.StatusPendingLegacy)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(states)), ",")
	args := []any{to, time.Now()}

	query := "UPDATE campaigns SET status = ?, updated_at = ?"
	if to == models.StatusCompleted {
		query += ", completed_at = ?"
		args = append(args, time.Now())
	}
	query += " WHERE id = ? AND status IN (" + placeholders + ")"
	args = append(args, id)
	for _, s := range states {
		args = append(args, s)
	}

	res, err := r.db.Exec(query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateTotalRecipients reconciles the recipient count with the
// snapshot captured at approval time.
func (r *CampaignRepository) UpdateTotalRecipients(id string, n int) error {
	_, err := r.db.Exec(
		"UPDATE campaigns SET total_recipients = ?, updated_at = ? WHERE id = ?",
		n, time.Now(), id,
	)
	return err
}

// IncrementCounters applies an atomic counter delta. Increments, never
// overwrites, so batches completing out of order cannot lose updates.
func (r *CampaignRepository) IncrementCounters(id string, d models.CounterDelta) error {
	_, err := r.db.Exec(`
		UPDATE campaigns SET
			total_sent = total_sent + ?,
			total_delivered = total_delivered + ?,
			total_opened = total_opened + ?,
			total_clicked = total_clicked + ?,
			total_errors = total_errors + ?,
			total_opt_outs = total_opt_outs + ?,
			updated_at = ?
		WHERE id = ?`,
		d.Sent, d.Delivered, d.Opened, d.Clicked, d.Errors, d.OptOuts, time.Now(), id,
	)
	return err
}

// Delete deletes a campaign and its delivery records (cascade)
func (r *CampaignRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM campaigns WHERE id = ?", id)
	return err
}

package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pelora/outreach/internal/models"
)

type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// Create records one attempted message
func (r *DeliveryRepository) Create(d *models.DeliveryRecord) error {
	d.ID = uuid.New().String()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO delivery_records (id, campaign_id, tenant_id, consumer_id, address, message_id, outcome, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.CampaignID, d.TenantID, d.ConsumerID, d.Address, d.MessageID, d.Outcome, d.Error, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create delivery record: %w", err)
	}
	return nil
}

// GetByMessageID returns the record keyed by a transport message id.
// Delivery/open/click callbacks locate their record through this.
func (r *DeliveryRepository) GetByMessageID(messageID string) (*models.DeliveryRecord, error) {
	d := &models.DeliveryRecord{}
	err := r.db.QueryRow(`
		SELECT id, campaign_id, tenant_id, consumer_id, address, COALESCE(message_id, ''), outcome, COALESCE(error, ''), created_at, updated_at
		FROM delivery_records WHERE message_id = ?`, messageID,
	).Scan(&d.ID, &d.CampaignID, &d.TenantID, &d.ConsumerID, &d.Address, &d.MessageID, &d.Outcome, &d.Error, &d.CreatedAt, &d.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// UpdateOutcome updates the outcome of a delivery record
func (r *DeliveryRepository) UpdateOutcome(id, outcome, errorMsg string) error {
	_, err := r.db.Exec(`
		UPDATE delivery_records SET outcome = ?, error = ?, updated_at = ? WHERE id = ?`,
		outcome, errorMsg, time.Now(), id,
	)
	return err
}

// ListByCampaign returns delivery records for a campaign in send order,
// so SMS fan-out rows group visually under one consumer.
func (r *DeliveryRepository) ListByCampaign(campaignID string, limit, offset int) ([]models.DeliveryRecord, int, error) {
	var total int
	if err := r.db.QueryRow(
		"SELECT COUNT(*) FROM delivery_records WHERE campaign_id = ?", campaignID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, campaign_id, tenant_id, consumer_id, address, COALESCE(message_id, ''), outcome, COALESCE(error, ''), created_at, updated_at
		FROM delivery_records WHERE campaign_id = ?
		ORDER BY consumer_id, created_at`
	args := []any{campaignID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := []models.DeliveryRecord{}
	for rows.Next() {
		var d models.DeliveryRecord
		err := rows.Scan(&d.ID, &d.CampaignID, &d.TenantID, &d.ConsumerID, &d.Address, &d.MessageID, &d.Outcome, &d.Error, &d.CreatedAt, &d.UpdatedAt)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, d)
	}

	return records, total, nil
}

// CountSentInPeriod returns the number of billable sends for a tenant in
// [from, to). Error and opt-out rows never bill; delivered/opened/clicked
// upgrades still count as the original send.
func (r *DeliveryRepository) CountSentInPeriod(tenantID string, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM delivery_records
		WHERE tenant_id = ? AND created_at >= ? AND created_at < ?
		  AND outcome NOT IN (?, ?)`,
		tenantID, from, to, models.OutcomeError, models.OutcomeOptOut,
	).Scan(&n)
	return n, err
}

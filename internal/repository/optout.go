package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pelora/outreach/internal/models"
)

type OptOutRepository struct {
	db *sql.DB
}

func NewOptOutRepository(db *sql.DB) *OptOutRepository {
	return &OptOutRepository{db: db}
}

// Create records an opt-out marker. Idempotent: recording the same
// consumer+channel pair twice is a no-op.
func (r *OptOutRepository) Create(o *models.OptOut) error {
	o.ID = uuid.New().String()
	o.CreatedAt = time.Now()

	_, err := r.db.Exec(`
		INSERT OR IGNORE INTO opt_outs (id, tenant_id, consumer_id, channel, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, o.TenantID, o.ConsumerID, o.Channel, o.Source, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record opt-out: %w", err)
	}
	return nil
}

// IsOptedOut reports whether a consumer has opted out of a channel.
func (r *OptOutRepository) IsOptedOut(consumerID, channel string) (bool, error) {
	var n int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM opt_outs WHERE consumer_id = ? AND channel = ?",
		consumerID, channel,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// OptedOutSet returns the set of consumer IDs opted out of a channel for
// a tenant. Used by the resolver to apply the exclusion uniformly across
// all targeting branches.
func (r *OptOutRepository) OptedOutSet(tenantID, channel string) (map[string]bool, error) {
	rows, err := r.db.Query(
		"SELECT consumer_id FROM opt_outs WHERE tenant_id = ? AND channel = ?",
		tenantID, channel,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		set[id] = true
	}

	return set, rows.Err()
}

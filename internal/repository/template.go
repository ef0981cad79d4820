package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pelora/outreach/internal/models"
)

type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create creates a new template
func (r *TemplateRepository) Create(t *models.Template) error {
	t.ID = uuid.New().String()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO templates (id, tenant_id, name, channel, subject, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TenantID, t.Name, t.Channel, t.Subject, t.Body, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// GetByID returns a template by ID
func (r *TemplateRepository) GetByID(id string) (*models.Template, error) {
	t := &models.Template{}
	err := r.db.QueryRow(`
		SELECT id, tenant_id, name, channel, COALESCE(subject, ''), body, created_at, updated_at
		FROM templates WHERE id = ?`, id,
	).Scan(&t.ID, &t.TenantID, &t.Name, &t.Channel, &t.Subject, &t.Body, &t.CreatedAt, &t.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// List returns templates for a tenant with optional filtering
func (r *TemplateRepository) List(filter models.TemplateListFilter) ([]models.Template, int, error) {
	countQuery := "SELECT COUNT(*) FROM templates WHERE tenant_id = ?"
	args := []any{filter.TenantID}

	if filter.Channel != "" {
		countQuery += " AND channel = ?"
		args = append(args, filter.Channel)
	}

	var total int
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, tenant_id, name, channel, COALESCE(subject, ''), body, created_at, updated_at
		FROM templates WHERE tenant_id = ?`

	args = []any{filter.TenantID}
	if filter.Channel != "" {
		query += " AND channel = ?"
		args = append(args, filter.Channel)
	}

	query += " ORDER BY updated_at DESC"

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

	templates := []models.Template{}
	for rows.Next() {
		var t models.Template
		err := rows.Scan(&t.ID, &t.TenantID, &t.Name, &t.Channel, &t.Subject, &t.Body, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, 0, err
		}
		templates = append(templates, t)
	}

	return templates, total, nil
}

// Update updates a template. Edits only affect future sends.
func (r *TemplateRepository) Update(t *models.Template) error {
	t.UpdatedAt = time.Now()
	_, err := r.db.Exec(`
		UPDATE templates SET name = ?, subject = ?, body = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Subject, t.Body, t.UpdatedAt, t.ID,
	)
	return err
}

// Delete deletes a template
func (r *TemplateRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM templates WHERE id = ?", id)
	return err
}

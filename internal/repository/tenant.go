package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pelora/outreach/internal/models"
)

type TenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create creates a new tenant
func (r *TenantRepository) Create(t *models.Tenant) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO tenants (id, name, slug, email, phone, address, portal_origin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Slug, t.Email, t.Phone, t.Address, t.PortalOrigin, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetByID returns a tenant by ID
func (r *TenantRepository) GetByID(id string) (*models.Tenant, error) {
	t := &models.Tenant{}
	err := r.db.QueryRow(`
		SELECT id, name, slug, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(address, ''), COALESCE(portal_origin, ''), created_at, updated_at
		FROM tenants WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.Email, &t.Phone, &t.Address, &t.PortalOrigin, &t.CreatedAt, &t.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetBySlug returns a tenant by slug
func (r *TenantRepository) GetBySlug(slug string) (*models.Tenant, error) {
	t := &models.Tenant{}
	err := r.db.QueryRow(`
		SELECT id, name, slug, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(address, ''), COALESCE(portal_origin, ''), created_at, updated_at
		FROM tenants WHERE slug = ?`, slug,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.Email, &t.Phone, &t.Address, &t.PortalOrigin, &t.CreatedAt, &t.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

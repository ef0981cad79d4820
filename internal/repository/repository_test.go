package repository

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	dbpkg "github.com/pelora/outreach/internal/db"
	"github.com/pelora/outreach/internal/models"
)

// setupTestDB creates an in-memory SQLite database with all migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	for _, m := range dbpkg.Migrations {
		if _, err := db.Exec(m); err != nil {
			t.Fatalf("migration failed: %v", err)
		}
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// seedTenant creates a tenant and returns its ID
func seedTenant(t *testing.T, db *sql.DB) string {
	t.Helper()

	tenants := NewTenantRepository(db)
	tenant := &models.Tenant{Name: "Acme Recovery", Slug: "acme", Email: "ops@acme.test"}
	if err := tenants.Create(tenant); err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}
	return tenant.ID
}

// seedConsumer creates a consumer with optional email/phone
func seedConsumer(t *testing.T, db *sql.DB, tenantID, first, email, phone string) *models.Consumer {
	t.Helper()

	consumers := NewConsumerRepository(db)
	c := &models.Consumer{
		TenantID:  tenantID,
		FirstName: first,
		LastName:  "Doe",
		Email:     email,
		Phone:     phone,
	}
	if err := consumers.Create(c); err != nil {
		t.Fatalf("failed to create consumer: %v", err)
	}
	return c
}

// seedTemplate creates a template and returns its ID
func seedTemplate(t *testing.T, db *sql.DB, tenantID, channel string) string {
	t.Helper()

	templates := NewTemplateRepository(db)
	tmpl := &models.Template{
		TenantID: tenantID,
		Name:     "test template",
		Channel:  channel,
		Subject:  "Hello {{firstName}}",
		Body:     "Your balance is {{balance}}",
	}
	if err := templates.Create(tmpl); err != nil {
		t.Fatalf("failed to create template: %v", err)
	}
	return tmpl.ID
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pelora/outreach/internal/config"
	"github.com/pelora/outreach/internal/db"
	"github.com/pelora/outreach/internal/models"
	"github.com/pelora/outreach/internal/repository"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo tenant with sample data",
	Long:  `Create a demo tenant with consumers, accounts, a folder and a starter template for local development.`,
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	tenants := repository.NewTenantRepository(database.DB)
	consumers := repository.NewConsumerRepository(database.DB)
	templates := repository.NewTemplateRepository(database.DB)

	tenant := &models.Tenant{
		Name:  "Demo Recovery Agency",
		Slug:  "demo",
		Email: "support@demo.test",
		Phone: "+15555550199",
	}
	if err := tenants.Create(tenant); err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	folder := &models.Folder{TenantID: tenant.ID, Name: "March placements"}
	if err := consumers.CreateFolder(folder); err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}

	samples := []struct {
		first, last, email, phone string
		balance                   int64
		overdueDays               int
	}{
		{"Alice", "Anderson", "alice@example.com", "+15555550101", 125000, 30},
		{"Bob", "Brown", "bob@example.com", "+15555550102", 48099, 0},
		{"Carol", "Clark", "carol@example.com", "", 990000, 90},
		{"Dan", "Diaz", "", "+15555550104", 0, 0},
	}

	for _, s := range samples {
		c := &models.Consumer{
			TenantID:  tenant.ID,
			FirstName: s.first,
			LastName:  s.last,
			Email:     s.email,
			Phone:     s.phone,
		}
		if err := consumers.Create(c); err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
		if err := consumers.AssignFolder(folder.ID, c.ID); err != nil {
			return fmt.Errorf("failed to assign folder: %w", err)
		}

		if s.balance > 0 {
			account := &models.Account{
				TenantID:      tenant.ID,
				ConsumerID:    c.ID,
				AccountNumber: fmt.Sprintf("DEMO-%s", c.ID[:8]),
				BalanceCents:  s.balance,
			}
			if s.overdueDays > 0 {
				due := time.Now().AddDate(0, 0, -s.overdueDays)
				account.DueDate = &due
			}
			if err := consumers.CreateAccount(account); err != nil {
				return fmt.Errorf("failed to create account: %w", err)
			}
		}
	}

	tmpl := &models.Template{
		TenantID: tenant.ID,
		Name:     "Balance reminder",
		Channel:  models.ChannelEmail,
		Subject:  "{{firstName}}, your balance of {{balance}} is waiting",
		Body:     "Hi {{firstName}},\n\nYour account {{accountNumber}} has a balance of {{balance}}.\nSettle today for {{balance60}} at {portalLink}.\n\n{{agencyName}}",
	}
	if err := templates.Create(tmpl); err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}

	fmt.Printf("Seeded demo tenant\n")
	fmt.Printf("  tenant id:   %s\n", tenant.ID)
	fmt.Printf("  folder id:   %s\n", folder.ID)
	fmt.Printf("  template id: %s\n", tmpl.ID)
	return nil
}

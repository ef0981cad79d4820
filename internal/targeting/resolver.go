package targeting

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/pelora/outreach/internal/models"
	"github.com/pelora/outreach/internal/repository"
)

// ErrUnknownTargetGroup rejects a targeting rule that cannot be
// evaluated. Surfaced at campaign creation time before anything is
// persisted.
var ErrUnknownTargetGroup = errors.New("unknown target group")

// Request describes one resolution: which tenant population to match,
// over which channel, and for SMS how many numbers per consumer.
type Request struct {
	TenantID    string
	Channel     string
	TargetGroup string
	FolderIDs   []string

	// PhonesPerRecipient is "1", "2", "3" or "all" (default all).
	PhonesPerRecipient string
}

// Resolver evaluates targeting rules against the tenant's consumer and
// account population.
type Resolver struct {
	consumers *repository.ConsumerRepository
	optOuts   *repository.OptOutRepository
	logger    *slog.Logger
}

func New(consumers *repository.ConsumerRepository, optOuts *repository.OptOutRepository, logger *slog.Logger) *Resolver {
	return &Resolver{
		consumers: consumers,
		optOuts:   optOuts,
		logger:    logger.With("component", "resolver"),
	}
}

// Resolve produces the ordered, deduplicated recipient list for a
// targeting rule. The opt-out exclusion applies uniformly across all
// branches; consumers without a usable address for the channel are
// skipped.
func (r *Resolver) Resolve(req Request) ([]models.Recipient, error) {
	var (
		matched []models.Consumer
		err     error
	)

	switch req.TargetGroup {
	case models.TargetAll:
		matched, err = r.consumers.ListAll(req.TenantID)
	case models.TargetWithBalance:
		matched, err = r.consumers.ListWithBalance(req.TenantID)
	case models.TargetOverdue:
		matched, err = r.consumers.ListOverdue(req.TenantID)
	case models.TargetDecline:
		matched, err = r.consumers.ListDeclined(req.TenantID)
	case models.TargetRecentUpload:
		matched, err = r.consumers.ListRecentUpload(req.TenantID)
	case models.TargetFolder:
		// Empty folder set resolves to zero recipients, never to all.
		matched, err = r.consumers.ListByFolders(req.TenantID, req.FolderIDs)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTargetGroup, req.TargetGroup)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate target group %q: %w", req.TargetGroup, err)
	}

	optedOut, err := r.optOuts.OptedOutSet(req.TenantID, req.Channel)
	if err != nil {
		return nil, fmt.Errorf("failed to load opt-outs: %w", err)
	}

	maxPhones := parseCardinality(req.PhonesPerRecipient)

	recipients := []models.Recipient{}
	seen := map[string]bool{}

	for _, c := range matched {
		if seen[c.ID] || optedOut[c.ID] {
			continue
		}
		seen[c.ID] = true

		addresses, err := r.addresses(&c, req.Channel, maxPhones)
		if err != nil {
			return nil, err
		}
		if len(addresses) == 0 {
			continue
		}

		accountID, err := r.primaryAccountID(c.ID)
		if err != nil {
			return nil, err
		}

		recipients = append(recipients, models.Recipient{
			ConsumerID: c.ID,
			AccountID:  accountID,
			FirstName:  c.FirstName,
			LastName:   c.LastName,
			Addresses:  addresses,
		})
	}

	r.logger.Debug("resolved recipients",
		"tenant_id", req.TenantID,
		"target_group", req.TargetGroup,
		"channel", req.Channel,
		"matched", len(matched),
		"recipients", len(recipients),
	)

	return recipients, nil
}

// addresses returns the channel-appropriate destinations for a consumer.
// For SMS the fan-out preserves per-consumer order: primary number
// first, then additional numbers in import order, capped by cardinality.
func (r *Resolver) addresses(c *models.Consumer, channel string, maxPhones int) ([]string, error) {
	if channel == models.ChannelEmail {
		if c.Email == "" {
			return nil, nil
		}
		return []string{c.Email}, nil
	}

	phones, err := r.consumers.Phones(c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load phone numbers: %w", err)
	}
	if maxPhones > 0 && len(phones) > maxPhones {
		phones = phones[:maxPhones]
	}
	return phones, nil
}

// primaryAccountID captures the consumer's first account for the
// recipient snapshot, so rendering stays pinned to the account as of
// resolution.
func (r *Resolver) primaryAccountID(consumerID string) (string, error) {
	accounts, err := r.consumers.Accounts(consumerID)
	if err != nil {
		return "", fmt.Errorf("failed to load accounts: %w", err)
	}
	if len(accounts) == 0 {
		return "", nil
	}
	return accounts[0].ID, nil
}

// parseCardinality maps a phones-per-recipient option to a cap; zero
// means no cap ("all").
func parseCardinality(s string) int {
	if s == "" || s == "all" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0
	}
	return n
}

package campaign

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pelora/outreach/internal/metrics"
	"github.com/pelora/outreach/internal/models"
	"github.com/pelora/outreach/internal/render"
	"github.com/pelora/outreach/internal/repository"
	"github.com/pelora/outreach/internal/snapshot"
	"github.com/pelora/outreach/internal/targeting"
	"github.com/pelora/outreach/internal/transport"
)

// Options tunes the dispatch loop.
type Options struct {
	BatchSize     int
	Concurrency   int
	BatchInterval time.Duration

	// FatalErrorThreshold aborts a run after this many consecutive
	// recipient failures with no success in between.
	FatalErrorThreshold int
}

// DefaultOptions returns the dispatch tuning used when nothing is
// configured.
func DefaultOptions() Options {
	return Options{
		BatchSize:           10,
		Concurrency:         10,
		BatchInterval:       time.Second,
		FatalErrorThreshold: 5,
	}
}

// Service drives campaigns through their lifecycle: validation and
// recipient resolution at creation, the approval gate, background
// dispatch, cancellation and progress reporting.
type Service struct {
	campaigns  *repository.CampaignRepository
	templates  *repository.TemplateRepository
	consumers  *repository.ConsumerRepository
	tenants    *repository.TenantRepository
	optOuts    *repository.OptOutRepository
	deliveries *repository.DeliveryRepository

	resolver  *targeting.Resolver
	snapshots *snapshot.Store
	senders   *transport.Manager
	links     *render.LinkResolver
	metrics   *metrics.Metrics
	logger    *slog.Logger
	opts      Options

	// notifyFinished fires with the tenant id whenever a campaign
	// reaches a terminal state, so collaborators (quota cache) can
	// refresh.
	notifyFinished func(tenantID string)

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// OnCampaignFinished registers a callback invoked with the tenant id
// each time one of the tenant's campaigns reaches a terminal state.
func (s *Service) OnCampaignFinished(fn func(tenantID string)) {
	s.notifyFinished = fn
}

func NewService(
	db *sql.DB,
	snapshots *snapshot.Store,
	senders *transport.Manager,
	links *render.LinkResolver,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts Options,
) *Service {
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultOptions().Concurrency
	}
	if opts.BatchInterval <= 0 {
		opts.BatchInterval = DefaultOptions().BatchInterval
	}
	if opts.FatalErrorThreshold < 1 {
		opts.FatalErrorThreshold = DefaultOptions().FatalErrorThreshold
	}

	consumers := repository.NewConsumerRepository(db)
	optOuts := repository.NewOptOutRepository(db)
	serviceLogger := logger.With("component", "campaign")

	return &Service{
		campaigns:  repository.NewCampaignRepository(db),
		templates:  repository.NewTemplateRepository(db),
		consumers:  consumers,
		tenants:    repository.NewTenantRepository(db),
		optOuts:    optOuts,
		deliveries: repository.NewDeliveryRepository(db),
		resolver:   targeting.New(consumers, optOuts, logger),
		snapshots:  snapshots,
		senders:    senders,
		links:      links,
		metrics:    m,
		logger:     serviceLogger,
		opts:       opts,
		cancels:    map[string]context.CancelFunc{},
	}
}

// CreateRequest is the payload for a new campaign.
type CreateRequest struct {
	TenantID           string   `json:"-"`
	Name               string   `json:"name"`
	TemplateID         string   `json:"template_id"`
	Channel            string   `json:"channel"`
	TargetGroup        string   `json:"target_group"`
	FolderIDs          []string `json:"folder_ids"`
	PhonesPerRecipient string   `json:"phones_per_recipient"`
}

var validTargetGroups = map[string]bool{
	models.TargetAll:          true,
	models.TargetWithBalance:  true,
	models.TargetOverdue:      true,
	models.TargetDecline:      true,
	models.TargetRecentUpload: true,
	models.TargetFolder:       true,
}

// Create validates the payload, resolves the recipient population and
// persists the campaign in pending_approval. Validation or resolution
// failures reject the request before anything is written.
func (s *Service) Create(req CreateRequest) (*models.Campaign, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if req.Channel != models.ChannelEmail && req.Channel != models.ChannelSMS {
		return nil, fmt.Errorf("%w: unknown channel %q", ErrValidation, req.Channel)
	}
	if !validTargetGroups[req.TargetGroup] {
		return nil, fmt.Errorf("%w: %q", targeting.ErrUnknownTargetGroup, req.TargetGroup)
	}

	tmpl, err := s.templates.GetByID(req.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	if tmpl == nil || tmpl.TenantID != req.TenantID {
		return nil, fmt.Errorf("%w: template not found", ErrValidation)
	}
	if tmpl.Channel != req.Channel {
		return nil, fmt.Errorf("%w: template channel %q does not match campaign channel %q", ErrValidation, tmpl.Channel, req.Channel)
	}

	recipients, err := s.resolver.Resolve(targeting.Request{
		TenantID:           req.TenantID,
		Channel:            req.Channel,
		TargetGroup:        req.TargetGroup,
		FolderIDs:          req.FolderIDs,
		PhonesPerRecipient: req.PhonesPerRecipient,
	})
	if err != nil {
		return nil, err
	}

	c := &models.Campaign{
		TenantID:           req.TenantID,
		TemplateID:         req.TemplateID,
		Name:               req.Name,
		Channel:            req.Channel,
		TargetGroup:        req.TargetGroup,
		FolderIDs:          req.FolderIDs,
		PhonesPerRecipient: req.PhonesPerRecipient,
		TotalRecipients:    len(recipients),
	}
	if err := s.campaigns.Create(c); err != nil {
		return nil, err
	}

	s.logger.Info("campaign created",
		"campaign_id", c.ID,
		"tenant_id", c.TenantID,
		"channel", c.Channel,
		"target_group", c.TargetGroup,
		"recipients", c.TotalRecipients,
	)

	return c, nil
}

// Approve moves a campaign from pending_approval to sending, freezes
// the recipient list as a snapshot and starts dispatch in the
// background. Returns as soon as dispatch has started; progress is
// observed through Get.
func (s *Service) Approve(id string) (*models.Campaign, error) {
	c, err := s.campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	if models.NormalizeStatus(c.Status) != models.StatusPendingApproval {
		return nil, fmt.Errorf("%w: cannot approve campaign in status %q", ErrInvalidTransition, c.Status)
	}

	// Re-resolve at approval so the frozen list reflects consumer edits
	// and opt-outs recorded since creation.
	recipients, err := s.resolver.Resolve(targeting.Request{
		TenantID:           c.TenantID,
		Channel:            c.Channel,
		TargetGroup:        c.TargetGroup,
		FolderIDs:          c.FolderIDs,
		PhonesPerRecipient: c.PhonesPerRecipient,
	})
	if err != nil {
		return nil, err
	}

	// Freeze the list before flipping status. A capture failure here
	// leaves the campaign approvable again instead of stranding it in
	// sending with no dispatcher.
	if err := s.snapshots.Capture(id, recipients); err != nil {
		return nil, fmt.Errorf("failed to capture recipient snapshot: %w", err)
	}
	if len(recipients) != c.TotalRecipients {
		if err := s.campaigns.UpdateTotalRecipients(id, len(recipients)); err != nil {
			return nil, err
		}
	}

	ok, err := s.campaigns.TransitionStatus(id, models.StatusSending, models.StatusPendingApproval)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A concurrent approval won the race. The conditional update
		// makes double-approval a clean rejection instead of a double
		// send.
		return nil, fmt.Errorf("%w: cannot approve campaign in status %q", ErrInvalidTransition, c.Status)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[id] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.cancels, id)
			s.mu.Unlock()
			cancel()
		}()
		s.dispatch(ctx, id)
	}()

	s.logger.Info("campaign approved",
		"campaign_id", id,
		"tenant_id", c.TenantID,
		"recipients", len(recipients),
	)

	return s.campaigns.GetByID(id)
}

// Cancel requests cooperative cancellation of a sending campaign.
// Cancelling an already terminal campaign is a no-op; the counters keep
// whatever the race left them with.
func (s *Service) Cancel(id string) (*models.Campaign, error) {
	c, err := s.campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}

	if models.IsTerminal(c.Status) {
		return c, nil
	}
	if c.Status != models.StatusSending {
		return nil, fmt.Errorf("%w: cannot cancel campaign in status %q", ErrInvalidTransition, c.Status)
	}

	ok, err := s.campaigns.TransitionStatus(id, models.StatusCancelled, models.StatusSending)
	if err != nil {
		return nil, err
	}
	if ok {
		s.metrics.CampaignsFinishedTotal.WithLabelValues(models.StatusCancelled).Inc()
		if s.notifyFinished != nil {
			s.notifyFinished(c.TenantID)
		}
		s.logger.Info("campaign cancelled", "campaign_id", id)
	}

	// Signal the dispatcher. Messages already in flight complete; the
	// loop observes the token before starting its next batch.
	s.mu.Lock()
	if cancel, exists := s.cancels[id]; exists {
		cancel()
	}
	s.mu.Unlock()

	return s.campaigns.GetByID(id)
}

// Delete removes a campaign and its snapshot. A sending campaign is
// cancelled first so the dispatcher stops before the record disappears.
func (s *Service) Delete(id string) error {
	c, err := s.campaigns.GetByID(id)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrNotFound
	}

	if c.Status == models.StatusSending {
		if _, err := s.Cancel(id); err != nil {
			return err
		}
	}

	if err := s.snapshots.Delete(id); err != nil {
		return fmt.Errorf("failed to delete recipient snapshot: %w", err)
	}
	if err := s.campaigns.Delete(id); err != nil {
		return err
	}

	s.logger.Info("campaign deleted", "campaign_id", id)
	return nil
}

// Get returns a campaign with its live counters. This is the progress
// endpoint: a cheap single-row read safe to poll while dispatch runs.
func (s *Service) Get(id string) (*models.Campaign, error) {
	c, err := s.campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

// List returns a tenant's campaigns.
func (s *Service) List(filter models.CampaignListFilter) ([]models.Campaign, int, error) {
	return s.campaigns.List(filter)
}

// Deliveries returns a campaign's per-message delivery records in send
// order.
func (s *Service) Deliveries(id string, limit, offset int) ([]models.DeliveryRecord, int, error) {
	c, err := s.campaigns.GetByID(id)
	if err != nil {
		return nil, 0, err
	}
	if c == nil {
		return nil, 0, ErrNotFound
	}
	return s.deliveries.ListByCampaign(id, limit, offset)
}

// Preview renders a template against a synthetic sample recipient so
// operators can proof content before creating a campaign.
func (s *Service) Preview(tenantID, templateID string) (subject, body string, err error) {
	tmpl, err := s.templates.GetByID(templateID)
	if err != nil {
		return "", "", fmt.Errorf("failed to load template: %w", err)
	}
	if tmpl == nil || tmpl.TenantID != tenantID {
		return "", "", ErrNotFound
	}

	tenant, err := s.tenants.GetByID(tenantID)
	if err != nil {
		return "", "", err
	}

	bundle := sampleBundle(tenant, s.links)
	vars := bundle.Vars()

	subject = render.Render(tmpl.Subject, vars)
	body = render.Render(tmpl.Body, vars)
	if tmpl.Channel == models.ChannelEmail {
		body = render.NormalizeHTML(body)
	} else if render.LooksLikeHTML(body) {
		body = render.HTMLToText(body)
	}
	return subject, body, nil
}

// sampleBundle fabricates a plausible recipient for previews.
func sampleBundle(tenant *models.Tenant, links *render.LinkResolver) render.EntityBundle {
	due := time.Now().AddDate(0, 0, 14)
	return render.EntityBundle{
		Consumer: &models.Consumer{
			FirstName: "Jane",
			LastName:  "Sample",
			Email:     "jane.sample@example.com",
			Phone:     "+15555550100",
		},
		Account: &models.Account{
			AccountNumber: "ACCT-0001",
			BalanceCents:  123456,
			DueDate:       &due,
			Status:        models.AccountStatusOpen,
		},
		Tenant:    tenant,
		PortalURL: links.PortalURL(tenant),
	}
}

// Shutdown cancels every running dispatch and waits for the loops to
// observe the cancellation.
func (s *Service) Shutdown() {
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

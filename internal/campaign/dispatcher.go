package campaign

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pelora/outreach/internal/models"
	"github.com/pelora/outreach/internal/render"
	"github.com/pelora/outreach/internal/transport"
)

// recipientResult classifies one recipient after all of its addresses
// were attempted. Counters track recipients, not individual messages,
// so SMS fan-out never pushes totalSent past totalRecipients.
type recipientResult struct {
	sent   bool
	failed bool
	optOut bool
	fatal  bool
}

// dispatch walks the frozen recipient list in batches until the list is
// exhausted, the run is cancelled or a fatal transport error aborts it.
// It is the only writer of the sent/error/opt-out counters.
func (s *Service) dispatch(ctx context.Context, campaignID string) {
	logger := s.logger.With("campaign_id", campaignID)
	start := time.Now()

	s.metrics.CampaignsActive.Inc()
	defer s.metrics.CampaignsActive.Dec()
	defer func() {
		s.metrics.DispatchDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	c, err := s.campaigns.GetByID(campaignID)
	if err != nil || c == nil {
		logger.Error("failed to load campaign for dispatch", "error", err)
		return
	}

	// The snapshot captured at approval is the source of truth for this
	// run; consumer edits after approval never change the target list.
	recipients, err := s.snapshots.Get(campaignID)
	if err != nil {
		logger.Error("failed to load recipient snapshot", "error", err)
		s.finish(c, models.StatusFailed, logger)
		return
	}
	if recipients == nil {
		logger.Error("recipient snapshot missing")
		s.finish(c, models.StatusFailed, logger)
		return
	}

	sender, err := s.senders.ForChannel(c.Channel)
	if err != nil {
		logger.Error("no transport for campaign channel", "channel", c.Channel, "error", err)
		s.finish(c, models.StatusFailed, logger)
		return
	}

	// Template and tenant are pinned once per run. Edits made while the
	// campaign sends only affect future campaigns.
	tmpl, err := s.templates.GetByID(c.TemplateID)
	if err != nil || tmpl == nil {
		logger.Error("failed to load template for dispatch", "error", err)
		s.finish(c, models.StatusFailed, logger)
		return
	}
	tenant, err := s.tenants.GetByID(c.TenantID)
	if err != nil {
		logger.Error("failed to load tenant for dispatch", "error", err)
		s.finish(c, models.StatusFailed, logger)
		return
	}
	portalURL := s.links.PortalURL(tenant)

	limiter := rate.NewLimiter(rate.Every(s.opts.BatchInterval), 1)

	consecutiveFailures := 0

	for offset := 0; offset < len(recipients); offset += s.opts.BatchSize {
		// The limiter's burst token covers the first batch; every later
		// batch pays the full interval.
		if err := limiter.Wait(ctx); err != nil {
			logger.Info("dispatch cancelled between batches")
			return
		}

		// Re-read status before every batch so an external cancel (or a
		// lost record) stops the loop even if the token was missed.
		current, err := s.campaigns.GetByID(campaignID)
		if err != nil {
			logger.Error("failed to re-check campaign status", "error", err)
			return
		}
		if current == nil || models.IsTerminal(current.Status) {
			logger.Info("dispatch stopped, campaign no longer sending")
			return
		}
		if ctx.Err() != nil {
			logger.Info("dispatch cancelled")
			return
		}

		end := offset + s.opts.BatchSize
		if end > len(recipients) {
			end = len(recipients)
		}
		batch := recipients[offset:end]

		delta, fatal := s.processBatch(ctx, c, tmpl, tenant, portalURL, sender, batch, &consecutiveFailures)
		s.metrics.DispatchBatchesTotal.Inc()

		if err := s.campaigns.IncrementCounters(campaignID, delta); err != nil {
			logger.Error("failed to persist batch counters", "error", err)
		}

		if fatal {
			logger.Error("aborting dispatch after fatal transport error",
				"sent_so_far", offset+len(batch),
			)
			s.finish(c, models.StatusFailed, logger)
			return
		}
	}

	s.finish(c, models.StatusCompleted, logger)
}

// finish moves the campaign to a terminal state. The conditional
// transition loses quietly to a concurrent cancel, which then owns the
// terminal status.
func (s *Service) finish(c *models.Campaign, status string, logger *slog.Logger) {
	ok, err := s.campaigns.TransitionStatus(c.ID, status, models.StatusSending)
	if err != nil {
		s.logger.Error("failed to finish campaign", "campaign_id", c.ID, "status", status, "error", err)
		return
	}
	if ok {
		s.metrics.CampaignsFinishedTotal.WithLabelValues(status).Inc()
		if s.notifyFinished != nil {
			s.notifyFinished(c.TenantID)
		}
		logger.Info("campaign finished", "status", status)
	}
}

// processBatch sends to one batch of recipients with bounded
// concurrency and folds the per-recipient outcomes into a counter
// delta. fatal is set when any send hit a credentials rejection or the
// consecutive-failure threshold tripped.
func (s *Service) processBatch(
	ctx context.Context,
	c *models.Campaign,
	tmpl *models.Template,
	tenant *models.Tenant,
	portalURL string,
	sender transport.Sender,
	batch []models.Recipient,
	consecutiveFailures *int,
) (models.CounterDelta, bool) {
	results := make([]recipientResult, len(batch))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.opts.Concurrency)

	for i := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = s.sendToRecipient(ctx, c, tmpl, tenant, portalURL, sender, &batch[i])
		}(i)
	}
	wg.Wait()

	var delta models.CounterDelta
	fatal := false

	// Results are folded in batch order so the consecutive-failure
	// window stays deterministic regardless of goroutine scheduling.
	for _, r := range results {
		switch {
		case r.optOut:
			delta.OptOuts++
			s.metrics.MessagesOptOutTotal.WithLabelValues(c.Channel).Inc()
		case r.sent:
			delta.Sent++
			s.metrics.MessagesSentTotal.WithLabelValues(c.Channel).Inc()
			*consecutiveFailures = 0
		case r.failed:
			delta.Errors++
			s.metrics.MessagesFailedTotal.WithLabelValues(c.Channel).Inc()
			*consecutiveFailures++
		}
		if r.fatal || *consecutiveFailures >= s.opts.FatalErrorThreshold {
			fatal = true
		}
	}

	return delta, fatal
}

// sendToRecipient renders and sends to every address of one recipient.
// The recipient counts as sent when at least one address went out, as
// an error when every address failed, and each attempted address leaves
// its own delivery record.
func (s *Service) sendToRecipient(
	ctx context.Context,
	c *models.Campaign,
	tmpl *models.Template,
	tenant *models.Tenant,
	portalURL string,
	sender transport.Sender,
	recipient *models.Recipient,
) recipientResult {
	var res recipientResult

	// Re-check opt-outs at send time: a consumer who opted out between
	// approval and this batch is suppressed, not messaged.
	optedOut, err := s.optOuts.IsOptedOut(recipient.ConsumerID, c.Channel)
	if err != nil {
		s.logger.Error("failed to check opt-out",
			"campaign_id", c.ID, "consumer_id", recipient.ConsumerID, "error", err)
	}
	if optedOut {
		res.optOut = true
		s.recordDelivery(c, recipient.ConsumerID, firstAddress(recipient), "", models.OutcomeOptOut, "")
		return res
	}

	subject, body, text := s.renderMessage(c, tmpl, tenant, portalURL, recipient)

	for _, address := range recipient.Addresses {
		msg := &transport.Message{
			To:      address,
			Subject: subject,
			Body:    body,
			Text:    text,
			Metadata: map[string]string{
				"campaign_id": c.ID,
				"tenant_id":   c.TenantID,
			},
		}

		messageID, err := sender.Send(ctx, msg)
		if err != nil {
			if errors.Is(err, transport.ErrCredentialsRejected) {
				res.fatal = true
			}
			s.logger.Warn("send failed",
				"campaign_id", c.ID, "consumer_id", recipient.ConsumerID, "error", err)
			s.recordDelivery(c, recipient.ConsumerID, address, "", models.OutcomeError, err.Error())
			res.failed = true
			continue
		}

		s.recordDelivery(c, recipient.ConsumerID, address, messageID, models.OutcomeSent, "")
		res.sent = true
	}

	if res.sent {
		res.failed = false
	}
	return res
}

// renderMessage produces the channel-appropriate subject and bodies for
// one recipient.
func (s *Service) renderMessage(
	c *models.Campaign,
	tmpl *models.Template,
	tenant *models.Tenant,
	portalURL string,
	recipient *models.Recipient,
) (subject, body, text string) {
	bundle := render.EntityBundle{
		Tenant:    tenant,
		PortalURL: portalURL,
	}

	consumer, err := s.consumers.GetByID(recipient.ConsumerID)
	if err != nil {
		s.logger.Error("failed to load consumer for rendering",
			"campaign_id", c.ID, "consumer_id", recipient.ConsumerID, "error", err)
	}
	bundle.Consumer = consumer

	if recipient.AccountID != "" {
		account, err := s.consumers.GetAccount(recipient.AccountID)
		if err != nil {
			s.logger.Error("failed to load account for rendering",
				"campaign_id", c.ID, "account_id", recipient.AccountID, "error", err)
		}
		bundle.Account = account
	}

	vars := bundle.Vars()
	subject = render.Render(tmpl.Subject, vars)
	body = render.Render(tmpl.Body, vars)

	if c.Channel == models.ChannelEmail {
		body = render.NormalizeHTML(body)
		text = render.HTMLToText(body)
	} else if render.LooksLikeHTML(body) {
		body = render.HTMLToText(body)
	}
	return subject, body, text
}

func (s *Service) recordDelivery(c *models.Campaign, consumerID, address, messageID, outcome, errMsg string) {
	err := s.deliveries.Create(&models.DeliveryRecord{
		CampaignID: c.ID,
		TenantID:   c.TenantID,
		ConsumerID: consumerID,
		Address:    address,
		MessageID:  messageID,
		Outcome:    outcome,
		Error:      errMsg,
	})
	if err != nil {
		s.logger.Error("failed to record delivery",
			"campaign_id", c.ID, "consumer_id", consumerID, "error", err)
	}
}

func firstAddress(r *models.Recipient) string {
	if len(r.Addresses) == 0 {
		return ""
	}
	return r.Addresses[0]
}

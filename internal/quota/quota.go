package quota

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/pelora/outreach/internal/repository"
)

// Usage is a tenant's billable send count for one calendar month.
// Error and opt-out rows never bill; callback upgrades (delivered,
// opened, clicked) still count as the single original send.
type Usage struct {
	TenantID    string    `json:"tenant_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Sends       int       `json:"sends"`
}

// Service answers usage queries from delivery records, with a short TTL
// cache in front so dashboards polling the quota endpoint do not hammer
// the count query.
type Service struct {
	deliveries *repository.DeliveryRepository
	cache      *gocache.Cache
}

func New(deliveries *repository.DeliveryRepository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{
		deliveries: deliveries,
		cache:      gocache.New(ttl, 2*ttl),
	}
}

// CurrentUsage returns the tenant's sends for the current calendar
// month (UTC).
func (s *Service) CurrentUsage(tenantID string) (*Usage, error) {
	now := time.Now().UTC()
	return s.UsageForMonth(tenantID, now.Year(), now.Month())
}

// UsageForMonth returns the tenant's sends for one calendar month.
func (s *Service) UsageForMonth(tenantID string, year int, month time.Month) (*Usage, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	key := tenantID + "/" + from.Format("2006-01")
	if cached, found := s.cache.Get(key); found {
		return cached.(*Usage), nil
	}

	sends, err := s.deliveries.CountSentInPeriod(tenantID, from, to)
	if err != nil {
		return nil, err
	}

	u := &Usage{
		TenantID:    tenantID,
		PeriodStart: from,
		PeriodEnd:   to,
		Sends:       sends,
	}
	s.cache.Set(key, u, gocache.DefaultExpiration)
	return u, nil
}

// Invalidate drops a tenant's cached usage for the current month.
// Called after a backfill or manual correction so the next read is
// fresh.
func (s *Service) Invalidate(tenantID string) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	s.cache.Delete(tenantID + "/" + from.Format("2006-01"))
}

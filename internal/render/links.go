package render

import (
	"strings"

	"github.com/pelora/outreach/internal/models"
)

// LinkResolver builds consumer portal deep links. All portal variables
// resolve their base URL here rather than per caller.
type LinkResolver struct {
	defaultOrigin string
}

func NewLinkResolver(defaultOrigin string) *LinkResolver {
	return &LinkResolver{defaultOrigin: strings.TrimRight(defaultOrigin, "/")}
}

// PortalURL returns the portal entry point for a tenant: the tenant's
// own origin when configured, otherwise the platform default plus the
// tenant slug.
func (l *LinkResolver) PortalURL(tenant *models.Tenant) string {
	if tenant == nil {
		return l.defaultOrigin
	}
	if tenant.PortalOrigin != "" {
		return strings.TrimRight(tenant.PortalOrigin, "/")
	}
	if tenant.Slug == "" {
		return l.defaultOrigin
	}
	return l.defaultOrigin + "/" + tenant.Slug
}

package render

import (
	"fmt"
	"math"
	"strconv"

	"github.com/pelora/outreach/internal/models"
)

// Settlement offer percentages, each exposed as a balanceNN variable
// holding the discounted amount formatted as currency.
var settlementPercentages = []int{50, 60, 70, 80, 90, 100}

// EntityBundle is the per-recipient context a template renders against.
// Any field may be nil; absent entities simply contribute no variables.
type EntityBundle struct {
	Consumer  *models.Consumer
	Account   *models.Account
	Tenant    *models.Tenant
	PortalURL string
}

// Vars assembles the variable map with fixed precedence: consumer fields,
// then account fields, then tenant branding, then computed derived
// fields, then free-form metadata. Metadata is applied last and cannot
// displace a built-in that already set the same name; a custom key
// sharing a built-in's name therefore has no effect. Keys are stored
// lower-cased to back case-insensitive token lookup.
func (b EntityBundle) Vars() map[string]string {
	vars := map[string]string{}

	set := func(key, value string) {
		vars[normalizeKey(key)] = value
	}

	if c := b.Consumer; c != nil {
		set("firstName", c.FirstName)
		set("lastName", c.LastName)
		set("fullName", joinName(c.FirstName, c.LastName))
		set("email", c.Email)
		set("phone", c.Phone)
	}

	if a := b.Account; a != nil {
		set("accountNumber", a.AccountNumber)
		set("accountStatus", a.Status)
	}

	if t := b.Tenant; t != nil {
		set("agencyName", t.Name)
		set("agencyEmail", t.Email)
		set("agencyPhone", t.Phone)
		set("agencyAddress", t.Address)
	}

	// Computed derived fields
	if a := b.Account; a != nil {
		set("balance", FormatCents(&a.BalanceCents))
		set("balanceCents", strconv.FormatInt(a.BalanceCents, 10))

		if a.DueDate != nil {
			set("dueDate", a.DueDate.Format("January 2, 2006"))
			set("dueDateISO", a.DueDate.Format("2006-01-02"))
		} else {
			set("dueDate", "")
			set("dueDateISO", "")
		}

		for _, pct := range settlementPercentages {
			amount := int64(math.Round(float64(a.BalanceCents) * float64(pct) / 100))
			set(fmt.Sprintf("balance%d", pct), FormatCents(&amount))
		}
	}

	set("portalLink", b.PortalURL)

	// Free-form metadata last: custom keys fill gaps, built-ins win on
	// name collisions.
	setCustom := func(m map[string]string) {
		for k, v := range m {
			key := normalizeKey(k)
			if _, exists := vars[key]; !exists {
				vars[key] = v
			}
		}
	}
	if b.Account != nil {
		setCustom(b.Account.Metadata)
	}
	if b.Consumer != nil {
		setCustom(b.Consumer.Metadata)
	}

	return vars
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}

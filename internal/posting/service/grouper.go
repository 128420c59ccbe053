package service

import (
	profiledomain "github.com/wunderling/tutorledger/internal/profile/domain"
	sessiondomain "github.com/wunderling/tutorledger/internal/session/domain"
)

// resolvedSession couples one postable session with its billing inputs
// after customer resolution succeeded.
type resolvedSession struct {
	session      sessiondomain.Session
	profile      profiledomain.BillingProfile
	customerID   string
	customerName string
}

// group collects every resolved session billed to one ledger customer.
// One group becomes one invoice.
type group struct {
	customerID   string
	customerName string
	entries      []resolvedSession
}

// buildGroups partitions resolved sessions per ledger customer. Group
// order follows first appearance so runs over the same selection produce
// the same report.
func buildGroups(entries []resolvedSession) []*group {
	byCustomer := make(map[string]*group, len(entries))
	ordered := make([]*group, 0, len(entries))

	for _, entry := range entries {
		g, ok := byCustomer[entry.customerID]
		if !ok {
			g = &group{
				customerID:   entry.customerID,
				customerName: entry.customerName,
			}
			byCustomer[entry.customerID] = g
			ordered = append(ordered, g)
		}
		g.entries = append(g.entries, entry)
	}

	return ordered
}

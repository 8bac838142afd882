package domain

import (
	cancellationdomain "github.com/lessonworks/billing/internal/cancellation/domain"
	invoicedomain "github.com/lessonworks/billing/internal/invoice/domain"
	"github.com/lessonworks/billing/internal/period"
	sessiondomain "github.com/lessonworks/billing/internal/session/domain"
	subscriptiondomain "github.com/lessonworks/billing/internal/subscription/domain"
)

// SessionLookup resolves a session id to the session record. The caller
// already holds the period's sessions in memory; nil means unresolvable.
type SessionLookup func(id string) *sessiondomain.Session

// Service exposes the pure contribution calculators. Each calculator
// filters its own input, collects every ambiguity it finds instead of
// stopping at the first, and performs no I/O.
type Service interface {
	SessionContribution(p period.Period, customerID string, sessions []sessiondomain.Session) (SessionContribution, []MissingDataItem)
	CancellationContribution(p period.Period, customerID string, cancellations []cancellationdomain.Cancellation, lookup SessionLookup) (CancellationContribution, []MissingDataItem)
	SubscriptionContribution(p period.Period, subscriptions []subscriptiondomain.Subscription) (SubscriptionContribution, []MissingDataItem)
	ResolveStatus(paid bool, pendingCancellations int) invoicedomain.Status
}

package service

import (
	"fmt"
	"strconv"
	"strings"

	cancellationdomain "github.com/lessonworks/billing/internal/cancellation/domain"
	"github.com/lessonworks/billing/internal/config"
	invoicedomain "github.com/lessonworks/billing/internal/invoice/domain"
	"github.com/lessonworks/billing/internal/period"
	ratingdomain "github.com/lessonworks/billing/internal/rating/domain"
	sessiondomain "github.com/lessonworks/billing/internal/session/domain"
	subscriptiondomain "github.com/lessonworks/billing/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log     *zap.Logger
	Billing *config.BillingConfigHolder
}

type Service struct {
	log     *zap.Logger
	billing *config.BillingConfigHolder
}

func NewService(p ServiceParam) ratingdomain.Service {
	return &Service{
		log:     p.Log.Named("rating.service"),
		billing: p.Billing,
	}
}

// SessionContribution reduces the period's sessions for one customer into a
// billable sub-total. Only solo-category sessions in a billable state carry
// a per-session charge; duo and group sessions are covered, if at all, by a
// subscription. Ambiguities are collected across the whole input, never
// short-circuited.
func (s *Service) SessionContribution(p period.Period, customerID string, sessions []sessiondomain.Session) (ratingdomain.SessionContribution, []ratingdomain.MissingDataItem) {
	unitPrice := s.billing.Get().SoloUnitPrice

	var out ratingdomain.SessionContribution
	var missing []ratingdomain.MissingDataItem
	for _, sess := range sessions {
		if !sess.InPeriod(p) {
			continue
		}
		state := sessiondomain.ClassifyState(sess.State)
		if state.IsCancellationState() {
			continue
		}
		if !state.IsBillable() {
			continue
		}
		if !sess.BelongsTo(customerID) {
			continue
		}
		category := sessiondomain.ClassifyCategory(sess.Category)
		if len(sess.CustomerIDs) > 1 {
			// A solo session split across customers has no defined charge
			// owner. Duo/group records legitimately list several customers
			// and contribute nothing per session, so those pass silently.
			if category == sessiondomain.CategorySolo {
				missing = append(missing, ratingdomain.MissingDataItem{
					Table:     "sessions",
					Field:     "customer",
					WhyNeeded: fmt.Sprintf("session %s is category solo but linked to %d customers; the charge cannot be split automatically", sess.ID, len(sess.CustomerIDs)),
					ExampleValues: []string{
						fmt.Sprintf("keep only customer %s", customerID),
						"change category to duo",
					},
				})
			}
			continue
		}
		if category != sessiondomain.CategorySolo {
			continue
		}
		charge := unitPrice
		if sess.ChargeOverride != nil {
			charge = *sess.ChargeOverride
		}
		out.Total += charge
		out.Count++
	}
	return out, missing
}

// CancellationContribution reduces the period's cancellations for one
// customer. Only late (less-than-24h) cancellations are chargeable;
// unapproved ones are counted as pending and excluded from the total. The
// charge resolves from the explicit amount, then from the linked session's
// category, and otherwise becomes a missing-data item.
func (s *Service) CancellationContribution(p period.Period, customerID string, cancellations []cancellationdomain.Cancellation, lookup ratingdomain.SessionLookup) (ratingdomain.CancellationContribution, []ratingdomain.MissingDataItem) {
	unitPrice := s.billing.Get().SoloUnitPrice

	var out ratingdomain.CancellationContribution
	var missing []ratingdomain.MissingDataItem
	for _, c := range cancellations {
		if strings.TrimSpace(c.Period) != p.String() {
			continue
		}
		if c.CustomerID != customerID {
			continue
		}
		if !c.LessThan24h {
			continue
		}
		if !c.ChargeApproved {
			out.PendingCount++
			continue
		}
		if c.Charge != nil {
			out.Total += *c.Charge
			out.Count++
			continue
		}

		var linked *sessiondomain.Session
		if c.SessionID != "" && lookup != nil {
			linked = lookup(c.SessionID)
		}
		if linked == nil {
			missing = append(missing, ratingdomain.MissingDataItem{
				Table:     "cancellations",
				Field:     "charge",
				WhyNeeded: fmt.Sprintf("cancellation %s has no explicit charge and no resolvable linked session to infer one from", c.ID),
				ExampleValues: []string{
					strconv.FormatFloat(unitPrice, 'f', -1, 64),
					"0",
				},
			})
			continue
		}

		switch sessiondomain.ClassifyCategory(linked.Category) {
		case sessiondomain.CategorySolo:
			out.Total += unitPrice
			out.Count++
		case sessiondomain.CategoryDuo, sessiondomain.CategoryGroup:
			// Covered by the subscription; the cancellation itself costs
			// nothing but still counts as activity.
			out.Count++
		default:
			missing = append(missing, ratingdomain.MissingDataItem{
				Table:     "sessions",
				Field:     "category",
				WhyNeeded: fmt.Sprintf("session %s linked from cancellation %s has unrecognized category %q, so the cancellation charge cannot be inferred", linked.ID, c.ID, linked.Category),
				ExampleValues: []string{"solo", "duo", "group"},
			})
		}
	}
	return out, missing
}

// SubscriptionContribution sums the monthly amounts of the subscriptions
// active in the period. Two or more active subscriptions with overlapping
// date ranges is an ambiguity the operator must resolve; the engine never
// sums them blindly.
func (s *Service) SubscriptionContribution(p period.Period, subscriptions []subscriptiondomain.Subscription) (ratingdomain.SubscriptionContribution, []ratingdomain.MissingDataItem) {
	var active []subscriptiondomain.Subscription
	for _, sub := range subscriptions {
		if sub.ActiveInMonth(p) {
			active = append(active, sub)
		}
	}

	if len(active) > 1 {
		for i := 0; i < len(active); i++ {
			for j := i + 1; j < len(active); j++ {
				if active[i].Overlaps(active[j]) {
					ids := make([]string, 0, len(active))
					for _, sub := range active {
						ids = append(ids, sub.ID)
					}
					missing := []ratingdomain.MissingDataItem{{
						Table:     "subscriptions",
						Field:     "end_at",
						WhyNeeded: fmt.Sprintf("customer has %d overlapping subscriptions active in %s (%s); decide whether to end one, pause one, or merge the amounts", len(active), p, strings.Join(ids, ", ")),
						ExampleValues: []string{
							"set end_at so the ranges no longer overlap",
							"set paused on the superseded subscription",
						},
					}}
					return ratingdomain.SubscriptionContribution{}, missing
				}
			}
		}
	}

	var out ratingdomain.SubscriptionContribution
	for _, sub := range active {
		out.Total += sub.MonthlyAmount.Float64()
		out.ActiveCount++
	}
	return out, nil
}

// ResolveStatus derives the invoice status in fixed priority order: the
// persisted paid flag is sticky and wins, then pending cancellations hold
// the invoice at pending_approval, otherwise it is approved.
func (s *Service) ResolveStatus(paid bool, pendingCancellations int) invoicedomain.Status {
	if paid {
		return invoicedomain.StatusPaid
	}
	if pendingCancellations > 0 {
		return invoicedomain.StatusPendingApproval
	}
	return invoicedomain.StatusApproved
}

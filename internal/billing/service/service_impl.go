// Package service implements the billing orchestrator and the batch runner.
package service

import (
	"context"
	"fmt"

	billingdomain "github.com/lessonworks/billing/internal/billing/domain"
	cancellationdomain "github.com/lessonworks/billing/internal/cancellation/domain"
	"github.com/lessonworks/billing/internal/config"
	customerdomain "github.com/lessonworks/billing/internal/customer/domain"
	invoicedomain "github.com/lessonworks/billing/internal/invoice/domain"
	obsmetrics "github.com/lessonworks/billing/internal/observability/metrics"
	"github.com/lessonworks/billing/internal/period"
	ratingdomain "github.com/lessonworks/billing/internal/rating/domain"
	"github.com/lessonworks/billing/internal/recordstore"
	sessiondomain "github.com/lessonworks/billing/internal/session/domain"
	subscriptiondomain "github.com/lessonworks/billing/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Store   recordstore.Store
	Rating  ratingdomain.Service
	Metrics *obsmetrics.BillingMetrics `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	store       recordstore.Store
	rating      ratingdomain.Service
	metrics     *obsmetrics.BillingMetrics
	concurrency int
}

func NewService(p ServiceParam) billingdomain.Service {
	concurrency := p.Config.SchedulerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Service{
		log:         p.Log.Named("billing.service"),
		store:       p.Store,
		rating:      p.Rating,
		metrics:     p.Metrics,
		concurrency: concurrency,
	}
}

// BillCustomer bills one customer for one period and performs the
// idempotent upsert. The invariant that matters most: a (customer, period)
// pair with two or more existing invoices is never written to.
func (s *Service) BillCustomer(ctx context.Context, req billingdomain.BillRequest) (billingdomain.BillOutcome, error) {
	p, err := period.Parse(string(req.Period))
	if err != nil {
		return billingdomain.BillOutcome{}, err
	}

	customer, err := s.resolveCustomer(ctx, req)
	if err != nil {
		return billingdomain.BillOutcome{}, err
	}

	sessions, cancellations, subscriptions, err := s.resolveActivity(ctx, req, p)
	if err != nil {
		return billingdomain.BillOutcome{}, fmt.Errorf("fetch activity for customer %s: %w", customer.ID, err)
	}

	outcome := billingdomain.BillOutcome{
		CustomerID: customer.ID,
		Period:     p,
	}

	var ownSubscriptions []subscriptiondomain.Subscription
	for _, sub := range subscriptions {
		if sub.CustomerID == customer.ID {
			ownSubscriptions = append(ownSubscriptions, sub)
		}
	}

	subContribution, subMissing := s.rating.SubscriptionContribution(p, ownSubscriptions)
	sessContribution, sessMissing := s.rating.SessionContribution(p, customer.ID, sessions)
	canContribution, canMissing := s.rating.CancellationContribution(p, customer.ID, cancellations, sessionLookup(sessions))

	outcome.Sessions = sessContribution
	outcome.Cancellations = canContribution
	outcome.Subscriptions = subContribution

	var missing []ratingdomain.MissingDataItem
	missing = append(missing, sessMissing...)
	missing = append(missing, canMissing...)
	missing = append(missing, subMissing...)
	if len(missing) > 0 {
		outcome.Kind = billingdomain.OutcomeMissingBusinessData
		outcome.MissingData = missing
		return outcome, nil
	}

	if !ratingdomain.HasActivity(sessContribution, canContribution, subContribution) {
		outcome.Kind = billingdomain.OutcomeNoBillableData
		return outcome, nil
	}

	outcome.Total = ratingdomain.Total(sessContribution, canContribution, subContribution)

	existing, err := s.resolveInvoices(ctx, req, customer.ID, p)
	if err != nil {
		return billingdomain.BillOutcome{}, fmt.Errorf("list invoices for customer %s: %w", customer.ID, err)
	}

	switch len(existing) {
	case 0:
		invoice := invoicedomain.Invoice{
			CustomerID:         customer.ID,
			Period:             p.String(),
			Status:             s.rating.ResolveStatus(false, canContribution.PendingCount),
			ApprovedForBilling: canContribution.PendingCount == 0,
			SessionsTotal:      sessContribution.Total,
			SessionsCount:      sessContribution.Count,
			CancellationsTotal: canContribution.Total,
			SubscriptionsTotal: subContribution.Total,
			Total:              outcome.Total,
		}
		if err := s.store.CreateInvoice(ctx, &invoice); err != nil {
			return billingdomain.BillOutcome{}, fmt.Errorf("create invoice for customer %s: %w", customer.ID, err)
		}
		outcome.Kind = billingdomain.OutcomeSuccess
		outcome.Created = true
		outcome.InvoiceID = invoice.ID
		outcome.Status = invoice.Status
		s.metrics.IncInvoiceCreated()

	case 1:
		// Recompute engine-derived fields only. The paid/approved/link-sent
		// flags and the manual-adjustment fields are operator-owned and
		// carried forward verbatim.
		invoice := existing[0]
		invoice.SessionsTotal = sessContribution.Total
		invoice.SessionsCount = sessContribution.Count
		invoice.CancellationsTotal = canContribution.Total
		invoice.SubscriptionsTotal = subContribution.Total
		invoice.Total = outcome.Total
		invoice.Status = s.rating.ResolveStatus(invoice.Paid, canContribution.PendingCount)
		if err := s.store.UpdateInvoice(ctx, &invoice); err != nil {
			return billingdomain.BillOutcome{}, fmt.Errorf("update invoice %s: %w", invoice.ID, err)
		}
		outcome.Kind = billingdomain.OutcomeSuccess
		outcome.Updated = true
		outcome.InvoiceID = invoice.ID
		outcome.Status = invoice.Status
		s.metrics.IncInvoiceUpdated()

	default:
		ids := make([]string, 0, len(existing))
		for _, inv := range existing {
			ids = append(ids, inv.ID)
		}
		s.log.Error("duplicate invoices detected",
			zap.String("customer_id", customer.ID),
			zap.String("period", p.String()),
			zap.Strings("invoice_ids", ids),
		)
		return billingdomain.BillOutcome{}, &billingdomain.DuplicateInvoiceError{
			CustomerID: customer.ID,
			Period:     p,
			InvoiceIDs: ids,
		}
	}

	return outcome, nil
}

func (s *Service) resolveCustomer(ctx context.Context, req billingdomain.BillRequest) (customerdomain.Customer, error) {
	if req.Preloaded != nil && req.Preloaded.Customer != nil {
		return *req.Preloaded.Customer, nil
	}
	return s.store.GetCustomer(ctx, req.CustomerID)
}

func (s *Service) resolveActivity(ctx context.Context, req billingdomain.BillRequest, p period.Period) ([]sessiondomain.Session, []cancellationdomain.Cancellation, []subscriptiondomain.Subscription, error) {
	if req.Preloaded != nil {
		return req.Preloaded.Sessions, req.Preloaded.Cancellations, req.Preloaded.Subscriptions, nil
	}
	sessions, err := s.store.ListSessions(ctx, p)
	if err != nil {
		return nil, nil, nil, err
	}
	cancellations, err := s.store.ListCancellations(ctx, p)
	if err != nil {
		return nil, nil, nil, err
	}
	subscriptions, err := s.store.ListSubscriptions(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	return sessions, cancellations, subscriptions, nil
}

func (s *Service) resolveInvoices(ctx context.Context, req billingdomain.BillRequest, customerID string, p period.Period) ([]invoicedomain.Invoice, error) {
	if req.Preloaded != nil {
		return req.Preloaded.Invoices, nil
	}
	return s.store.ListInvoices(ctx, customerID, p)
}

func sessionLookup(sessions []sessiondomain.Session) ratingdomain.SessionLookup {
	index := make(map[string]sessiondomain.Session, len(sessions))
	for _, sess := range sessions {
		index[sess.ID] = sess
	}
	return func(id string) *sessiondomain.Session {
		if sess, ok := index[id]; ok {
			return &sess
		}
		return nil
	}
}

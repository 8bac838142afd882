package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	billingdomain "github.com/lessonworks/billing/internal/billing/domain"
	cancellationdomain "github.com/lessonworks/billing/internal/cancellation/domain"
	customerdomain "github.com/lessonworks/billing/internal/customer/domain"
	invoicedomain "github.com/lessonworks/billing/internal/invoice/domain"
	"github.com/lessonworks/billing/internal/period"
	sessiondomain "github.com/lessonworks/billing/internal/session/domain"
	subscriptiondomain "github.com/lessonworks/billing/internal/subscription/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// activityIndex groups one period's records by customer id. It is built
// once per run and read-only afterwards; a session listing several
// customers is indexed under each of them.
type activityIndex struct {
	sessions      map[string][]sessiondomain.Session
	cancellations map[string][]cancellationdomain.Cancellation
	subscriptions map[string][]subscriptiondomain.Subscription
	invoices      map[string][]invoicedomain.Invoice
}

func buildActivityIndex(
	sessions []sessiondomain.Session,
	cancellations []cancellationdomain.Cancellation,
	subscriptions []subscriptiondomain.Subscription,
	invoices []invoicedomain.Invoice,
) *activityIndex {
	idx := &activityIndex{
		sessions:      make(map[string][]sessiondomain.Session),
		cancellations: make(map[string][]cancellationdomain.Cancellation),
		subscriptions: make(map[string][]subscriptiondomain.Subscription),
		invoices:      make(map[string][]invoicedomain.Invoice),
	}
	for _, sess := range sessions {
		for _, customerID := range sess.CustomerIDs {
			idx.sessions[customerID] = append(idx.sessions[customerID], sess)
		}
	}
	for _, c := range cancellations {
		idx.cancellations[c.CustomerID] = append(idx.cancellations[c.CustomerID], c)
	}
	for _, sub := range subscriptions {
		idx.subscriptions[sub.CustomerID] = append(idx.subscriptions[sub.CustomerID], sub)
	}
	for _, inv := range invoices {
		idx.invoices[inv.CustomerID] = append(idx.invoices[inv.CustomerID], inv)
	}
	return idx
}

// RunPeriod bills every active customer for the period. All activity is
// fetched once up front instead of once per customer. Customers are
// independent, so the fan-out is parallel with a bounded limit; cancelling
// the batch context stops scheduling new customers while letting in-flight
// ones finish, so no customer is left with a partial read-modify-write.
func (s *Service) RunPeriod(ctx context.Context, p period.Period) (billingdomain.BatchSummary, error) {
	start := time.Now()
	summary := billingdomain.BatchSummary{
		RunID:  uuid.NewString(),
		Period: p,
	}

	if _, err := period.Parse(p.String()); err != nil {
		return summary, err
	}

	log := s.log.With(
		zap.String("run_id", summary.RunID),
		zap.String("period", p.String()),
	)
	s.metrics.IncBatchRun()
	defer func() {
		s.metrics.ObserveBatchDuration(time.Since(start))
	}()

	customers, err := s.store.ListActiveCustomers(ctx)
	if err != nil {
		return summary, err
	}
	sessions, err := s.store.ListSessions(ctx, p)
	if err != nil {
		return summary, err
	}
	cancellations, err := s.store.ListCancellations(ctx, p)
	if err != nil {
		return summary, err
	}
	subscriptions, err := s.store.ListSubscriptions(ctx)
	if err != nil {
		return summary, err
	}
	invoices, err := s.store.ListInvoicesByPeriod(ctx, p)
	if err != nil {
		return summary, err
	}

	summary.CustomersFetched = len(customers)
	summary.SessionsFetched = len(sessions)
	summary.CancellationsFetched = len(cancellations)
	summary.SubscriptionsFetched = len(subscriptions)

	idx := buildActivityIndex(sessions, cancellations, subscriptions, invoices)

	var mu sync.Mutex
	results := make([]billingdomain.CustomerResult, 0, len(customers))

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for i := range customers {
		if ctx.Err() != nil {
			log.Warn("batch cancelled, not scheduling remaining customers",
				zap.Int("remaining", len(customers)-i))
			break
		}
		customer := customers[i]
		g.Go(func() error {
			// In-flight customers run to completion even if the batch is
			// cancelled mid-way.
			result := s.billOne(context.WithoutCancel(ctx), p, customer, idx)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].CustomerID < results[j].CustomerID
	})
	for _, result := range results {
		s.metrics.IncOutcome(string(result.Kind))
		switch result.Kind {
		case billingdomain.OutcomeSuccess:
			summary.Succeeded = append(summary.Succeeded, result)
			if result.Created {
				summary.InvoicesCreated++
			}
			if result.Updated {
				summary.InvoicesUpdated++
			}
		case billingdomain.OutcomeNoBillableData:
			summary.Skipped = append(summary.Skipped, result)
			summary.InvoicesSkipped++
		default:
			summary.Errored = append(summary.Errored, result)
		}
	}

	log.Info("batch run finished",
		zap.Int("customers", summary.CustomersFetched),
		zap.Int("created", summary.InvoicesCreated),
		zap.Int("updated", summary.InvoicesUpdated),
		zap.Int("skipped", summary.InvoicesSkipped),
		zap.Int("errored", len(summary.Errored)),
		zap.Duration("took", time.Since(start)),
	)
	return summary, nil
}

func (s *Service) billOne(ctx context.Context, p period.Period, customer customerdomain.Customer, idx *activityIndex) billingdomain.CustomerResult {
	outcome, err := s.BillCustomer(ctx, billingdomain.BillRequest{
		CustomerID: customer.ID,
		Period:     p,
		Preloaded: &billingdomain.PreloadedActivity{
			Customer:      &customer,
			Sessions:      idx.sessions[customer.ID],
			Cancellations: idx.cancellations[customer.ID],
			Subscriptions: idx.subscriptions[customer.ID],
			Invoices:      idx.invoices[customer.ID],
		},
	})
	if err != nil {
		result := billingdomain.CustomerResult{
			CustomerID: customer.ID,
			Kind:       billingdomain.ClassifyError(err),
			Error:      err.Error(),
		}
		var dup *billingdomain.DuplicateInvoiceError
		if errors.As(err, &dup) {
			result.DuplicateInvoiceIDs = dup.InvoiceIDs
		}
		s.log.Warn("customer billing failed",
			zap.String("customer_id", customer.ID),
			zap.String("period", p.String()),
			zap.String("kind", string(result.Kind)),
			zap.Error(err),
		)
		return result
	}
	return billingdomain.CustomerResult{
		CustomerID:  customer.ID,
		Kind:        outcome.Kind,
		InvoiceID:   outcome.InvoiceID,
		Created:     outcome.Created,
		Updated:     outcome.Updated,
		Total:       outcome.Total,
		MissingData: outcome.MissingData,
	}
}

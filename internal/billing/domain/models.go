// Package domain contains the billing orchestration contracts: requests,
// outcomes, the batch summary, and the error taxonomy.
package domain

import (
	cancellationdomain "github.com/lessonworks/billing/internal/cancellation/domain"
	customerdomain "github.com/lessonworks/billing/internal/customer/domain"
	invoicedomain "github.com/lessonworks/billing/internal/invoice/domain"
	"github.com/lessonworks/billing/internal/period"
	ratingdomain "github.com/lessonworks/billing/internal/rating/domain"
	sessiondomain "github.com/lessonworks/billing/internal/session/domain"
	subscriptiondomain "github.com/lessonworks/billing/internal/subscription/domain"
)

// PreloadedActivity carries a customer's records already fetched and grouped
// by the batch runner, so billing one customer issues no extra list queries.
// All slices are read-only to the orchestrator.
type PreloadedActivity struct {
	Customer      *customerdomain.Customer
	Sessions      []sessiondomain.Session
	Cancellations []cancellationdomain.Cancellation
	Subscriptions []subscriptiondomain.Subscription
	Invoices      []invoicedomain.Invoice
}

// BillRequest asks for one customer to be billed for one period.
type BillRequest struct {
	CustomerID string
	Period     period.Period
	// Preloaded, when set, replaces the per-customer store queries.
	Preloaded *PreloadedActivity
}

// BillOutcome is the non-error result of billing one customer. Kind is
// OutcomeSuccess, OutcomeNoBillableData, or OutcomeMissingBusinessData;
// the other kinds surface as errors.
type BillOutcome struct {
	CustomerID    string                                `json:"customer_id"`
	Period        period.Period                         `json:"period"`
	Kind          OutcomeKind                           `json:"kind"`
	Created       bool                                  `json:"created"`
	Updated       bool                                  `json:"updated"`
	InvoiceID     string                                `json:"invoice_id,omitempty"`
	Status        invoicedomain.Status                  `json:"status,omitempty"`
	Sessions      ratingdomain.SessionContribution      `json:"sessions"`
	Cancellations ratingdomain.CancellationContribution `json:"cancellations"`
	Subscriptions ratingdomain.SubscriptionContribution `json:"subscriptions"`
	Total         float64                               `json:"total"`
	MissingData   []ratingdomain.MissingDataItem        `json:"missing_data,omitempty"`
}

// CustomerResult is one customer's classified outcome inside a batch.
type CustomerResult struct {
	CustomerID          string                         `json:"customer_id"`
	Kind                OutcomeKind                    `json:"kind"`
	InvoiceID           string                         `json:"invoice_id,omitempty"`
	Created             bool                           `json:"created,omitempty"`
	Updated             bool                           `json:"updated,omitempty"`
	Total               float64                        `json:"total,omitempty"`
	MissingData         []ratingdomain.MissingDataItem `json:"missing_data,omitempty"`
	DuplicateInvoiceIDs []string                       `json:"duplicate_invoice_ids,omitempty"`
	Error               string                         `json:"error,omitempty"`
}

// BatchSummary aggregates a whole period run.
type BatchSummary struct {
	RunID                string           `json:"run_id"`
	Period               period.Period    `json:"period"`
	CustomersFetched     int              `json:"customers_fetched"`
	SessionsFetched      int              `json:"sessions_fetched"`
	CancellationsFetched int              `json:"cancellations_fetched"`
	SubscriptionsFetched int              `json:"subscriptions_fetched"`
	InvoicesCreated      int              `json:"invoices_created"`
	InvoicesUpdated      int              `json:"invoices_updated"`
	InvoicesSkipped      int              `json:"invoices_skipped"`
	Succeeded            []CustomerResult `json:"succeeded"`
	Skipped              []CustomerResult `json:"skipped"`
	Errored              []CustomerResult `json:"errored"`
}

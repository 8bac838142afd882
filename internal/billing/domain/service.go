package domain

import (
	"context"

	"github.com/lessonworks/billing/internal/period"
)

// Service is the billing orchestration surface.
//
// BillCustomer bills one customer for one period. Validation, not-found,
// and duplicate-invoice conditions return as errors (see ClassifyError);
// missing business data and no-billable-data return inside the outcome.
//
// RunPeriod bills every active customer for the period, pre-fetching and
// grouping all activity once. Per-customer failures are collected into the
// summary, never propagated.
type Service interface {
	BillCustomer(ctx context.Context, req BillRequest) (BillOutcome, error)
	RunPeriod(ctx context.Context, p period.Period) (BatchSummary, error)
}

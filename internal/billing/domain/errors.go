package domain

import (
	"errors"
	"fmt"
	"strings"

	customerdomain "github.com/lessonworks/billing/internal/customer/domain"
	"github.com/lessonworks/billing/internal/period"
)

// OutcomeKind classifies a per-customer billing outcome. Every outcome maps
// to exactly one kind.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeNoBillableData is a skip signal, not an error: the customer
	// had no activity of any kind in the period.
	OutcomeNoBillableData OutcomeKind = "no_billable_data"
	// OutcomeMissingBusinessData is a typed, non-exceptional result asking
	// the operator to fix records before the customer can be billed.
	OutcomeMissingBusinessData OutcomeKind = "missing_business_data"
	OutcomeValidation          OutcomeKind = "validation"
	OutcomeNotFound            OutcomeKind = "not_found"
	OutcomeDuplicateInvoice    OutcomeKind = "duplicate_invoice"
	OutcomeUnknown             OutcomeKind = "unknown"
)

// DuplicateInvoiceError reports that more than one invoice already exists
// for a (customer, period) pair. The engine refuses to create or update
// anything until the operator resolves the collision; it never picks one.
type DuplicateInvoiceError struct {
	CustomerID string
	Period     period.Period
	InvoiceIDs []string
}

func (e *DuplicateInvoiceError) Error() string {
	return fmt.Sprintf("duplicate invoices for customer %s period %s: %s",
		e.CustomerID, e.Period, strings.Join(e.InvoiceIDs, ", "))
}

// ClassifyError maps an orchestrator error to its outcome kind.
func ClassifyError(err error) OutcomeKind {
	var dup *DuplicateInvoiceError
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, period.ErrInvalidPeriod):
		return OutcomeValidation
	case errors.Is(err, customerdomain.ErrNotFound):
		return OutcomeNotFound
	case errors.As(err, &dup):
		return OutcomeDuplicateInvoice
	default:
		return OutcomeUnknown
	}
}

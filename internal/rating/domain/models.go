// Package domain contains the contribution results produced by the rating
// calculators and the missing-data report surfaced to operators.
package domain

// MissingDataItem asks the operator for a business decision the engine will
// not guess. It is a remediation contract, not a stack trace: it names the
// record-store table and field to fix and suggests example values.
type MissingDataItem struct {
	Table         string   `json:"table"`
	Field         string   `json:"field"`
	WhyNeeded     string   `json:"why_needed"`
	ExampleValues []string `json:"example_values"`
}

// SessionContribution is the billable sub-total from one-off sessions.
type SessionContribution struct {
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

// CancellationContribution is the billable sub-total from late
// cancellations. PendingCount tracks chargeable cancellations still
// awaiting operator approval; they are excluded from Total.
type CancellationContribution struct {
	Total        float64 `json:"total"`
	Count        int     `json:"count"`
	PendingCount int     `json:"pending_count"`
}

// SubscriptionContribution is the monthly sub-total from standing
// subscriptions active in the period.
type SubscriptionContribution struct {
	Total       float64 `json:"total"`
	ActiveCount int     `json:"active_count"`
}

// HasActivity reports whether any stream produced activity of any kind. A
// zero total still counts: a billable session with an explicit zero
// override, or a cancellation pending approval, is activity.
func HasActivity(s SessionContribution, c CancellationContribution, sub SubscriptionContribution) bool {
	return s.Count > 0 || c.Count > 0 || c.PendingCount > 0 || sub.ActiveCount > 0
}

// Total combines the three sub-totals. No tax applies.
func Total(s SessionContribution, c CancellationContribution, sub SubscriptionContribution) float64 {
	return s.Total + c.Total + sub.Total
}

// Package domain contains the subscription model. A subscription is a
// recurring monthly charge covering an activity category; per-session
// charges for duo/group sessions are carried here, never on the session.
package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lessonworks/billing/internal/period"
)

// farFuture stands in for an absent end date in range-overlap checks.
var farFuture = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// FlexAmount is a monetary amount as the record store serves it: sometimes a
// number, sometimes a currency-formatted string ("300,00 €", "$175.50").
// The raw value is kept verbatim; Float64 is the single parsing rule.
type FlexAmount string

// UnmarshalJSON accepts both a JSON number and a JSON string.
func (a *FlexAmount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = FlexAmount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*a = FlexAmount(n.String())
	return nil
}

// Float64 parses the amount: non-digit and non-decimal symbols are stripped,
// a lone comma is treated as the decimal separator, and anything unparsable,
// NaN, or negative resolves to zero.
func (a FlexAmount) Float64() float64 {
	var b strings.Builder
	for _, r := range strings.TrimSpace(string(a)) {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if strings.Contains(cleaned, ",") && !strings.Contains(cleaned, ".") {
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// Subscription captures a customer's standing monthly agreement.
type Subscription struct {
	ID            string     `gorm:"primaryKey" json:"id"`
	CustomerID    string     `gorm:"not null;index" json:"customer_id"`
	StartAt       time.Time  `gorm:"not null" json:"start_at"`
	EndAt         *time.Time `gorm:"" json:"end_at,omitempty"`
	Paused        bool       `gorm:"not null;default:false" json:"paused"`
	MonthlyAmount FlexAmount `gorm:"type:text" json:"monthly_amount"`
	CreatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// ActiveInMonth reports whether the subscription covers the month: not
// paused, started on or before the end of the month, and not ended before
// the month began.
func (s Subscription) ActiveInMonth(p period.Period) bool {
	if s.Paused {
		return false
	}
	start, end := p.Bounds()
	if start.IsZero() {
		return false
	}
	if !s.StartAt.Before(end) {
		return false
	}
	if s.EndAt != nil && s.EndAt.Before(start) {
		return false
	}
	return true
}

// Overlaps reports whether two subscriptions' date ranges intersect. An
// absent end date is treated as far future.
func (s Subscription) Overlaps(other Subscription) bool {
	end := farFuture
	if s.EndAt != nil {
		end = *s.EndAt
	}
	otherEnd := farFuture
	if other.EndAt != nil {
		otherEnd = *other.EndAt
	}
	return !s.StartAt.After(otherEnd) && !other.StartAt.After(end)
}

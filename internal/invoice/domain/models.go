// Package domain contains the persisted invoice model. Invoices are keyed by
// (customer, period); the engine creates or updates them and never deletes.
package domain

import "time"

// Status is the invoice lifecycle status derived on every billing run.
type Status string

const (
	// StatusDraft is only the pre-creation default; the resolver never
	// emits it once an invoice exists.
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusPaid            Status = "paid"
)

// Invoice is one customer's bill for one period. The manual-adjustment
// fields and the paid/approved/link-sent flags are operator-owned: the
// engine reads them back and rewrites them unchanged on recomputation.
type Invoice struct {
	ID                 string     `gorm:"primaryKey" json:"id"`
	CustomerID         string     `gorm:"not null;index:idx_invoice_customer_period" json:"customer_id"`
	Period             string     `gorm:"type:text;not null;index:idx_invoice_customer_period" json:"period"`
	Status             Status     `gorm:"type:text;not null;default:'draft'" json:"status"`
	Paid               bool       `gorm:"not null;default:false" json:"paid"`
	ApprovedForBilling bool       `gorm:"not null;default:false" json:"approved_for_billing"`
	LinkSent           bool       `gorm:"not null;default:false" json:"link_sent"`
	SessionsTotal      float64    `gorm:"not null;default:0" json:"sessions_total"`
	SessionsCount      int        `gorm:"not null;default:0" json:"sessions_count"`
	CancellationsTotal float64    `gorm:"not null;default:0" json:"cancellations_total"`
	SubscriptionsTotal float64    `gorm:"not null;default:0" json:"subscriptions_total"`
	Total              float64    `gorm:"not null;default:0" json:"total"`
	AdjustmentAmount   *float64   `gorm:"" json:"manual_adjustment_amount,omitempty"`
	AdjustmentReason   string     `gorm:"type:text" json:"manual_adjustment_reason,omitempty"`
	AdjustmentDate     *time.Time `gorm:"" json:"manual_adjustment_date,omitempty"`
	CreatedAt          time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Package domain contains the cancellation model. A cancellation carries its
// own charge eligibility separately from the session it voids.
package domain

import "time"

// Cancellation references a customer and, when the operator linked one, the
// session that was called off. LessThan24h gates whether the cancellation is
// chargeable at all; ChargeApproved gates whether the charge enters the
// invoice total or stays pending operator approval.
type Cancellation struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	CustomerID     string    `gorm:"not null;index" json:"customer_id"`
	SessionID      string    `gorm:"index" json:"session_id,omitempty"`
	Period         string    `gorm:"type:text;index" json:"period"`
	LessThan24h    bool      `gorm:"not null;default:false" json:"less_than_24h"`
	ChargeApproved bool      `gorm:"not null;default:false" json:"charge_approved"`
	Charge         *float64  `gorm:"" json:"charge,omitempty"`
	CreatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Cancellation) TableName() string { return "cancellations" }

// Package domain contains the session model and the canonical classifiers
// for its two string-typed fields. The record store carries many spellings
// for the same lifecycle state and category (trimmed and untrimmed, English
// and Spanish); everything folds through ClassifyState and ClassifyCategory
// so the billable and solo/duo/group partitions are defined exactly once.
package domain

import (
	"strings"
	"time"

	"github.com/lessonworks/billing/internal/period"
	"gorm.io/datatypes"
)

// State is the canonical session lifecycle state.
type State string

const (
	StateScheduled        State = "scheduled"
	StateCompleted        State = "completed"
	StateCancelled        State = "cancelled"
	StateCancelledByStaff State = "cancelled_by_staff"
	StateUnknown          State = "unknown"
)

// Category is the canonical session category.
type Category string

const (
	CategorySolo    Category = "solo"
	CategoryDuo     Category = "duo"
	CategoryGroup   Category = "group"
	CategoryUnknown Category = "unknown"
)

// Session is a single lesson occurrence. CustomerIDs is already normalized
// by the store driver: calculators never see the wire representation of the
// customer link.
type Session struct {
	ID             string                      `gorm:"primaryKey" json:"id"`
	CustomerIDs    datatypes.JSONSlice[string] `gorm:"not null" json:"customer_ids"`
	State          string                      `gorm:"type:text;not null" json:"state"`
	Category       string                      `gorm:"type:text;not null" json:"category"`
	StartsAt       time.Time                   `gorm:"not null" json:"starts_at"`
	Period         string                      `gorm:"type:text;index" json:"period"`
	ChargeOverride *float64                    `gorm:"" json:"charge_override,omitempty"`
	CreatedAt      time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }

var stateAliases = map[string]State{
	"scheduled":          StateScheduled,
	"programada":         StateScheduled,
	"agendada":           StateScheduled,
	"confirmed":          StateScheduled,
	"confirmada":         StateScheduled,
	"completed":          StateCompleted,
	"done":               StateCompleted,
	"realizada":          StateCompleted,
	"completada":         StateCompleted,
	"impartida":          StateCompleted,
	"cancelled":          StateCancelled,
	"canceled":           StateCancelled,
	"cancelada":          StateCancelled,
	"cancelled by staff": StateCancelledByStaff,
	"canceled by staff":  StateCancelledByStaff,
	"cancelada profesor": StateCancelledByStaff,
}

// ClassifyState folds a raw lifecycle state into its canonical value.
func ClassifyState(raw string) State {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", " ")
	key = strings.ReplaceAll(key, "_", " ")
	if s, ok := stateAliases[key]; ok {
		return s
	}
	return StateUnknown
}

var categoryAliases = map[string]Category{
	"solo":       CategorySolo,
	"individual": CategorySolo,
	"particular": CategorySolo,
	"duo":        CategoryDuo,
	"dúo":        CategoryDuo,
	"pareja":     CategoryDuo,
	"group":      CategoryGroup,
	"grupo":      CategoryGroup,
	"grupal":     CategoryGroup,
}

// ClassifyCategory folds a raw category into its canonical value.
func ClassifyCategory(raw string) Category {
	key := strings.ToLower(strings.TrimSpace(raw))
	if c, ok := categoryAliases[key]; ok {
		return c
	}
	return CategoryUnknown
}

// IsCancellationState reports whether the state means the session did not
// take place. Cancelled sessions never carry a per-session charge; any
// charge comes through a cancellation record instead.
func (s State) IsCancellationState() bool {
	return s == StateCancelled || s == StateCancelledByStaff
}

// IsBillable reports whether the state belongs to the billable set.
func (s State) IsBillable() bool {
	return s == StateCompleted || s == StateScheduled
}

// InPeriod resolves period membership: the explicit period tag wins, the
// session timestamp is the fallback when the tag is absent.
func (s Session) InPeriod(p period.Period) bool {
	if tagged := strings.TrimSpace(s.Period); tagged != "" {
		return tagged == p.String()
	}
	return p.Contains(s.StartsAt)
}

// BelongsTo reports whether id is among the session's linked customers.
func (s Session) BelongsTo(id string) bool {
	for _, cid := range s.CustomerIDs {
		if cid == id {
			return true
		}
	}
	return false
}

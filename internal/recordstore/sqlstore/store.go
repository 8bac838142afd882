// Package sqlstore implements the record-store boundary on a local SQL
// database. It backs standalone deployments and the test suites.
package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	cancellationdomain "github.com/lessonworks/billing/internal/cancellation/domain"
	customerdomain "github.com/lessonworks/billing/internal/customer/domain"
	invoicedomain "github.com/lessonworks/billing/internal/invoice/domain"
	"github.com/lessonworks/billing/internal/period"
	sessiondomain "github.com/lessonworks/billing/internal/session/domain"
	subscriptiondomain "github.com/lessonworks/billing/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Store struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func New(db *gorm.DB, log *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(
		&customerdomain.Customer{},
		&sessiondomain.Session{},
		&cancellationdomain.Cancellation{},
		&subscriptiondomain.Subscription{},
		&invoicedomain.Invoice{},
	); err != nil {
		return nil, fmt.Errorf("migrate record store: %w", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:    db,
		log:   log.Named("recordstore.sql"),
		genID: node,
	}, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (customerdomain.Customer, error) {
	var customer customerdomain.Customer
	err := s.db.WithContext(ctx).First(&customer, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return customerdomain.Customer{}, fmt.Errorf("%w: %s", customerdomain.ErrNotFound, id)
	}
	return customer, err
}

func (s *Store) ListActiveCustomers(ctx context.Context) ([]customerdomain.Customer, error) {
	var customers []customerdomain.Customer
	err := s.db.WithContext(ctx).Where("active = ?", true).Find(&customers).Error
	return customers, err
}

// ListSessions queries both period representations: the free-text tag and
// the session timestamp falling inside the month.
func (s *Store) ListSessions(ctx context.Context, p period.Period) ([]sessiondomain.Session, error) {
	start, end := p.Bounds()
	var sessions []sessiondomain.Session
	err := s.db.WithContext(ctx).
		Where("period = ?", p.String()).
		Or("(period IS NULL OR period = '') AND starts_at >= ? AND starts_at < ?", start, end).
		Find(&sessions).Error
	return sessions, err
}

func (s *Store) ListCancellations(ctx context.Context, p period.Period) ([]cancellationdomain.Cancellation, error) {
	var cancellations []cancellationdomain.Cancellation
	err := s.db.WithContext(ctx).Where("period = ?", p.String()).Find(&cancellations).Error
	return cancellations, err
}

func (s *Store) ListSubscriptions(ctx context.Context) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Find(&subscriptions).Error
	return subscriptions, err
}

func (s *Store) ListInvoices(ctx context.Context, customerID string, p period.Period) ([]invoicedomain.Invoice, error) {
	var invoices []invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND period = ?", customerID, p.String()).
		Find(&invoices).Error
	return invoices, err
}

func (s *Store) ListInvoicesByPeriod(ctx context.Context, p period.Period) ([]invoicedomain.Invoice, error) {
	var invoices []invoicedomain.Invoice
	err := s.db.WithContext(ctx).Where("period = ?", p.String()).Find(&invoices).Error
	return invoices, err
}

func (s *Store) CreateInvoice(ctx context.Context, inv *invoicedomain.Invoice) error {
	if inv.ID == "" {
		inv.ID = s.genID.Generate().String()
	}
	return s.db.WithContext(ctx).Create(inv).Error
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoicedomain.Invoice) error {
	// Save writes the full row so operator-owned fields round-trip verbatim.
	return s.db.WithContext(ctx).Save(inv).Error
}

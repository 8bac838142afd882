// Package recordstore defines the boundary between the billing engine and
// the tabular record store holding customers, sessions, cancellations,
// subscriptions, and invoices. The engine never deletes records.
//
// Two drivers exist: rest talks to the remote store over HTTP, sqlstore
// keeps the collections in a local database for standalone deployments and
// tests. Period filtering is best effort at this boundary; the calculators
// filter authoritatively, so drivers may over-fetch but must never drop a
// record that belongs to the requested period.
package recordstore

import (
	"context"
	"fmt"

	cancellationdomain "github.com/lessonworks/billing/internal/cancellation/domain"
	"github.com/lessonworks/billing/internal/config"
	customerdomain "github.com/lessonworks/billing/internal/customer/domain"
	invoicedomain "github.com/lessonworks/billing/internal/invoice/domain"
	"github.com/lessonworks/billing/internal/period"
	"github.com/lessonworks/billing/internal/recordstore/rest"
	"github.com/lessonworks/billing/internal/recordstore/sqlstore"
	sessiondomain "github.com/lessonworks/billing/internal/session/domain"
	subscriptiondomain "github.com/lessonworks/billing/internal/subscription/domain"
	"github.com/lessonworks/billing/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Store is the record-store boundary consumed by the billing engine.
// GetCustomer returns customerdomain.ErrNotFound for an unknown id.
type Store interface {
	GetCustomer(ctx context.Context, id string) (customerdomain.Customer, error)
	ListActiveCustomers(ctx context.Context) ([]customerdomain.Customer, error)
	ListSessions(ctx context.Context, p period.Period) ([]sessiondomain.Session, error)
	ListCancellations(ctx context.Context, p period.Period) ([]cancellationdomain.Cancellation, error)
	ListSubscriptions(ctx context.Context) ([]subscriptiondomain.Subscription, error)
	ListInvoices(ctx context.Context, customerID string, p period.Period) ([]invoicedomain.Invoice, error)
	ListInvoicesByPeriod(ctx context.Context, p period.Period) ([]invoicedomain.Invoice, error)
	CreateInvoice(ctx context.Context, inv *invoicedomain.Invoice) error
	UpdateInvoice(ctx context.Context, inv *invoicedomain.Invoice) error
}

// New selects the configured driver.
func New(cfg config.Config, log *zap.Logger) (Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverREST:
		return rest.New(rest.Config{
			BaseURL: cfg.StoreBaseURL,
			Token:   cfg.StoreToken,
		}, log)
	case config.StoreDriverSQL:
		gdb, err := db.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open store database: %w", err)
		}
		return sqlstore.New(gdb, log)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

// Module wires the record store into the application graph.
var Module = fx.Module("recordstore",
	fx.Provide(New),
)

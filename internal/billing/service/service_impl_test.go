package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	billingdomain "github.com/lessonworks/billing/internal/billing/domain"
	cancellationdomain "github.com/lessonworks/billing/internal/cancellation/domain"
	"github.com/lessonworks/billing/internal/config"
	customerdomain "github.com/lessonworks/billing/internal/customer/domain"
	invoicedomain "github.com/lessonworks/billing/internal/invoice/domain"
	"github.com/lessonworks/billing/internal/period"
	ratingservice "github.com/lessonworks/billing/internal/rating/service"
	"github.com/lessonworks/billing/internal/recordstore/sqlstore"
	sessiondomain "github.com/lessonworks/billing/internal/session/domain"
	subscriptiondomain "github.com/lessonworks/billing/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const testPeriod = period.Period("2026-03")

type fixture struct {
	db    *gorm.DB
	store *sqlstore.Store
	svc   billingdomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	store, err := sqlstore.New(db, zap.NewNop())
	require.NoError(t, err)

	rating := ratingservice.NewService(ratingservice.ServiceParam{
		Log:     zap.NewNop(),
		Billing: config.NewStaticBillingConfigHolder(config.BillingConfig{SoloUnitPrice: 175, Currency: "EUR"}),
	})

	svc := NewService(ServiceParam{
		Config: config.Config{SchedulerConcurrency: 2},
		Log:    zap.NewNop(),
		Store:  store,
		Rating: rating,
	})
	return &fixture{db: db, store: store, svc: svc}
}

func (f *fixture) seedCustomer(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.db.Create(&customerdomain.Customer{ID: id, Name: "Customer " + id, Active: true}).Error)
}

func (f *fixture) seedSoloSessions(t *testing.T, customerID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.db.Create(&sessiondomain.Session{
			ID:          fmt.Sprintf("ses_%s_%d", customerID, i),
			CustomerIDs: datatypes.JSONSlice[string]{customerID},
			State:       "completed",
			Category:    "solo",
			StartsAt:    time.Date(2026, 3, 2+i, 17, 0, 0, 0, time.UTC),
			Period:      "2026-03",
		}).Error)
	}
}

func (f *fixture) invoicesFor(t *testing.T, customerID string) []invoicedomain.Invoice {
	t.Helper()
	invoices, err := f.store.ListInvoices(context.Background(), customerID, testPeriod)
	require.NoError(t, err)
	return invoices
}

func TestBillCustomer_InvalidPeriod(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "cus_1")

	_, err := f.svc.BillCustomer(context.Background(), billingdomain.BillRequest{
		CustomerID: "cus_1",
		Period:     "2026-3",
	})
	require.Error(t, err)
	assert.Equal(t, billingdomain.OutcomeValidation, billingdomain.ClassifyError(err))
}

func TestBillCustomer_UnknownCustomer(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.BillCustomer(context.Background(), billingdomain.BillRequest{
		CustomerID: "cus_missing",
		Period:     testPeriod,
	})
	require.Error(t, err)
	assert.Equal(t, billingdomain.OutcomeNotFound, billingdomain.ClassifyError(err))
}

func TestBillCustomer_NoActivityIsSkipNotError(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "cus_1")

	outcome, err := f.svc.BillCustomer(context.Background(), billingdomain.BillRequest{
		CustomerID: "cus_1",
		Period:     testPeriod,
	})
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeNoBillableData, outcome.Kind)
	assert.False(t, outcome.Created)
	assert.Empty(t, f.invoicesFor(t, "cus_1"))
}

func TestBillCustomer_CreatesInvoice(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "cus_1")
	f.seedSoloSessions(t, "cus_1", 4)

	outcome, err := f.svc.BillCustomer(context.Background(), billingdomain.BillRequest{
		CustomerID: "cus_1",
		Period:     testPeriod,
	})
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeSuccess, outcome.Kind)
	assert.True(t, outcome.Created)
	assert.Equal(t, float64(700), outcome.Total)
	assert.Equal(t, invoicedomain.StatusApproved, outcome.Status)

	invoices := f.invoicesFor(t, "cus_1")
	require.Len(t, invoices, 1)
	assert.Equal(t, float64(700), invoices[0].Total)
	assert.Equal(t, 4, invoices[0].SessionsCount)
	assert.True(t, invoices[0].ApprovedForBilling)
}

func TestBillCustomer_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "cus_1")
	f.seedSoloSessions(t, "cus_1", 4)

	first, err := f.svc.BillCustomer(context.Background(), billingdomain.BillRequest{CustomerID: "cus_1", Period: testPeriod})
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := f.svc.BillCustomer(context.Background(), billingdomain.BillRequest{CustomerID: "cus_1", Period: testPeriod})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.True(t, second.Updated)
	assert.Equal(t, first.InvoiceID, second.InvoiceID)
	assert.Equal(t, first.Total, second.Total)
	require.Len(t, f.invoicesFor(t, "cus_1"), 1)
}

func TestBillCustomer_DuplicateInvoicesRefuseAnyWrite(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "cus_1")
	f.seedSoloSessions(t, "cus_1", 1)

	require.NoError(t, f.db.Create(&invoicedomain.Invoice{ID: "inv_a", CustomerID: "cus_1", Period: "2026-03", Total: 10}).Error)
	require.NoError(t, f.db.Create(&invoicedomain.Invoice{ID: "inv_b", CustomerID: "cus_1", Period: "2026-03", Total: 20}).Error)

	_, err := f.svc.BillCustomer(context.Background(), billingdomain.BillRequest{CustomerID: "cus_1", Period: testPeriod})
	require.Error(t, err)

	var dup *billingdomain.DuplicateInvoiceError
	require.ErrorAs(t, err, &dup)
	assert.ElementsMatch(t, []string{"inv_a", "inv_b"}, dup.InvoiceIDs)

	// Neither invoice was touched and no third one appeared.
	invoices := f.invoicesFor(t, "cus_1")
	require.Len(t, invoices, 2)
	totals := map[string]float64{invoices[0].ID: invoices[0].Total, invoices[1].ID: invoices[1].Total}
	assert.Equal(t, float64(10), totals["inv_a"])
	assert.Equal(t, float64(20), totals["inv_b"])
}

func TestBillCustomer_PreservesManualAdjustments(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "cus_1")
	f.seedSoloSessions(t, "cus_1", 2)

	adjustment := -50.0
	adjustedAt := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.db.Create(&invoicedomain.Invoice{
		ID:               "inv_1",
		CustomerID:       "cus_1",
		Period:           "2026-03",
		Status:           invoicedomain.StatusApproved,
		Paid:             false,
		LinkSent:         true,
		Total:            175,
		AdjustmentAmount: &adjustment,
		AdjustmentReason: "goodwill discount",
		AdjustmentDate:   &adjustedAt,
	}).Error)

	outcome, err := f.svc.BillCustomer(context.Background(), billingdomain.BillRequest{CustomerID: "cus_1", Period: testPeriod})
	require.NoError(t, err)
	assert.True(t, outcome.Updated)

	invoices := f.invoicesFor(t, "cus_1")
	require.Len(t, invoices, 1)
	got := invoices[0]
	// Recomputed by the engine.
	assert.Equal(t, float64(350), got.Total)
	assert.Equal(t, 2, got.SessionsCount)
	// Operator-owned, carried forward verbatim.
	require.NotNil(t, got.AdjustmentAmount)
	assert.Equal(t, adjustment, *got.AdjustmentAmount)
	assert.Equal(t, "goodwill discount", got.AdjustmentReason)
	require.NotNil(t, got.AdjustmentDate)
	assert.True(t, adjustedAt.Equal(got.AdjustmentDate.UTC()))
	assert.True(t, got.LinkSent)
}

func TestBillCustomer_PaidStatusIsSticky(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "cus_1")
	f.seedSoloSessions(t, "cus_1", 1)

	require.NoError(t, f.db.Create(&invoicedomain.Invoice{
		ID:         "inv_1",
		CustomerID: "cus_1",
		Period:     "2026-03",
		Status:     invoicedomain.StatusPaid,
		Paid:       true,
	}).Error)

	outcome, err := f.svc.BillCustomer(context.Background(), billingdomain.BillRequest{CustomerID: "cus_1", Period: testPeriod})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, outcome.Status)
}

func TestBillCustomer_PendingCancellation(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "cus_1")

	require.NoError(t, f.db.Create(&cancellationdomain.Cancellation{
		ID:             "can_1",
		CustomerID:     "cus_1",
		SessionID:      "ses_gone",
		Period:         "2026-03",
		LessThan24h:    true,
		ChargeApproved: false,
	}).Error)

	outcome, err := f.svc.BillCustomer(context.Background(), billingdomain.BillRequest{CustomerID: "cus_1", Period: testPeriod})
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeSuccess, outcome.Kind)
	assert.Equal(t, 1, outcome.Cancellations.PendingCount)
	assert.Zero(t, outcome.Total)
	assert.Equal(t, invoicedomain.StatusPendingApproval, outcome.Status)

	invoices := f.invoicesFor(t, "cus_1")
	require.Len(t, invoices, 1)
	assert.False(t, invoices[0].ApprovedForBilling)
}

func TestBillCustomer_DuoCoveredBySubscription(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "cus_1")

	for i := 0; i < 2; i++ {
		require.NoError(t, f.db.Create(&sessiondomain.Session{
			ID:          fmt.Sprintf("ses_duo_%d", i),
			CustomerIDs: datatypes.JSONSlice[string]{"cus_1"},
			State:       "completed",
			Category:    "duo",
			StartsAt:    time.Date(2026, 3, 3+i, 18, 0, 0, 0, time.UTC),
			Period:      "2026-03",
		}).Error)
	}
	require.NoError(t, f.db.Create(&subscriptiondomain.Subscription{
		ID:            "sub_1",
		CustomerID:    "cus_1",
		StartAt:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		MonthlyAmount: "300",
	}).Error)

	outcome, err := f.svc.BillCustomer(context.Background(), billingdomain.BillRequest{CustomerID: "cus_1", Period: testPeriod})
	require.NoError(t, err)
	assert.Zero(t, outcome.Sessions.Total)
	assert.Equal(t, float64(300), outcome.Subscriptions.Total)
	assert.Equal(t, float64(300), outcome.Total)
}

func TestBillCustomer_MissingDataBlocksWrite(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "cus_1")

	// Approved late cancellation without an explicit charge or a
	// resolvable linked session.
	require.NoError(t, f.db.Create(&cancellationdomain.Cancellation{
		ID:             "can_1",
		CustomerID:     "cus_1",
		Period:         "2026-03",
		LessThan24h:    true,
		ChargeApproved: true,
	}).Error)

	outcome, err := f.svc.BillCustomer(context.Background(), billingdomain.BillRequest{CustomerID: "cus_1", Period: testPeriod})
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeMissingBusinessData, outcome.Kind)
	require.Len(t, outcome.MissingData, 1)
	assert.Equal(t, "cancellations", outcome.MissingData[0].Table)
	assert.Empty(t, f.invoicesFor(t, "cus_1"))
}

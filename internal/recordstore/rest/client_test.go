package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	invoicedomain "github.com/lessonworks/billing/internal/invoice/domain"
	"github.com/lessonworks/billing/internal/period"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(Config{BaseURL: srv.URL, Token: "tok_test"}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestListSessions_PolymorphicCustomerLink(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sessions", r.URL.Path)
		assert.Equal(t, "Bearer tok_test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"records":[
			{"id":"ses_1","fields":{"customer":"cus_1","state":"completed","category":"solo","period":"2026-03"}},
			{"id":"ses_2","fields":{"customer":["cus_1","cus_2"],"state":"completed","category":"duo","period":"2026-03"}},
			{"id":"ses_3","fields":{"customer":[{"id":"cus_3"}],"state":"scheduled","category":"solo","period":"2026-03"}}
		]}`))
	}))

	sessions, err := client.ListSessions(context.Background(), period.Period("2026-03"))
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, []string{"cus_1"}, []string(sessions[0].CustomerIDs))
	assert.Equal(t, []string{"cus_1", "cus_2"}, []string(sessions[1].CustomerIDs))
	assert.Equal(t, []string{"cus_3"}, []string(sessions[2].CustomerIDs))
}

func TestListSessions_FetchesBroadlyAndFiltersInMemory(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No server-side period filter: a remote store applying it
		// strictly against the tag would drop untagged sessions.
		assert.False(t, r.URL.Query().Has("period"))
		_, _ = w.Write([]byte(`{"records":[
			{"id":"ses_tagged","fields":{"customer":"cus_1","state":"completed","category":"solo","period":"2026-03"}},
			{"id":"ses_untagged","fields":{"customer":"cus_1","state":"completed","category":"solo","starts_at":"2026-03-12T17:00:00Z"}},
			{"id":"ses_other_month","fields":{"customer":"cus_1","state":"completed","category":"solo","starts_at":"2026-04-02T17:00:00Z"}}
		]}`))
	}))

	sessions, err := client.ListSessions(context.Background(), period.Period("2026-03"))
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "ses_tagged", sessions[0].ID)
	assert.Equal(t, "ses_untagged", sessions[1].ID)
}

func TestListCancellations_TrimsPeriodTag(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/cancellations", r.URL.Path)
		assert.False(t, r.URL.Query().Has("period"))
		_, _ = w.Write([]byte(`{"records":[
			{"id":"can_padded","fields":{"customer":"cus_1","session":"ses_1","period":" 2026-03 ","less_than_24h":true,"charge_approved":true}},
			{"id":"can_other","fields":{"customer":"cus_1","session":"ses_2","period":"2026-02","less_than_24h":true,"charge_approved":true}}
		]}`))
	}))

	cancellations, err := client.ListCancellations(context.Background(), period.Period("2026-03"))
	require.NoError(t, err)
	require.Len(t, cancellations, 1)
	assert.Equal(t, "can_padded", cancellations[0].ID)
}

func TestList_Pagination(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "" {
			_, _ = w.Write([]byte(`{"records":[{"id":"cus_1","fields":{"name":"Ana","active":true}}],"offset":"page2"}`))
			return
		}
		assert.Equal(t, "page2", r.URL.Query().Get("offset"))
		_, _ = w.Write([]byte(`{"records":[{"id":"cus_2","fields":{"name":"Ben","active":true}}]}`))
	}))

	customers, err := client.ListActiveCustomers(context.Background())
	require.NoError(t, err)
	require.Len(t, customers, 2)
	assert.Equal(t, "cus_1", customers[0].ID)
	assert.Equal(t, "cus_2", customers[1].ID)
}

func TestGetCustomer_NotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.GetCustomer(context.Background(), "cus_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customer_not_found")
}

func TestCreateInvoice_AssignsID(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/invoices", r.URL.Path)

		var body struct {
			Fields invoiceFields `json:"fields"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2026-03", body.Fields.Period)
		assert.Equal(t, []string{"cus_1"}, []string(body.Fields.Customer))

		_, _ = w.Write([]byte(`{"id":"inv_1","fields":{}}`))
	}))

	inv := invoiceFixture()
	require.NoError(t, client.CreateInvoice(context.Background(), &inv))
	assert.Equal(t, "inv_1", inv.ID)
}

func invoiceFixture() invoicedomain.Invoice {
	return invoicedomain.Invoice{
		CustomerID:    "cus_1",
		Period:        "2026-03",
		Status:        invoicedomain.StatusApproved,
		SessionsTotal: 700,
		SessionsCount: 4,
		Total:         700,
	}
}

func TestDo_RetriesOnce(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"records":[]}`))
	}))

	_, err := client.ListSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_GivesUpAfterRetry(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.ListSubscriptions(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

// Package rest implements the record-store boundary against the remote
// tabular store's HTTP API. Records travel as {id, fields} envelopes and
// lists paginate with an opaque offset token.
//
// The customer link arrives in three observed shapes: a bare record id, an
// array of ids, or an array of link objects. Normalization happens here, at
// decode time; nothing past this package ever branches on the wire shape.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	cancellationdomain "github.com/lessonworks/billing/internal/cancellation/domain"
	customerdomain "github.com/lessonworks/billing/internal/customer/domain"
	invoicedomain "github.com/lessonworks/billing/internal/invoice/domain"
	"github.com/lessonworks/billing/internal/period"
	sessiondomain "github.com/lessonworks/billing/internal/session/domain"
	subscriptiondomain "github.com/lessonworks/billing/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

func New(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("rest store: base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.Named("recordstore.rest"),
	}, nil
}

type record struct {
	ID     string          `json:"id"`
	Fields json.RawMessage `json:"fields"`
}

type listResponse struct {
	Records []record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

// recordLink normalizes the polymorphic link field.
type recordLink []string

func (l *recordLink) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*l = nil
		} else {
			*l = recordLink{single}
		}
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err == nil {
		*l = recordLink(ids)
		return nil
	}
	var objs []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &objs); err != nil {
		return fmt.Errorf("unsupported link shape: %w", err)
	}
	out := make(recordLink, 0, len(objs))
	for _, o := range objs {
		if o.ID != "" {
			out = append(out, o.ID)
		}
	}
	*l = out
	return nil
}

func (l recordLink) first() string {
	if len(l) == 0 {
		return ""
	}
	return l[0]
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (int, error) {
	var payload io.Reader
	var buf []byte
	if body != nil {
		var err error
		buf, err = json.Marshal(body)
		if err != nil {
			return 0, err
		}
	}

	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	// One bounded retry on throttling or transient server failure; the
	// store boundary owns real resilience.
	for attempt := 0; ; attempt++ {
		if buf != nil {
			payload = bytes.NewReader(buf)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, payload)
		if err != nil {
			return 0, err
		}
		if c.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		}
		if buf != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return 0, err
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return resp.StatusCode, err
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if retryable && attempt == 0 {
			select {
			case <-ctx.Done():
				return resp.StatusCode, ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if resp.StatusCode >= 400 {
			return resp.StatusCode, fmt.Errorf("store %s %s: status %d: %s", method, path, resp.StatusCode, truncate(data))
		}
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return resp.StatusCode, fmt.Errorf("store %s %s: decode: %w", method, path, err)
			}
		}
		return resp.StatusCode, nil
	}
}

func truncate(data []byte) string {
	const limit = 256
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}

func (c *Client) list(ctx context.Context, collection string, query url.Values) ([]record, error) {
	var all []record
	if query == nil {
		query = url.Values{}
	}
	for {
		var page listResponse
		if _, err := c.do(ctx, http.MethodGet, "/v1/"+collection, query, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Records...)
		if page.Offset == "" {
			return all, nil
		}
		query.Set("offset", page.Offset)
	}
}

type customerFields struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

func (c *Client) GetCustomer(ctx context.Context, id string) (customerdomain.Customer, error) {
	var rec record
	status, err := c.do(ctx, http.MethodGet, "/v1/customers/"+url.PathEscape(id), nil, nil, &rec)
	if status == http.StatusNotFound {
		return customerdomain.Customer{}, fmt.Errorf("%w: %s", customerdomain.ErrNotFound, id)
	}
	if err != nil {
		return customerdomain.Customer{}, err
	}
	var fields customerFields
	if err := json.Unmarshal(rec.Fields, &fields); err != nil {
		return customerdomain.Customer{}, err
	}
	return customerdomain.Customer{ID: rec.ID, Name: fields.Name, Active: fields.Active}, nil
}

func (c *Client) ListActiveCustomers(ctx context.Context) ([]customerdomain.Customer, error) {
	records, err := c.list(ctx, "customers", url.Values{"active": {"true"}})
	if err != nil {
		return nil, err
	}
	customers := make([]customerdomain.Customer, 0, len(records))
	for _, rec := range records {
		var fields customerFields
		if err := json.Unmarshal(rec.Fields, &fields); err != nil {
			return nil, err
		}
		if !fields.Active {
			continue
		}
		customers = append(customers, customerdomain.Customer{ID: rec.ID, Name: fields.Name, Active: true})
	}
	return customers, nil
}

type sessionFields struct {
	Customer       recordLink `json:"customer"`
	State          string     `json:"state"`
	Category       string     `json:"category"`
	StartsAt       time.Time  `json:"starts_at"`
	Period         string     `json:"period"`
	ChargeOverride *float64   `json:"charge_override"`
}

// ListSessions fetches the collection without a server-side period filter:
// the store may hold the period as a tag or only as the session date, and a
// strict remote filter on either representation would drop records holding
// the other. The month is selected in memory instead.
func (c *Client) ListSessions(ctx context.Context, p period.Period) ([]sessiondomain.Session, error) {
	records, err := c.list(ctx, "sessions", nil)
	if err != nil {
		return nil, err
	}
	sessions := make([]sessiondomain.Session, 0, len(records))
	for _, rec := range records {
		var fields sessionFields
		if err := json.Unmarshal(rec.Fields, &fields); err != nil {
			return nil, fmt.Errorf("session %s: %w", rec.ID, err)
		}
		sess := sessiondomain.Session{
			ID:             rec.ID,
			CustomerIDs:    datatypes.JSONSlice[string](fields.Customer),
			State:          fields.State,
			Category:       fields.Category,
			StartsAt:       fields.StartsAt,
			Period:         fields.Period,
			ChargeOverride: fields.ChargeOverride,
		}
		if !sess.InPeriod(p) {
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

type cancellationFields struct {
	Customer       recordLink `json:"customer"`
	Session        recordLink `json:"session"`
	Period         string     `json:"period"`
	LessThan24h    bool       `json:"less_than_24h"`
	ChargeApproved bool       `json:"charge_approved"`
	Charge         *float64   `json:"charge"`
}

// ListCancellations fetches broadly for the same reason as ListSessions:
// the period tag is free text, so the match happens here after trimming
// rather than as a strict remote filter.
func (c *Client) ListCancellations(ctx context.Context, p period.Period) ([]cancellationdomain.Cancellation, error) {
	records, err := c.list(ctx, "cancellations", nil)
	if err != nil {
		return nil, err
	}
	cancellations := make([]cancellationdomain.Cancellation, 0, len(records))
	for _, rec := range records {
		var fields cancellationFields
		if err := json.Unmarshal(rec.Fields, &fields); err != nil {
			return nil, fmt.Errorf("cancellation %s: %w", rec.ID, err)
		}
		if strings.TrimSpace(fields.Period) != p.String() {
			continue
		}
		cancellations = append(cancellations, cancellationdomain.Cancellation{
			ID:             rec.ID,
			CustomerID:     fields.Customer.first(),
			SessionID:      fields.Session.first(),
			Period:         fields.Period,
			LessThan24h:    fields.LessThan24h,
			ChargeApproved: fields.ChargeApproved,
			Charge:         fields.Charge,
		})
	}
	return cancellations, nil
}

type subscriptionFields struct {
	Customer      recordLink                    `json:"customer"`
	StartAt       time.Time                     `json:"start_at"`
	EndAt         *time.Time                    `json:"end_at"`
	Paused        bool                          `json:"paused"`
	MonthlyAmount subscriptiondomain.FlexAmount `json:"monthly_amount"`
}

func (c *Client) ListSubscriptions(ctx context.Context) ([]subscriptiondomain.Subscription, error) {
	records, err := c.list(ctx, "subscriptions", nil)
	if err != nil {
		return nil, err
	}
	subscriptions := make([]subscriptiondomain.Subscription, 0, len(records))
	for _, rec := range records {
		var fields subscriptionFields
		if err := json.Unmarshal(rec.Fields, &fields); err != nil {
			return nil, fmt.Errorf("subscription %s: %w", rec.ID, err)
		}
		subscriptions = append(subscriptions, subscriptiondomain.Subscription{
			ID:            rec.ID,
			CustomerID:    fields.Customer.first(),
			StartAt:       fields.StartAt,
			EndAt:         fields.EndAt,
			Paused:        fields.Paused,
			MonthlyAmount: fields.MonthlyAmount,
		})
	}
	return subscriptions, nil
}

type invoiceFields struct {
	Customer           recordLink `json:"customer"`
	Period             string     `json:"period"`
	Status             string     `json:"status"`
	Paid               bool       `json:"paid"`
	ApprovedForBilling bool       `json:"approved_for_billing"`
	LinkSent           bool       `json:"link_sent"`
	SessionsTotal      float64    `json:"sessions_total"`
	SessionsCount      int        `json:"sessions_count"`
	CancellationsTotal float64    `json:"cancellations_total"`
	SubscriptionsTotal float64    `json:"subscriptions_total"`
	Total              float64    `json:"total"`
	AdjustmentAmount   *float64   `json:"manual_adjustment_amount,omitempty"`
	AdjustmentReason   string     `json:"manual_adjustment_reason,omitempty"`
	AdjustmentDate     *time.Time `json:"manual_adjustment_date,omitempty"`
}

func invoiceFromRecord(rec record) (invoicedomain.Invoice, error) {
	var fields invoiceFields
	if err := json.Unmarshal(rec.Fields, &fields); err != nil {
		return invoicedomain.Invoice{}, fmt.Errorf("invoice %s: %w", rec.ID, err)
	}
	return invoicedomain.Invoice{
		ID:                 rec.ID,
		CustomerID:         fields.Customer.first(),
		Period:             fields.Period,
		Status:             invoicedomain.Status(fields.Status),
		Paid:               fields.Paid,
		ApprovedForBilling: fields.ApprovedForBilling,
		LinkSent:           fields.LinkSent,
		SessionsTotal:      fields.SessionsTotal,
		SessionsCount:      fields.SessionsCount,
		CancellationsTotal: fields.CancellationsTotal,
		SubscriptionsTotal: fields.SubscriptionsTotal,
		Total:              fields.Total,
		AdjustmentAmount:   fields.AdjustmentAmount,
		AdjustmentReason:   fields.AdjustmentReason,
		AdjustmentDate:     fields.AdjustmentDate,
	}, nil
}

func invoiceToFields(inv *invoicedomain.Invoice) invoiceFields {
	return invoiceFields{
		Customer:           recordLink{inv.CustomerID},
		Period:             inv.Period,
		Status:             string(inv.Status),
		Paid:               inv.Paid,
		ApprovedForBilling: inv.ApprovedForBilling,
		LinkSent:           inv.LinkSent,
		SessionsTotal:      inv.SessionsTotal,
		SessionsCount:      inv.SessionsCount,
		CancellationsTotal: inv.CancellationsTotal,
		SubscriptionsTotal: inv.SubscriptionsTotal,
		Total:              inv.Total,
		AdjustmentAmount:   inv.AdjustmentAmount,
		AdjustmentReason:   inv.AdjustmentReason,
		AdjustmentDate:     inv.AdjustmentDate,
	}
}

func (c *Client) listInvoices(ctx context.Context, query url.Values) ([]invoicedomain.Invoice, error) {
	records, err := c.list(ctx, "invoices", query)
	if err != nil {
		return nil, err
	}
	invoices := make([]invoicedomain.Invoice, 0, len(records))
	for _, rec := range records {
		inv, err := invoiceFromRecord(rec)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}

func (c *Client) ListInvoices(ctx context.Context, customerID string, p period.Period) ([]invoicedomain.Invoice, error) {
	return c.listInvoices(ctx, url.Values{"customer": {customerID}, "period": {p.String()}})
}

func (c *Client) ListInvoicesByPeriod(ctx context.Context, p period.Period) ([]invoicedomain.Invoice, error) {
	return c.listInvoices(ctx, url.Values{"period": {p.String()}})
}

func (c *Client) CreateInvoice(ctx context.Context, inv *invoicedomain.Invoice) error {
	var created record
	body := map[string]any{"fields": invoiceToFields(inv)}
	if _, err := c.do(ctx, http.MethodPost, "/v1/invoices", nil, body, &created); err != nil {
		return err
	}
	inv.ID = created.ID
	return nil
}

func (c *Client) UpdateInvoice(ctx context.Context, inv *invoicedomain.Invoice) error {
	if inv.ID == "" {
		return errors.New("rest store: update requires an invoice id")
	}
	body := map[string]any{"fields": invoiceToFields(inv)}
	_, err := c.do(ctx, http.MethodPatch, "/v1/invoices/"+url.PathEscape(inv.ID), nil, body, nil)
	return err
}

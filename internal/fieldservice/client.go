package fieldservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"receivables/internal/core"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.servicetitan.io"
	DefaultAuthURL = "https://auth.servicetitan.io/connect/token"

	pageSize = 100
	maxPages = 20
)

// Config holds the field-service platform credentials.
type Config struct {
	BaseURL      string
	AuthURL      string
	ClientID     string
	ClientSecret string
	TenantID     string
	AppKey       string
	RatePerSec   float64
}

func (c Config) validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "client id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client secret")
	}
	if c.TenantID == "" {
		missing = append(missing, "tenant id")
	}
	if c.AppKey == "" {
		missing = append(missing, "app key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("field-service config missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Client talks to the field-service accounting API. It satisfies
// core.PaymentSource. Tokens are fetched and refreshed by the oauth2 transport.
type Client struct {
	http     *http.Client
	baseURL  string
	tenantID string
	appKey   string
	limiter  *rate.Limiter
}

var _ core.PaymentSource = (*Client)(nil)

// NewClient builds a client. ctx only carries the HTTP client used for token
// requests; it is not used for API calls.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.AuthURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	httpClient := cc.Client(ctx)
	httpClient.Timeout = 30 * time.Second

	return &Client{
		http:     httpClient,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		tenantID: cfg.TenantID,
		appKey:   cfg.AppKey,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
	}, nil
}

// ListCustomerPayments returns every payment of a customer. The platform's
// invoice filter is unreliable, so callers filter on AppliedTo themselves.
func (c *Client) ListCustomerPayments(ctx context.Context, customerID int64) ([]core.PaymentRecord, error) {
	var out []core.PaymentRecord
	for page := 1; page <= maxPages; page++ {
		q := url.Values{}
		q.Set("customerId", strconv.FormatInt(customerID, 10))
		q.Set("pageSize", strconv.Itoa(pageSize))
		q.Set("page", strconv.Itoa(page))

		var resp paymentsPage
		if err := c.get(ctx, "accounting/v2/tenant/"+c.tenantID+"/payments", q, &resp); err != nil {
			return nil, fmt.Errorf("failed to list payments for customer %d: %w", customerID, err)
		}
		for _, p := range resp.Data {
			rec, err := p.toRecord()
			if err != nil {
				return nil, fmt.Errorf("payment %d: %w", p.ID, err)
			}
			out = append(out, rec)
		}
		if !resp.HasMore {
			return out, nil
		}
	}
	return nil, fmt.Errorf("payments for customer %d span more than %d pages", customerID, maxPages)
}

// GetInvoiceByNumber resolves an invoice number to the platform's ids.
func (c *Client) GetInvoiceByNumber(ctx context.Context, number string) (*core.FSPInvoice, error) {
	q := url.Values{}
	q.Set("number", number)
	q.Set("pageSize", "5")

	var resp invoicesPage
	if err := c.get(ctx, "accounting/v2/tenant/"+c.tenantID+"/invoices", q, &resp); err != nil {
		return nil, fmt.Errorf("failed to look up invoice %s: %w", number, err)
	}
	for _, inv := range resp.Data {
		if strings.EqualFold(strings.TrimSpace(inv.ReferenceNumber), strings.TrimSpace(number)) {
			return &core.FSPInvoice{ID: inv.ID, Number: inv.ReferenceNumber, CustomerID: inv.Customer.ID}, nil
		}
	}
	return nil, fmt.Errorf("field-service invoice %s: %w", number, core.ErrNotFound)
}

// APIError is a non-2xx response from the platform.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("field-service API returned %d: %s", e.Status, e.Body)
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		// Wait fails early when the next token would arrive after the deadline.
		if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
			return fmt.Errorf("rate limit wait: %w", context.DeadlineExceeded)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}

	u := c.baseURL + "/" + endpoint
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("ST-App-Key", c.appKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return ctxErr
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		apiErr := &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %w", core.ErrNotFound, apiErr)
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

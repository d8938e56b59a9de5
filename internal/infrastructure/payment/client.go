package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the processor's REST API. Constructed explicitly and
// injected into the checkout and webhook services so tests can substitute
// the mock gateway.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// Connection reuse matters here: every checkout blocks on this API.
var defaultTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 100,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 5 * time.Second,
}

func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		httpClient: &http.Client{
			Transport: defaultTransport,
			Timeout:   timeout,
		},
	}
}

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error apiError `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("gateway %s %s: %d: %s", method, path, resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("gateway %s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode gateway response: %w", err)
		}
	}
	return nil
}

type createSessionRequest struct {
	LineItems       []LineItem        `json:"line_items"`
	ShippingOptions []ShippingOption  `json:"shipping_options,omitempty"`
	ShipCountries   []string          `json:"shipping_address_countries,omitempty"`
	CustomerEmail   string            `json:"customer_email"`
	SuccessURL      string            `json:"success_url"`
	CancelURL       string            `json:"cancel_url"`
	CouponID        string            `json:"coupon,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

func (c *Client) CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error) {
	req := createSessionRequest{
		LineItems:       params.LineItems,
		ShippingOptions: params.ShippingOptions,
		ShipCountries:   params.ShipCountries,
		CustomerEmail:   params.CustomerEmail,
		SuccessURL:      params.SuccessURL,
		CancelURL:       params.CancelURL,
		CouponID:        params.CouponID,
		Metadata:        params.Metadata,
	}
	var sess Session
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", req, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

type createCouponRequest struct {
	Kind     string `json:"kind"`
	Value    int64  `json:"value"`
	Currency string `json:"currency,omitempty"`
	// One-time coupons are consumed by the session they are attached to.
	Duration string `json:"duration"`
}

func (c *Client) CreateCoupon(ctx context.Context, params CouponParams) (string, error) {
	req := createCouponRequest{
		Kind:     params.Kind,
		Value:    params.Value,
		Currency: params.Currency,
		Duration: "once",
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/coupons", req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) RetrieveSession(ctx context.Context, sessionID string, expand ...string) (*Session, error) {
	path := "/v1/checkout/sessions/" + url.PathEscape(sessionID)
	if len(expand) > 0 {
		q := url.Values{}
		for _, e := range expand {
			q.Add("expand", e)
		}
		path += "?" + q.Encode()
	}
	var sess Session
	if err := c.do(ctx, http.MethodGet, path, nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

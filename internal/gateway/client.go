package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/commercekit/fulfillment/internal/domain"
)

// PaymentRequest is one payment submission. OrderKey is the UUIDv7
// idempotency token: the gateway treats resubmissions of the same key as the
// same payment, which is what makes retrying the submission safe.
type PaymentRequest struct {
	OrderKey    string             `json:"order_key"`
	UserID      string             `json:"user_id"`
	Amount      int64              `json:"amount"`
	Card        domain.CardDetails `json:"card"`
	CallbackURL string             `json:"callback_url"`
}

type PaymentResult struct {
	TransactionKey string                   `json:"transaction_key"`
	OrderKey       string                   `json:"order_key"`
	Status         domain.TransactionStatus `json:"status"`
	Reason         string                   `json:"reason,omitempty"`
}

type OrderResult struct {
	OrderKey     string          `json:"order_key"`
	Transactions []PaymentResult `json:"transactions"`
}

// Client speaks the external payment gateway's HTTP API. It does no retries
// or breaking itself; Resilient wraps it with those policies.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

func (c *Client) RequestPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request payment: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		var result PaymentResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode payment response: %w", err)
		}
		return &result, nil

	case resp.StatusCode == http.StatusUnprocessableEntity:
		// The gateway answered and refused: a business decline, not an outage.
		var decline struct {
			Reason string `json:"reason"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&decline)
		return nil, fmt.Errorf("%w: %s", domain.ErrPaymentDeclined, decline.Reason)

	default:
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
}

func (c *Client) FindOrder(ctx context.Context, orderKey string) (*OrderResult, error) {
	var result OrderResult
	if err := c.get(ctx, "/payments?order_key="+orderKey, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) FindTransaction(ctx context.Context, transactionKey string) (*PaymentResult, error) {
	var result PaymentResult
	if err := c.get(ctx, "/payments/"+transactionKey, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(out)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: gateway record", domain.ErrNotFound)
	default:
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
}

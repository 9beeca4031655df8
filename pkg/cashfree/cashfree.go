package cashfree

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	sandboxBaseURL    = "https://sandbox.cashfree.com/pg"
	productionBaseURL = "https://api.cashfree.com/pg"
	apiVersion        = "2022-09-01"
)

// OrderStatus is the gateway-reported state of an order, normalized at the
// client boundary so callers never branch on raw gateway strings.
type OrderStatus string

const (
	StatusPaid    OrderStatus = "PAID"
	StatusPending OrderStatus = "PENDING"
	StatusFailed  OrderStatus = "FAILED"
	StatusUnknown OrderStatus = "UNKNOWN"
)

// Client talks to the Cashfree Payment Gateway orders API.
type Client struct {
	baseURL   string
	appID     string
	secretKey string
	client    *http.Client
}

type Config struct {
	AppID      string
	SecretKey  string
	BaseURL    string // override; when empty, picked by Production
	Production bool
	Timeout    time.Duration
}

func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Production {
			baseURL = productionBaseURL
		} else {
			baseURL = sandboxBaseURL
		}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   baseURL,
		appID:     cfg.AppID,
		secretKey: cfg.SecretKey,
		client:    &http.Client{Timeout: timeout},
	}
}

// IsConfigured reports whether gateway credentials are present. Without them
// callers must fall back to the manual payment flow.
func (c *Client) IsConfigured() bool {
	return c.appID != "" && c.secretKey != ""
}

// APIError is a non-2xx response from Cashfree.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("cashfree: %s (%s)", e.Message, e.Status)
	}
	return fmt.Sprintf("cashfree: unexpected status %s", e.Status)
}

type Customer struct {
	ID    string
	Name  string
	Email string
	Phone string
}

type CreateOrderRequest struct {
	OrderID   string
	Amount    float64
	Currency  string
	Customer  Customer
	ReturnURL string
	NotifyURL string
}

type createOrderPayload struct {
	OrderID         string          `json:"order_id"`
	OrderAmount     float64         `json:"order_amount"`
	OrderCurrency   string          `json:"order_currency"`
	CustomerDetails customerDetails `json:"customer_details"`
	OrderMeta       orderMeta       `json:"order_meta"`
}

type customerDetails struct {
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
}

type orderMeta struct {
	ReturnURL string `json:"return_url,omitempty"`
	NotifyURL string `json:"notify_url,omitempty"`
}

type CreateOrderResponse struct {
	OrderID          string `json:"order_id"`
	PaymentSessionID string `json:"payment_session_id"`
	PaymentLink      string `json:"payment_link"`
}

// CreateOrder registers a new order with Cashfree and returns the payment
// session the front end uses to open checkout.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error) {
	payload := createOrderPayload{
		OrderID:       req.OrderID,
		OrderAmount:   req.Amount,
		OrderCurrency: req.Currency,
		CustomerDetails: customerDetails{
			CustomerID:    req.Customer.ID,
			CustomerName:  req.Customer.Name,
			CustomerEmail: req.Customer.Email,
			CustomerPhone: req.Customer.Phone,
		},
		OrderMeta: orderMeta{
			ReturnURL: req.ReturnURL,
			NotifyURL: req.NotifyURL,
		},
	}
	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("cashfree create order: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    messageFromBody(respBody),
			Body:       string(respBody),
		}
	}
	var out CreateOrderResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("cashfree create order: decode: %w", err)
	}
	if out.PaymentSessionID == "" {
		return nil, fmt.Errorf("cashfree: order response missing payment_session_id")
	}
	return &out, nil
}

// GetOrderStatus queries the gateway for an order's state. It never returns an
// error: an unreachable or misbehaving gateway maps to StatusUnknown so callers
// can fall back to their locally stored status.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) OrderStatus {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/orders/"+orderID, nil)
	if err != nil {
		return StatusUnknown
	}
	c.setHeaders(httpReq)
	resp, err := c.client.Do(httpReq)
	if err != nil {
		log.Printf("[Cashfree] status query failed for order_id=%s: %v", orderID, err)
		return StatusUnknown
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[Cashfree] status query for order_id=%s returned %s", orderID, resp.Status)
		return StatusUnknown
	}
	var out struct {
		OrderStatus string `json:"order_status"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		log.Printf("[Cashfree] status decode failed for order_id=%s: %v", orderID, err)
		return StatusUnknown
	}
	return ParseOrderStatus(out.OrderStatus)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-client-id", c.appID)
	req.Header.Set("x-client-secret", c.secretKey)
	req.Header.Set("x-api-version", apiVersion)
}

// ParseOrderStatus maps Cashfree order_status values onto the local enum.
func ParseOrderStatus(s string) OrderStatus {
	switch s {
	case "PAID":
		return StatusPaid
	case "ACTIVE", "PENDING":
		return StatusPending
	case "EXPIRED", "CANCELLED", "FAILED", "TERMINATED", "TERMINATION_REQUESTED":
		return StatusFailed
	default:
		return StatusUnknown
	}
}

func messageFromBody(body []byte) string {
	var out struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return ""
	}
	return out.Message
}

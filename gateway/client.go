package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"payments-service/domain"
)

var (
	// ErrAuth means the provider rejected our credentials. Surfaced to the
	// caller immediately, never retried.
	ErrAuth = errors.New("gateway rejected credentials")

	// ErrUnavailable covers timeouts, 5xx and rate limiting. The outcome of
	// the attempted operation is unknown, so it must never be recorded as a
	// terminal failure.
	ErrUnavailable = errors.New("gateway unavailable, try again later")
)

// RejectedError is a permanent, gateway-reported rejection of a specific
// request (for example a refund on an unsettled payment).
type RejectedError struct {
	Code        string
	Description string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("gateway rejected request: %s (%s)", e.Description, e.Code)
}

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type Refund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// OutcomeFromStatus maps a gateway refund status onto the updater's
// outcome. "partial" and "optimized" are terminal success states on the
// provider side.
func OutcomeFromStatus(status string) domain.RefundOutcome {
	switch status {
	case "processed", "partial", "optimized":
		return domain.OutcomeCompleted
	case "failed":
		return domain.OutcomeFailed
	default:
		return domain.OutcomePending
	}
}

// Client is the slice of the payment provider this service talks to.
type Client interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*Order, error)
	CreateRefund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (*Refund, error)
	FetchRefund(ctx context.Context, refundID string) (*Refund, error)
}

// RazorpayClient talks to the provider's REST API. Transient failures are
// retried with exponential backoff behind a circuit breaker; permanent
// rejections and credential failures come back on the first attempt.
type RazorpayClient struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger

	maxRetries int
	retryBase  time.Duration
}

func NewRazorpayClient(baseURL, keyID, keySecret string, logger *logrus.Logger) *RazorpayClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "PaymentGateway",
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("Circuit breaker state changed")
		},
	})

	return &RazorpayClient{
		baseURL:    baseURL,
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		breaker:    breaker,
		logger:     logger,
		maxRetries: 3,
		retryBase:  time.Second,
	}
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*Order, error) {
	payload := map[string]interface{}{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  receipt,
	}

	var order Order
	if err := c.do(ctx, http.MethodPost, "/orders", payload, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *RazorpayClient) CreateRefund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (*Refund, error) {
	payload := map[string]interface{}{
		"amount": amountMinor,
		"speed":  "normal",
		"notes":  notes,
	}

	var refund Refund
	path := fmt.Sprintf("/payments/%s/refund", paymentID)
	if err := c.do(ctx, http.MethodPost, path, payload, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (c *RazorpayClient) FetchRefund(ctx context.Context, refundID string) (*Refund, error) {
	var refund Refund
	path := fmt.Sprintf("/refunds/%s", refundID)
	if err := c.do(ctx, http.MethodGet, path, nil, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (c *RazorpayClient) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	operation := func() (interface{}, error) {
		return c.doOnce(ctx, method, path, payload)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return retryWithExponentialBackoff(ctx, c.maxRetries, c.retryBase, operation)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return ErrUnavailable
		}
		return err
	}

	body, ok := result.([]byte)
	if !ok {
		return errors.New("unexpected response type from circuit breaker")
	}
	return json.Unmarshal(body, out)
}

func (c *RazorpayClient) doOnce(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// A transport error (including timeout) leaves the outcome unknown.
		return nil, ErrUnavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrUnavailable
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrAuth
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, ErrUnavailable
	default:
		var apiErr struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error.Description == "" {
			return nil, &RejectedError{Code: "BAD_REQUEST", Description: string(body)}
		}
		return nil, &RejectedError{Code: apiErr.Error.Code, Description: apiErr.Error.Description}
	}
}

// retryWithExponentialBackoff retries transient failures only. Credential
// errors and permanent rejections abort straight away.
func retryWithExponentialBackoff(ctx context.Context, maxRetries int, base time.Duration, operation func() (interface{}, error)) (interface{}, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		if attempt == maxRetries {
			break
		}

		backoff := time.Duration(attempt*attempt) * base
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, lastErr
}

package paymentgw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/gearshare/service-reservation/internal/domain/shared"
)

// Confirmation is the gateway's answer for one payment token.
type Confirmation struct {
	Success bool   `json:"success"`
	Amount  int64  `json:"amount"`
	Receipt string `json:"receipt_id"`
}

// Gateway confirms that a charge succeeded before the engine accepts a
// pay transition.
type Gateway interface {
	// Confirm checks the charge behind the token. The call is bounded
	// by the configured confirmation window; exceeding it surfaces a
	// payment-timeout domain error and leaves no state behind.
	Confirm(ctx context.Context, token string) (Confirmation, error)
}

// Client is the HTTP adapter for the external payment gateway.
type Client struct {
	baseURL        string
	apiKey         string
	confirmTimeout time.Duration
	http           *http.Client
	breaker        *gobreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewClient creates a payment gateway Client.
func NewClient(baseURL, apiKey string, confirmTimeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:        baseURL,
		apiKey:         apiKey,
		confirmTimeout: confirmTimeout,
		http:           &http.Client{Timeout: confirmTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "payment-gateway",
			MaxRequests: 1,
			Timeout:     15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 3
			},
		}),
		logger: logger,
	}
}

// Confirm checks the charge behind the token with the gateway.
func (c *Client) Confirm(ctx context.Context, token string) (Confirmation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.confirm(ctx, token)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Confirmation{}, shared.NewPaymentTimeoutError("payment confirmation did not arrive in time")
		}
		if de, ok := err.(*shared.DomainError); ok {
			return Confirmation{}, de
		}
		return Confirmation{}, fmt.Errorf("payment gateway unavailable: %w", err)
	}
	return result.(Confirmation), nil
}

func (c *Client) confirm(ctx context.Context, token string) (Confirmation, error) {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return Confirmation{}, fmt.Errorf("failed to marshal confirm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payments/confirm", bytes.NewReader(body))
	if err != nil {
		return Confirmation{}, fmt.Errorf("failed to build confirm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Confirmation{}, context.DeadlineExceeded
		}
		return Confirmation{}, fmt.Errorf("confirm request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Confirmation{}, fmt.Errorf("payment gateway returned status %d", resp.StatusCode)
	}

	var conf Confirmation
	if err := json.NewDecoder(resp.Body).Decode(&conf); err != nil {
		return Confirmation{}, fmt.Errorf("failed to decode confirmation: %w", err)
	}
	if !conf.Success {
		return Confirmation{}, shared.NewValidationError("payment was not confirmed by the gateway")
	}
	return conf, nil
}

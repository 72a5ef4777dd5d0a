// Package payment is a mocked capture gateway. The real processing
// protocol is an external collaborator; this client only simulates the
// post-authorization capture call.
package payment

import (
	"context"
	"fmt"
	"time"
)

// Receipt is the gateway's response to a capture.
type Receipt struct {
	Success       bool    `json:"success"`
	PaymentIntent string  `json:"paymentIntent"`
	Amount        float64 `json:"amount"`
}

// Client simulates a payment gateway.
type Client struct {
	delay time.Duration
}

// NewClient creates a mock client with the given simulated latency.
func NewClient(delay time.Duration) *Client {
	return &Client{delay: delay}
}

// Process simulates capturing a payment. It honors context
// cancellation during the simulated latency.
func (c *Client) Process(ctx context.Context, amount float64) (Receipt, error) {
	if amount <= 0 {
		return Receipt{}, fmt.Errorf("payment: invalid amount %.2f", amount)
	}

	if c.delay > 0 {
		timer := time.NewTimer(c.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		case <-timer.C:
		}
	}

	return Receipt{
		Success:       true,
		PaymentIntent: fmt.Sprintf("pi_test_%d", time.Now().UnixNano()),
		Amount:        amount,
	}, nil
}

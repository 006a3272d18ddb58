package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/atelier/backend/internal/domain/integration"
	"github.com/atelier/backend/internal/domain/order"
)

// maxResponseSize is the maximum allowed response size from the payment service (1MB)
const maxResponseSize = 1 * 1024 * 1024

// ErrPaymentMissingBaseURL indicates an unconfigured payment service
var ErrPaymentMissingBaseURL = errors.New("payment: reconciliation service base URL is required")

// ReconciliationClient implements the PaymentReconciliationService port
// against the payment service's HTTP API. A check asks the service to
// verify the order's payment state after shipment or completion.
type ReconciliationClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewReconciliationClient creates a new payment reconciliation client
func NewReconciliationClient(baseURL string, timeout time.Duration) (*ReconciliationClient, error) {
	if baseURL == "" {
		return nil, ErrPaymentMissingBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ReconciliationClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// paymentCheckRequest is the wire shape of a payment check
type paymentCheckRequest struct {
	OrderID      string `json:"order_id"`
	TransitionID string `json:"transition_id"`
	Status       string `json:"status"`
	AppliedAt    string `json:"applied_at"`
}

// paymentCheckResponse is the service's verdict
type paymentCheckResponse struct {
	Settled bool   `json:"settled"`
	Detail  string `json:"detail,omitempty"`
}

// Check verifies the order's payment state after shipment or completion
func (c *ReconciliationClient) Check(ctx context.Context, orderID uuid.UUID, transition *order.Transition) error {
	payload, err := json.Marshal(paymentCheckRequest{
		OrderID:      orderID.String(),
		TransitionID: transition.ID.String(),
		Status:       string(transition.ToStatus),
		AppliedAt:    transition.AppliedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/checks", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("payment: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", integration.ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("payment: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", integration.ErrPlatformUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: HTTP %d", integration.ErrPlatformRequestFailed, resp.StatusCode)
	}

	var verdict paymentCheckResponse
	if err := json.Unmarshal(body, &verdict); err != nil {
		return fmt.Errorf("%w: failed to parse response: %v",
			integration.ErrPlatformInvalidResponse, err)
	}
	if !verdict.Settled {
		return fmt.Errorf("%w: payment not settled: %s",
			integration.ErrPlatformRequestFailed, verdict.Detail)
	}

	return nil
}

// Ensure ReconciliationClient implements the PaymentReconciliationService port
var _ integration.PaymentReconciliationService = (*ReconciliationClient)(nil)

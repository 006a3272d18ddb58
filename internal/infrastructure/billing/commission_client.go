package billing

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

// maxResponseSize is the maximum allowed response size from the commission service (1MB)
const maxResponseSize = 1 * 1024 * 1024

// ErrCommissionMissingBaseURL indicates an unconfigured commission service
var ErrCommissionMissingBaseURL = errors.New("billing: commission service base URL is required")

// CommissionClient implements the CommissionService port against the
// maker-commission service's HTTP API. Accruals are keyed on the transition
// id, so re-sending the same accrual is safe: the service answers 409 for a
// transition it has already booked and the client treats that as success.
type CommissionClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewCommissionClient creates a new commission service client
func NewCommissionClient(baseURL string, timeout time.Duration) (*CommissionClient, error) {
	if baseURL == "" {
		return nil, ErrCommissionMissingBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &CommissionClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// commissionAccrualRequest is the wire shape of an accrual booking
type commissionAccrualRequest struct {
	OrderID      string `json:"order_id"`
	TransitionID string `json:"transition_id"`
	FromStatus   string `json:"from_status"`
	ToStatus     string `json:"to_status"`
	AppliedAt    string `json:"applied_at"`
}

// Accrue records the maker's commission for a completed order
func (c *CommissionClient) Accrue(ctx context.Context, orderID uuid.UUID, transition *order.Transition) error {
	payload, err := json.Marshal(commissionAccrualRequest{
		OrderID:      orderID.String(),
		TransitionID: transition.ID.String(),
		FromStatus:   string(transition.FromStatus),
		ToStatus:     string(transition.ToStatus),
		AppliedAt:    transition.AppliedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/accruals", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("billing: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", integration.ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		// Already accrued for this transition
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", integration.ErrPlatformUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: HTTP %d", integration.ErrPlatformRequestFailed, resp.StatusCode)
	}
}

// Ensure CommissionClient implements the CommissionService port
var _ integration.CommissionService = (*CommissionClient)(nil)

package woocommerce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier/backend/internal/domain/integration"
	"github.com/atelier/backend/internal/domain/order"
	"github.com/atelier/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr error
	}{
		{
			name:    "valid config",
			config:  NewConfig("https://shop.example.com", "ck_test", "cs_test"),
			wantErr: nil,
		},
		{
			name:    "missing base url",
			config:  &Config{ConsumerKey: "ck_test", ConsumerSecret: "cs_test"},
			wantErr: ErrConfigMissingBaseURL,
		},
		{
			name:    "missing consumer key",
			config:  &Config{BaseURL: "https://shop.example.com", ConsumerSecret: "cs_test"},
			wantErr: ErrConfigMissingConsumerKey,
		},
		{
			name:    "missing consumer secret",
			config:  &Config{BaseURL: "https://shop.example.com", ConsumerKey: "ck_test"},
			wantErr: ErrConfigMissingConsumerSecret,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
				assert.True(t, tt.config.TimeoutSeconds > 0)
				assert.True(t, tt.config.PageSize > 0)
			}
		})
	}
}

func TestConfig_OrdersURL(t *testing.T) {
	config := NewConfig("https://shop.example.com/", "ck", "cs")
	require.NoError(t, config.Validate())
	assert.Equal(t, "https://shop.example.com/wp-json/wc/v3/orders", config.OrdersURL())
}

// ---------------------------------------------------------------------------
// Normalization Tests
// ---------------------------------------------------------------------------

func newTestAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()
	config := NewConfig(baseURL, "ck_test", "cs_test")
	config.PageSize = 2
	adapter, err := NewAdapter(config)
	require.NoError(t, err)
	return adapter
}

const sampleOrderPayload = `{
	"id": 813,
	"number": "813",
	"status": "processing",
	"currency": "EUR",
	"total": "214.50",
	"customer_id": 26,
	"date_created_gmt": "2026-03-01T09:00:00",
	"date_modified_gmt": "2026-03-02T10:30:00",
	"billing": {
		"first_name": "Jonas", "last_name": "Weber",
		"address_1": "Lindenstr. 5", "city": "Leipzig", "postcode": "04109",
		"country": "DE", "email": "jonas@example.com", "phone": "+49341555"
	},
	"shipping": {
		"first_name": "Jonas", "last_name": "Weber",
		"address_1": "Lindenstr. 5", "city": "Leipzig", "postcode": "04109", "country": "DE"
	},
	"line_items": [
		{"id": 1, "name": "Ash coat rack", "quantity": 1, "price": 89.5, "total": "89.50"},
		{"id": 2, "name": "Cedar box", "quantity": 5, "price": 25.0, "total": "125.00"}
	]
}`

func TestAdapter_Normalize(t *testing.T) {
	adapter := newTestAdapter(t, "https://shop.example.com")

	t.Run("normalizes a full order payload", func(t *testing.T) {
		event, err := adapter.Normalize([]byte(sampleOrderPayload))
		require.NoError(t, err)

		assert.Equal(t, "813", event.ExternalOrderID)
		assert.Equal(t, integration.EventKindUpdated, event.Kind)
		assert.Equal(t, time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC), event.OccurredAt)
		assert.Equal(t, order.OrderStatusInProduction, event.Snapshot.Status)

		require.NotNil(t, event.Snapshot.Buyer)
		assert.Equal(t, "Jonas Weber", event.Snapshot.Buyer.Name)
		assert.Equal(t, "jonas@example.com", event.Snapshot.Buyer.Email)
		assert.Equal(t, "26", event.Snapshot.Buyer.ExternalID)

		require.NotNil(t, event.Snapshot.Shipping)
		assert.Equal(t, "Lindenstr. 5", event.Snapshot.Shipping.Address)
		assert.Equal(t, "+49341555", event.Snapshot.Shipping.ReceiverPhone) // falls back to billing

		require.Len(t, event.Snapshot.Items, 2)
		assert.Equal(t, "Ash coat rack", event.Snapshot.Items[0].ProductName)
		assert.True(t, event.Snapshot.Items[0].UnitPrice.Equal(decimal.NewFromFloat(89.5)))

		require.NotNil(t, event.Snapshot.Total)
		assert.True(t, event.Snapshot.Total.Equal(decimal.RequireFromString("214.50")))
	})

	t.Run("event id is stable across redeliveries", func(t *testing.T) {
		first, err := adapter.Normalize([]byte(sampleOrderPayload))
		require.NoError(t, err)
		second, err := adapter.Normalize([]byte(sampleOrderPayload))
		require.NoError(t, err)
		assert.Equal(t, first.EventID, second.EventID)
	})

	t.Run("classifies an untouched order as created", func(t *testing.T) {
		payload := `{"id": 1, "status": "pending",
			"date_created_gmt": "2026-03-01T09:00:00",
			"date_modified_gmt": "2026-03-01T09:00:00"}`
		event, err := adapter.Normalize([]byte(payload))
		require.NoError(t, err)
		assert.Equal(t, integration.EventKindCreated, event.Kind)
		assert.Equal(t, order.OrderStatusDraft, event.Snapshot.Status)
	})

	t.Run("classifies cancellation statuses as cancelled", func(t *testing.T) {
		for _, status := range []string{"cancelled", "failed"} {
			payload := `{"id": 2, "status": "` + status + `",
				"date_created_gmt": "2026-03-01T09:00:00",
				"date_modified_gmt": "2026-03-01T11:00:00"}`
			event, err := adapter.Normalize([]byte(payload))
			require.NoError(t, err)
			assert.Equal(t, integration.EventKindCancelled, event.Kind)
			assert.Equal(t, order.OrderStatusCancelled, event.Snapshot.Status)
		}
	})

	t.Run("rejects invalid payloads", func(t *testing.T) {
		tests := []struct {
			name    string
			payload string
		}{
			{"not json", `{{`},
			{"missing order id", `{"status": "pending", "date_modified_gmt": "2026-03-01T09:00:00"}`},
			{"missing timestamp", `{"id": 3, "status": "pending"}`},
			{"unparsable timestamp", `{"id": 3, "status": "pending", "date_modified_gmt": "not-a-time"}`},
			{"missing status", `{"id": 3, "date_modified_gmt": "2026-03-01T09:00:00"}`},
			{"unknown status", `{"id": 3, "status": "trash", "date_modified_gmt": "2026-03-01T09:00:00"}`},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := adapter.Normalize([]byte(tt.payload))
				require.Error(t, err)

				var domainErr *shared.DomainError
				require.ErrorAs(t, err, &domainErr)
				assert.Equal(t, integration.ErrCodeValidation, domainErr.Code)
			})
		}
	})
}

func TestMapWooStatus(t *testing.T) {
	tests := []struct {
		wooStatus string
		want      order.OrderStatus
	}{
		{"pending", order.OrderStatusDraft},
		{"on-hold", order.OrderStatusDraft},
		{"processing", order.OrderStatusInProduction},
		{"ready-to-ship", order.OrderStatusReadyToShip},
		{"wc-ready-to-ship", order.OrderStatusReadyToShip},
		{"shipped", order.OrderStatusShipped},
		{"completed", order.OrderStatusCompleted},
		{"cancelled", order.OrderStatusCancelled},
		{"failed", order.OrderStatusCancelled},
		{"refunded", order.OrderStatusRefunded},
	}

	for _, tt := range tests {
		t.Run(tt.wooStatus, func(t *testing.T) {
			got, ok := MapWooStatus(tt.wooStatus)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown status", func(t *testing.T) {
		_, ok := MapWooStatus("trash")
		assert.False(t, ok)
	})
}

// ---------------------------------------------------------------------------
// Order Operation Tests
// ---------------------------------------------------------------------------

func TestAdapter_PullOrders(t *testing.T) {
	makeOrder := func(id int64, modified string) map[string]interface{} {
		return map[string]interface{}{
			"id":                id,
			"status":            "processing",
			"date_created_gmt":  "2026-03-01T08:00:00",
			"date_modified_gmt": modified,
		}
	}

	t.Run("pages through the window and normalizes each order", func(t *testing.T) {
		var pagesServed []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "ck_test", user)
			assert.Equal(t, "cs_test", pass)
			assert.Equal(t, "/wp-json/wc/v3/orders", r.URL.Path)
			assert.Equal(t, "modified", r.URL.Query().Get("orderby"))

			page := r.URL.Query().Get("page")
			pagesServed = append(pagesServed, page)

			w.Header().Set("Content-Type", "application/json")
			switch page {
			case "1":
				json.NewEncoder(w).Encode([]interface{}{
					makeOrder(101, "2026-03-02T09:00:00"),
					makeOrder(102, "2026-03-02T09:05:00"),
				})
			default:
				json.NewEncoder(w).Encode([]interface{}{
					makeOrder(103, "2026-03-02T09:10:00"),
				})
			}
		}))
		defer server.Close()

		adapter := newTestAdapter(t, server.URL)
		events, err := adapter.PullOrders(context.Background(),
			time.Now().Add(-time.Hour), time.Now())
		require.NoError(t, err)

		assert.Equal(t, []string{"1", "2"}, pagesServed)
		require.Len(t, events, 3)
		assert.Equal(t, "101", events[0].ExternalOrderID)
		assert.Equal(t, "103", events[2].ExternalOrderID)
	})

	t.Run("skips orders in unmapped plugin statuses", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if r.URL.Query().Get("page") != "1" {
				w.Write([]byte(`[]`))
				return
			}
			json.NewEncoder(w).Encode([]interface{}{
				makeOrder(201, "2026-03-02T09:00:00"),
				map[string]interface{}{
					"id": 202, "status": "checkout-draft",
					"date_modified_gmt": "2026-03-02T09:01:00",
				},
			})
		}))
		defer server.Close()

		adapter := newTestAdapter(t, server.URL)
		events, err := adapter.PullOrders(context.Background(),
			time.Now().Add(-time.Hour), time.Now())
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "201", events[0].ExternalOrderID)
	})

	t.Run("maps auth failures", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		adapter := newTestAdapter(t, server.URL)
		_, err := adapter.PullOrders(context.Background(), time.Now().Add(-time.Hour), time.Now())
		assert.ErrorIs(t, err, integration.ErrPlatformAuthFailed)
	})

	t.Run("maps server errors to unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		adapter := newTestAdapter(t, server.URL)
		_, err := adapter.PullOrders(context.Background(), time.Now().Add(-time.Hour), time.Now())
		assert.ErrorIs(t, err, integration.ErrPlatformUnavailable)
	})
}

func TestAdapter_UpdateOrderStatus(t *testing.T) {
	t.Run("pushes the mapped status", func(t *testing.T) {
		var gotBody wooStatusUpdateRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "/wp-json/wc/v3/orders/813", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id": 813, "status": "shipped"}`))
		}))
		defer server.Close()

		adapter := newTestAdapter(t, server.URL)
		err := adapter.UpdateOrderStatus(context.Background(), "813", order.OrderStatusShipped)
		require.NoError(t, err)
		assert.Equal(t, "shipped", gotBody.Status)
	})

	t.Run("rejects a non-numeric external id", func(t *testing.T) {
		adapter := newTestAdapter(t, "https://shop.example.com")
		err := adapter.UpdateOrderStatus(context.Background(), "not-a-number", order.OrderStatusShipped)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, integration.ErrCodeValidation, domainErr.Code)
	})

	t.Run("surfaces the woocommerce error envelope", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code": "woocommerce_rest_invalid_id", "message": "Invalid ID."}`))
		}))
		defer server.Close()

		adapter := newTestAdapter(t, server.URL)
		err := adapter.UpdateOrderStatus(context.Background(), "999", order.OrderStatusCompleted)
		require.ErrorIs(t, err, integration.ErrPlatformRequestFailed)
		assert.Contains(t, err.Error(), "woocommerce_rest_invalid_id")
	})
}

package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// OrderSortFields contains allowed sort fields for orders
var OrderSortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"order_number": true,
	"external_id":  true,
	"customer_id":  true,
	"status":       true,
	"total_amount": true,
	"confirmed_at": true,
	"shipped_at":   true,
	"completed_at": true,
}

// CustomerSortFields contains allowed sort fields for customers
var CustomerSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"name":       true,
	"email":      true,
	"source":     true,
}

// SyncRecordSortFields contains allowed sort fields for sync records
var SyncRecordSortFields = map[string]bool{
	"id":                true,
	"event_id":          true,
	"external_order_id": true,
	"outcome":           true,
	"applied_at":        true,
}

// ParkedEventSortFields contains allowed sort fields for dead-lettered events
var ParkedEventSortFields = map[string]bool{
	"id":                true,
	"event_id":          true,
	"external_order_id": true,
	"retry_count":       true,
	"parked_at":         true,
}

// TransitionSortFields contains allowed sort fields for order transitions
var TransitionSortFields = map[string]bool{
	"id":         true,
	"order_id":   true,
	"applied_at": true,
}

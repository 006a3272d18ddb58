// Package integration contains the Integration bounded context.
// This context manages the synchronization of storefront orders into the
// canonical order book.
//
// Key concepts:
//   - ExternalOrderEvent: Normalized, immutable change notification from the storefront
//   - IdempotencyLedger: Port guaranteeing each event mutates state at most once
//   - StorefrontPlatform: Port for pulling orders from and pushing statuses to the storefront
//   - ParkedEvent: Dead-lettered event awaiting operator replay
//   - DispatchReceipt: Exactly-once bookkeeping for side effects of status transitions
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration

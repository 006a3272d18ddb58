package integration

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelier/backend/internal/domain/integration"
	"github.com/atelier/backend/internal/domain/order"
	"github.com/atelier/backend/internal/domain/partner"
	"github.com/atelier/backend/internal/domain/shared"
	"github.com/atelier/backend/internal/infrastructure/logger"
)

// externalOrderNumberPrefix prefixes order numbers minted for
// storefront-created orders, e.g. WC-813
const externalOrderNumberPrefix = "WC-"

// ReconciliationOutcome classifies how an event left Reconcile
type ReconciliationOutcome string

const (
	// OutcomeApplied means the event mutated local state
	OutcomeApplied ReconciliationOutcome = "applied"
	// OutcomeRejected means a business rule finally rejected the event
	OutcomeRejected ReconciliationOutcome = "rejected"
	// OutcomeReplayed means the ledger short-circuited a duplicate
	OutcomeReplayed ReconciliationOutcome = "replayed"
)

// ReconciliationResult reports what an event did to local state
type ReconciliationResult struct {
	EventID      string
	Outcome      ReconciliationOutcome
	LocalOrderID *uuid.UUID
	Status       order.OrderStatus
	RejectReason string
}

// Reconciler merges external order events into canonical local orders.
// It owns all writes to the orders' source-of-truth stamps; status changes
// are delegated to the state machine, side effects to the dispatcher.
type Reconciler struct {
	ledger      integration.IdempotencyLedger
	orders      order.OrderRepository
	customers   partner.CustomerRepository
	transitions order.TransitionRepository
	machine     *order.StateMachine
	dispatcher  *EffectDispatcher
	logger      *zap.Logger
}

// ReconcilerOption configures the Reconciler
type ReconcilerOption func(*Reconciler)

// WithReconcilerLogger sets the logger
func WithReconcilerLogger(l *zap.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// NewReconciler creates a new Reconciler
func NewReconciler(
	ledger integration.IdempotencyLedger,
	orders order.OrderRepository,
	customers partner.CustomerRepository,
	transitions order.TransitionRepository,
	machine *order.StateMachine,
	dispatcher *EffectDispatcher,
	opts ...ReconcilerOption,
) *Reconciler {
	r := &Reconciler{
		ledger:      ledger,
		orders:      orders,
		customers:   customers,
		transitions: transitions,
		machine:     machine,
		dispatcher:  dispatcher,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile processes one external order event to completion.
//
// Returned errors are retryable: the reservation has been released (or was
// never taken) and re-submitting the same event is safe. Business-rule
// rejections are not errors; they are committed to the ledger as final and
// reported through the result.
func (r *Reconciler) Reconcile(ctx context.Context, event *integration.ExternalOrderEvent) (*ReconciliationResult, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	ctx, log := logger.WithEventID(ctx, logger.L(ctx), event.EventID)
	log = log.With(
		zap.String("external_order_id", event.ExternalOrderID),
		zap.String("kind", string(event.Kind)),
	)

	check, err := r.ledger.CheckAndReserve(ctx, event.EventID)
	if err != nil {
		return nil, err
	}
	if check.Applied != nil {
		log.Debug("event replay short-circuited by ledger")
		return resultFromRecord(check.Applied), nil
	}

	result, err := r.apply(ctx, event)
	if err != nil {
		var domainErr *shared.DomainError
		if errors.As(err, &domainErr) && isFinalRejection(domainErr.Code) {
			// The decision is final given available information: commit
			// it so replays of this event short-circuit instead of
			// re-deriving the same rejection.
			record := integration.NewRejectedSyncRecord(event, result.LocalOrderID, domainErr.Message)
			if commitErr := r.ledger.Commit(ctx, record); commitErr != nil {
				return nil, commitErr
			}
			log.Info("event rejected",
				zap.String("code", domainErr.Code), zap.String("reason", domainErr.Message))
			result.Outcome = OutcomeRejected
			result.RejectReason = domainErr.Message
			return result, nil
		}

		// Transient: release the reservation so the coordinator can retry
		if releaseErr := r.ledger.Release(ctx, event.EventID); releaseErr != nil {
			log.Warn("failed to release reservation", zap.Error(releaseErr))
		}
		return nil, err
	}

	record := integration.NewSyncRecord(event, *result.LocalOrderID, string(result.Status))
	if err := r.ledger.Commit(ctx, record); err != nil {
		return nil, err
	}

	log.Info("event applied",
		zap.String("order_id", result.LocalOrderID.String()),
		zap.String("status", string(result.Status)))
	return result, nil
}

// isFinalRejection reports whether a domain error code is a business-rule
// rejection that must be recorded instead of retried
func isFinalRejection(code string) bool {
	switch code {
	case order.ErrCodeInvalidTransition,
		order.ErrCodeStaleExternalUpdate,
		order.ErrCodeTerminalStateViolation:
		return true
	default:
		return false
	}
}

// apply runs the merge steps against the canonical order. On a final
// rejection the returned result still carries the order id so the ledger
// entry can reference it.
func (r *Reconciler) apply(ctx context.Context, event *integration.ExternalOrderEvent) (*ReconciliationResult, error) {
	result := &ReconciliationResult{
		EventID: event.EventID,
		Outcome: OutcomeApplied,
	}

	seeded := false
	o, err := r.orders.FindByExternalID(ctx, event.ExternalOrderID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return result, err
		}
		if event.Kind != integration.EventKindCreated {
			// Out-of-order delivery: the created event has not arrived
			// yet. Transient; the coordinator retries with backoff and
			// parks the event if the order never materializes.
			return result, integration.NewOrderNotYetSyncedError(event.ExternalOrderID)
		}
		o, err = r.createOrder(ctx, event)
		if err != nil {
			return result, err
		}
		// A fresh order's stamps equal the event time, so the strictly
		// newer rule would skip the creating snapshot itself
		seeded = true
	}

	result.LocalOrderID = &o.ID

	// Merge non-status field groups, newest timestamp wins per group
	r.mergeShipping(o, event, seeded)
	r.mergeItems(o, event, seeded)

	// Delegate the status group to the state machine
	var transition *order.Transition
	replayed := false
	if event.Snapshot.HasStatus() && event.Snapshot.Status != o.Status {
		transition, replayed, err = r.machine.Apply(ctx, o, event.Snapshot.Status,
			order.OriginExternal, event.OccurredAt, &event.EventID, cancelReasonFor(event))
		if err != nil {
			// Persist any merged groups before reporting the rejection;
			// the status decision does not veto the other groups.
			if saveErr := r.orders.Save(ctx, o); saveErr != nil {
				return result, saveErr
			}
			result.Status = o.Status
			return result, err
		}
	}

	if err := r.orders.Save(ctx, o); err != nil {
		return result, err
	}
	if transition != nil && !replayed {
		if err := r.transitions.Append(ctx, transition); err != nil {
			return result, err
		}
		if err := r.dispatcher.Dispatch(ctx, o, transition); err != nil {
			return result, err
		}
	}
	o.ClearDomainEvents()

	result.Status = o.Status
	return result, nil
}

// createOrder seeds a canonical order from a created event's snapshot
func (r *Reconciler) createOrder(ctx context.Context, event *integration.ExternalOrderEvent) (*order.Order, error) {
	customer, err := r.findOrCreateCustomer(ctx, event.Snapshot.Buyer)
	if err != nil {
		return nil, err
	}

	orderNumber := externalOrderNumberPrefix + event.ExternalOrderID
	o, err := order.NewExternalOrder(orderNumber, event.ExternalOrderID, customer.ID, event.OccurredAt)
	if err != nil {
		return nil, err
	}
	if event.Snapshot.Currency != "" {
		o.Currency = event.Snapshot.Currency
	}

	if err := r.orders.Save(ctx, o); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// Lost a race with a concurrent delivery of the same order
			return r.orders.FindByExternalID(ctx, event.ExternalOrderID)
		}
		return nil, err
	}
	o.ClearDomainEvents()

	// Record the genesis transition so the audit trail starts at intake
	genesis := order.NewTransition(o.ID, order.OrderStatusDraft, order.OrderStatusDraft,
		order.OriginExternal, &event.EventID, event.OccurredAt)
	if err := r.transitions.Append(ctx, genesis); err != nil {
		return nil, err
	}

	logger.L(ctx).Info("order created from storefront",
		zap.String("order_id", o.ID.String()),
		zap.String("order_number", o.OrderNumber))
	return o, nil
}

// findOrCreateCustomer resolves the buyer behind a storefront order:
// stable storefront id first, then email, then phone, then a fresh record
func (r *Reconciler) findOrCreateCustomer(ctx context.Context, buyer *integration.BuyerInfo) (*partner.Customer, error) {
	if buyer == nil {
		buyer = &integration.BuyerInfo{}
	}

	if buyer.ExternalID != "" {
		customer, err := r.customers.FindByExternalID(ctx, buyer.ExternalID)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}
	if buyer.Email != "" {
		customer, err := r.customers.FindByEmail(ctx, buyer.Email)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}
	if buyer.Phone != "" {
		customer, err := r.customers.FindByPhone(ctx, buyer.Phone)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}

	customer, err := partner.NewExternalCustomer(buyer.Name, buyer.Email, buyer.Phone, buyer.ExternalID)
	if err != nil {
		return nil, err
	}
	if err := r.customers.Save(ctx, customer); err != nil {
		return nil, err
	}
	customer.ClearDomainEvents()
	return customer, nil
}

// mergeShipping overwrites the shipping group if the event is newer
func (r *Reconciler) mergeShipping(o *order.Order, event *integration.ExternalOrderEvent, force bool) {
	if !event.Snapshot.HasShipping() {
		return
	}
	if !force && !o.ShippingStamp.SupersededBy(event.OccurredAt) {
		return
	}
	s := event.Snapshot.Shipping
	o.SetShipping(order.ShippingInfo{
		ReceiverName:  s.ReceiverName,
		ReceiverPhone: s.ReceiverPhone,
		Address:       s.Address,
		City:          s.City,
		PostalCode:    s.PostalCode,
	}, order.OriginExternal, event.OccurredAt)
}

// mergeItems overwrites the items group and the storefront total if the
// event is newer
func (r *Reconciler) mergeItems(o *order.Order, event *integration.ExternalOrderEvent, force bool) {
	if !event.Snapshot.HasItems() {
		return
	}
	if !force && !o.ItemsStamp.SupersededBy(event.OccurredAt) {
		return
	}

	items := make([]order.OrderItem, 0, len(event.Snapshot.Items))
	for _, si := range event.Snapshot.Items {
		item, err := order.NewOrderItem(o.ID, si.ProductName, si.Quantity, si.UnitPrice)
		if err != nil {
			// Item validity was checked by event.Validate
			continue
		}
		items = append(items, *item)
	}
	o.ReplaceItems(items, order.OriginExternal, event.OccurredAt)

	if event.Snapshot.Total != nil {
		o.SetTotal(*event.Snapshot.Total, event.Snapshot.Currency)
	}
}

// cancelReasonFor returns the recorded cancel reason for cancellation events
func cancelReasonFor(event *integration.ExternalOrderEvent) string {
	if event.Kind == integration.EventKindCancelled ||
		event.Snapshot.Status == order.OrderStatusCancelled {
		return "cancelled on storefront"
	}
	return ""
}

// resultFromRecord rebuilds a result from a committed ledger record
func resultFromRecord(record *integration.SyncRecord) *ReconciliationResult {
	result := &ReconciliationResult{
		EventID:      record.EventID,
		Outcome:      OutcomeReplayed,
		LocalOrderID: record.LocalOrderID,
		Status:       order.OrderStatus(record.ResultingStatus),
		RejectReason: record.RejectReason,
	}
	return result
}

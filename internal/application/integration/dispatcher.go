package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelier/backend/internal/domain/integration"
	"github.com/atelier/backend/internal/domain/order"
	"github.com/atelier/backend/internal/domain/shared"
	"github.com/atelier/backend/internal/infrastructure/logger"
)

// EffectDispatcher fires the downstream side effects of applied status
// transitions exactly once. Effects are keyed on the transition id, never
// on the triggering event, so a replayed or re-enqueued event can never
// double-fire an effect for a transition that already has one.
//
// The receipt is written before the effect call. If the process crashes
// between the call and the receipt update, the receipt stays pending and
// the retry pass re-executes the call; collaborators are expected to
// deduplicate on the transition id (the commission service answers 409
// for an accrual it already booked).
type EffectDispatcher struct {
	receipts    integration.DispatchReceiptRepository
	orders      order.OrderRepository
	transitions order.TransitionRepository
	commission  integration.CommissionService
	payments    integration.PaymentReconciliationService
	storefront  integration.StorefrontPlatform
	guard       shared.IdempotencyStore
	guardTTL    time.Duration
	logger      *zap.Logger
}

// defaultGuardTTL bounds how long an execution claim can survive a crashed
// worker. Receipts stay authoritative, so an expired mark only costs one
// extra receipt lookup.
const defaultGuardTTL = 5 * time.Minute

// DispatcherOption configures the EffectDispatcher
type DispatcherOption func(*EffectDispatcher)

// WithDispatcherLogger sets the logger
func WithDispatcherLogger(l *zap.Logger) DispatcherOption {
	return func(d *EffectDispatcher) {
		d.logger = l
	}
}

// WithDispatcherGuard attaches an idempotency store as a fast-path dedup
// and execution claim in front of the receipt table. With a shared store
// concurrent workers agree on a single executor per effect; without one
// the receipt table alone still guarantees at-most-one claim per effect.
func WithDispatcherGuard(store shared.IdempotencyStore) DispatcherOption {
	return func(d *EffectDispatcher) {
		d.guard = store
	}
}

// NewEffectDispatcher creates a new EffectDispatcher
func NewEffectDispatcher(
	receipts integration.DispatchReceiptRepository,
	orders order.OrderRepository,
	transitions order.TransitionRepository,
	commission integration.CommissionService,
	payments integration.PaymentReconciliationService,
	storefront integration.StorefrontPlatform,
	opts ...DispatcherOption,
) *EffectDispatcher {
	d := &EffectDispatcher{
		receipts:    receipts,
		orders:      orders,
		transitions: transitions,
		commission:  commission,
		payments:    payments,
		storefront:  storefront,
		guardTTL:    defaultGuardTTL,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func effectGuardKey(transitionID uuid.UUID, effect integration.EffectKind) string {
	return fmt.Sprintf("effect:%s:%s", transitionID, effect)
}

// claimExecution takes the guard mark for one effect execution. A store
// error falls back to the receipt mechanics rather than blocking dispatch.
func (d *EffectDispatcher) claimExecution(ctx context.Context, key string) bool {
	if d.guard == nil {
		return true
	}
	fresh, err := d.guard.MarkProcessed(ctx, key, d.guardTTL)
	if err != nil {
		d.logger.Debug("effect guard unavailable", zap.String("key", key), zap.Error(err))
		return true
	}
	return fresh
}

// releaseExecution drops the guard mark after a failed execution so the
// retry pass can claim the effect again
func (d *EffectDispatcher) releaseExecution(ctx context.Context, key string) {
	if d.guard == nil {
		return
	}
	if err := d.guard.Forget(ctx, key); err != nil {
		d.logger.Debug("effect guard release failed", zap.String("key", key), zap.Error(err))
	}
}

// effectsFor decides which effects a transition triggers:
// commission accrual on entering COMPLETED, a payment check on entering
// SHIPPED or COMPLETED, and a status push back to the storefront for
// locally originated transitions on storefront-tracked orders.
func effectsFor(o *order.Order, t *order.Transition) []integration.EffectKind {
	effects := make([]integration.EffectKind, 0, 3)

	switch t.ToStatus {
	case order.OrderStatusCompleted:
		effects = append(effects, integration.EffectKindCommission, integration.EffectKindPaymentCheck)
	case order.OrderStatusShipped:
		effects = append(effects, integration.EffectKindPaymentCheck)
	}

	if t.Origin == order.OriginLocal && o.IsExternal() {
		effects = append(effects, integration.EffectKindStatusPush)
	}

	return effects
}

// Dispatch fires the effects of one applied transition. Effect failures
// are recorded on the receipt and retried later; they never fail the
// calling pipeline.
func (d *EffectDispatcher) Dispatch(ctx context.Context, o *order.Order, t *order.Transition) error {
	for _, effect := range effectsFor(o, t) {
		if err := d.dispatchOne(ctx, o, t, effect); err != nil {
			return err
		}
	}
	return nil
}

// dispatchOne claims and executes a single effect
func (d *EffectDispatcher) dispatchOne(ctx context.Context, o *order.Order, t *order.Transition, effect integration.EffectKind) error {
	key := effectGuardKey(t.ID, effect)

	// Fast path: a guard mark means the effect succeeded recently or is
	// executing right now, either way there is nothing to do
	if d.guard != nil {
		if done, err := d.guard.IsProcessed(ctx, key); err == nil && done {
			return nil
		}
	}

	existing, err := d.receipts.FindByTransitionAndEffect(ctx, t.ID, effect)
	if err != nil {
		return err
	}
	if existing != nil && existing.Status == integration.DispatchStatusSucceeded {
		return nil
	}

	receipt := existing
	if receipt == nil {
		receipt = integration.NewDispatchReceipt(t.ID, t.OrderID, effect)
		if err := d.receipts.Save(ctx, receipt); err != nil {
			if errors.Is(err, shared.ErrAlreadyExists) {
				// Another worker claimed this effect first
				return nil
			}
			return err
		}
	}

	if !d.claimExecution(ctx, key) {
		// Another worker is executing this effect right now
		return nil
	}

	d.execute(ctx, o, t, receipt)
	if receipt.Status != integration.DispatchStatusSucceeded {
		d.releaseExecution(ctx, key)
	}
	return d.receipts.Save(ctx, receipt)
}

// execute runs the effect call and records the outcome on the receipt
func (d *EffectDispatcher) execute(ctx context.Context, o *order.Order, t *order.Transition, receipt *integration.DispatchReceipt) {
	log := logger.L(ctx).With(
		zap.String("order_id", t.OrderID.String()),
		zap.String("transition_id", t.ID.String()),
		zap.String("effect", string(receipt.Effect)),
	)

	var err error
	switch receipt.Effect {
	case integration.EffectKindCommission:
		err = d.commission.Accrue(ctx, t.OrderID, t)
	case integration.EffectKindPaymentCheck:
		err = d.payments.Check(ctx, t.OrderID, t)
	case integration.EffectKindStatusPush:
		if o.ExternalID == nil {
			log.Warn("status push skipped: order has no external id")
			receipt.MarkSucceeded()
			return
		}
		err = d.storefront.UpdateOrderStatus(ctx, *o.ExternalID, t.ToStatus)
	default:
		log.Error("unknown effect kind")
		receipt.MarkFailed(errors.New("unknown effect kind"))
		return
	}

	if err != nil {
		log.Warn("effect dispatch failed", zap.Error(err), zap.Int("attempts", receipt.Attempts+1))
		receipt.MarkFailed(err)
		return
	}

	log.Info("effect dispatched")
	receipt.MarkSucceeded()
}

// RetryFailed re-executes up to limit failed effects, oldest first.
// Called periodically by the sync coordinator.
func (d *EffectDispatcher) RetryFailed(ctx context.Context, limit int) (retried, succeeded int, err error) {
	failed, err := d.receipts.FindFailed(ctx, limit)
	if err != nil {
		return 0, 0, err
	}

	for i := range failed {
		receipt := &failed[i]

		o, err := d.orders.FindByID(ctx, receipt.OrderID)
		if err != nil {
			logger.L(ctx).Warn("effect retry skipped: order lookup failed",
				zap.String("order_id", receipt.OrderID.String()), zap.Error(err))
			continue
		}
		t, err := d.transitions.FindByID(ctx, receipt.TransitionID)
		if err != nil {
			logger.L(ctx).Warn("effect retry skipped: transition lookup failed",
				zap.String("transition_id", receipt.TransitionID.String()), zap.Error(err))
			continue
		}

		key := effectGuardKey(receipt.TransitionID, receipt.Effect)
		if !d.claimExecution(ctx, key) {
			// A concurrent dispatch already holds this effect
			continue
		}

		retried++
		d.execute(ctx, o, t, receipt)
		if receipt.Status == integration.DispatchStatusSucceeded {
			succeeded++
		} else {
			d.releaseExecution(ctx, key)
		}
		if err := d.receipts.Save(ctx, receipt); err != nil {
			return retried, succeeded, err
		}
	}

	return retried, succeeded, nil
}

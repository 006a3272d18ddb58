package order

import (
	"context"
	"time"
)

// StateMachine validates and applies lifecycle transitions on orders.
// It is the only component allowed to write Order.Status and the status
// field-group stamp, regardless of where the change originated.
type StateMachine struct {
	transitions TransitionRepository
}

// NewStateMachine creates a new state machine over the transition log
func NewStateMachine(transitions TransitionRepository) *StateMachine {
	return &StateMachine{transitions: transitions}
}

// Apply attempts to move the order to the target status.
//
// Rules, in evaluation order:
//  1. A replay of an already-recorded transition (same from/to and the same
//     triggering event) returns the existing Transition without touching the
//     order.
//  2. Orders in CANCELLED or REFUNDED reject every further change with a
//     terminal-state violation.
//  3. An external write whose event time is older than a strictly newer
//     local write to the status group is rejected as stale; local edits
//     made after the external snapshot take precedence.
//  4. The edge must be in the allowed transition set.
//
// On success the order is mutated in place, an OrderStatusChangedEvent is
// queued on the aggregate, and the new Transition is returned with
// replayed=false. The caller persists both.
func (m *StateMachine) Apply(ctx context.Context, o *Order, target OrderStatus, origin WriteOrigin, eventTime time.Time, triggerEventID *string, reason string) (t *Transition, replayed bool, err error) {
	if triggerEventID != nil {
		existing, err := m.transitions.FindByTrigger(ctx, o.ID, *triggerEventID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil && existing.Matches(target, triggerEventID) {
			return existing, true, nil
		}
	}

	if o.Status == target {
		// Same-status no-op without a matching trigger: nothing to record.
		existing, err := m.transitions.FindLatest(ctx, o.ID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil && existing.ToStatus == target {
			return existing, true, nil
		}
	}

	if o.Status == OrderStatusCancelled || o.Status == OrderStatusRefunded {
		return nil, false, NewTerminalStateViolationError(o.Status)
	}

	if origin == OriginExternal && o.StatusStamp.Origin == OriginLocal && o.StatusStamp.At.After(eventTime) {
		return nil, false, NewStaleExternalUpdateError(o.StatusStamp.At, eventTime)
	}

	if !o.Status.CanTransitionTo(target) {
		return nil, false, NewInvalidTransitionError(o.Status, target)
	}

	from := o.Status
	o.applyStatus(target, origin, eventTime, reason)

	transition := NewTransition(o.ID, from, target, origin, triggerEventID, time.Now())
	o.AddDomainEvent(NewOrderStatusChangedEvent(o, transition))

	return transition, false, nil
}

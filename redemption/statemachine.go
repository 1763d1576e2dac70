/*
statemachine.go - Redemption request lifecycle as a pure transition function

PURPOSE:
  All status moves are validated in one place instead of scattered mutation
  methods. Transition is pure: given a state and an action it returns the
  next state plus the side effects the caller must perform, or
  ErrInvalidStateTransition.

STATE MACHINE:

  SOLICITADO ──approve──▶ APROBADO ──deliver──▶ ENTREGADO (terminal)
      │                       │
      │ reject                │ cancel
      ▼                       ▼
  RECHAZADO (terminal)    CANCELADO (terminal)
      ▲
      │ cancel (from SOLICITADO)
      └── both reject and cancel refund the points and restock the reward

  ENTREGADO, RECHAZADO and CANCELADO are terminal: every action from them
  fails.
*/
package redemption

import (
	"errors"
	"fmt"
)

// =============================================================================
// STATES AND ACTIONS
// =============================================================================

type Status string

const (
	StatusSolicitado Status = "solicitado" // requested, awaiting decision
	StatusAprobado   Status = "aprobado"   // approved, awaiting delivery
	StatusEntregado  Status = "entregado"  // delivered (terminal)
	StatusRechazado  Status = "rechazado"  // rejected (terminal)
	StatusCancelado  Status = "cancelado"  // cancelled (terminal)
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusEntregado || s == StatusRechazado || s == StatusCancelado
}

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionDeliver Action = "deliver"
	ActionCancel  Action = "cancel"
)

// Effects lists the compensations the caller must perform after a
// successful transition. Refund and Restock always travel together: a
// request that gives the points back also returns the reserved unit.
type Effects struct {
	Refund       bool // credit points_spent back, decrement points_redeemed
	Restock      bool // increment reward stock if tracked
	SetDecidedAt bool
	SetDelivered bool
}

// ErrInvalidStateTransition is returned for any (state, action) pair the
// machine does not allow, including every action from a terminal state.
var ErrInvalidStateTransition = errors.New("invalid state transition")

// InvalidTransitionError carries the rejected pair.
type InvalidTransitionError struct {
	From   Status
	Action Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a request in state %s", e.Action, e.From)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

// Transition validates (state, action) and returns the next state with its
// side effects. It never mutates anything itself.
func Transition(from Status, action Action) (Status, Effects, error) {
	switch {
	case from == StatusSolicitado && action == ActionApprove:
		return StatusAprobado, Effects{SetDecidedAt: true}, nil

	case from == StatusSolicitado && action == ActionReject:
		return StatusRechazado, Effects{Refund: true, Restock: true, SetDecidedAt: true}, nil

	case from == StatusAprobado && action == ActionDeliver:
		return StatusEntregado, Effects{SetDelivered: true}, nil

	case (from == StatusSolicitado || from == StatusAprobado) && action == ActionCancel:
		return StatusCancelado, Effects{Refund: true, Restock: true, SetDecidedAt: true}, nil

	default:
		return from, Effects{}, &InvalidTransitionError{From: from, Action: action}
	}
}

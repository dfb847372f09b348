// Package models provides data structures and state management for iron condor positions.
package models

import (
	"fmt"
	"time"
)

// PositionStatus represents the lifecycle state of a position
type PositionStatus string

const (
	StatusNone            PositionStatus = "none"             // Created, nothing sent
	StatusSubmitted       PositionStatus = "submitted"        // Opening orders sent
	StatusPartiallyFilled PositionStatus = "partially_filled" // Some opening legs filled
	StatusOpened          PositionStatus = "opened"           // All opening legs filled, under management
	StatusCloseSubmitted  PositionStatus = "close_submitted"  // Closing orders sent
	StatusClosed          PositionStatus = "closed"           // All closing legs filled
	StatusCanceled        PositionStatus = "canceled"         // Opening attempt canceled
	StatusInvalid         PositionStatus = "invalid"          // Malformed legs, aborted
)

// Transition conditions
const (
	CondOrderSubmitted = "order_submitted"
	CondLegFilled      = "leg_filled"
	CondAllLegsFilled  = "all_legs_filled"
	CondLegCanceled    = "leg_canceled"
	CondExitTriggered  = "exit_triggered"
	CondCloseCanceled  = "close_canceled"
	CondInvalidLegs    = "invalid_legs"
)

// Valid returns true if the PositionStatus is one of the defined constants
func (s PositionStatus) Valid() bool {
	switch s {
	case StatusNone, StatusSubmitted, StatusPartiallyFilled, StatusOpened,
		StatusCloseSubmitted, StatusClosed, StatusCanceled, StatusInvalid:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s PositionStatus) IsTerminal() bool {
	switch s {
	case StatusClosed, StatusCanceled, StatusInvalid:
		return true
	case StatusNone, StatusSubmitted, StatusPartiallyFilled, StatusOpened, StatusCloseSubmitted:
		return false
	default:
		return false
	}
}

// StateTransition defines a valid state transition
type StateTransition struct {
	From        PositionStatus
	To          PositionStatus
	Condition   string
	Description string
}

// ValidTransitions is the full position lifecycle.
var ValidTransitions = []StateTransition{
	// Opening
	{StatusNone, StatusSubmitted, CondOrderSubmitted, "Opening orders submitted"},
	{StatusSubmitted, StatusPartiallyFilled, CondLegFilled, "Some opening legs filled"},
	{StatusSubmitted, StatusOpened, CondAllLegsFilled, "All opening legs filled"},
	{StatusPartiallyFilled, StatusOpened, CondAllLegsFilled, "Remaining opening legs filled"},
	{StatusSubmitted, StatusCanceled, CondLegCanceled, "Opening leg canceled, attempt abandoned"},
	{StatusPartiallyFilled, StatusCanceled, CondLegCanceled, "Opening leg canceled after partial fill"},

	// Closing
	{StatusOpened, StatusCloseSubmitted, CondExitTriggered, "Exit rule fired, closing orders submitted"},
	{StatusCloseSubmitted, StatusClosed, CondAllLegsFilled, "All closing legs filled"},
	{StatusCloseSubmitted, StatusOpened, CondCloseCanceled, "Closing attempt canceled before any fill"},

	// Aborts
	{StatusNone, StatusInvalid, CondInvalidLegs, "Legs failed validation"},
	{StatusSubmitted, StatusInvalid, CondInvalidLegs, "Order stream inconsistent with legs"},
	{StatusPartiallyFilled, StatusInvalid, CondInvalidLegs, "Order stream inconsistent with legs"},
	{StatusOpened, StatusInvalid, CondInvalidLegs, "Order stream inconsistent with legs"},
	{StatusCloseSubmitted, StatusInvalid, CondInvalidLegs, "Order stream inconsistent with legs"},
}

// StateMachine manages position state transitions
type StateMachine struct {
	transitionTime  time.Time
	transitionCount map[PositionStatus]int
	currentState    PositionStatus
	previousState   PositionStatus
}

// NewStateMachine creates a new state machine
func NewStateMachine() *StateMachine {
	return NewStateMachineFromState(StatusNone)
}

// NewStateMachineFromState creates a state machine resuming at the given state.
func NewStateMachineFromState(state PositionStatus) *StateMachine {
	if !state.Valid() {
		state = StatusNone
	}
	return &StateMachine{
		currentState:    state,
		previousState:   state,
		transitionTime:  time.Now().UTC(),
		transitionCount: make(map[PositionStatus]int),
	}
}

// GetCurrentState returns the current state
func (sm *StateMachine) GetCurrentState() PositionStatus {
	return sm.currentState
}

// GetPreviousState returns the previous state
func (sm *StateMachine) GetPreviousState() PositionStatus {
	return sm.previousState
}

// GetTransitionTime returns when the last transition happened
func (sm *StateMachine) GetTransitionTime() time.Time {
	return sm.transitionTime
}

// IsValidTransition checks if a transition is valid
func (sm *StateMachine) IsValidTransition(to PositionStatus, condition string) error {
	for _, transition := range ValidTransitions {
		if transition.From == sm.currentState && transition.To == to &&
			conditionMatches(transition.Condition, condition) {
			return nil
		}
	}
	return fmt.Errorf("invalid transition from %s to %s with condition '%s'",
		sm.currentState, to, condition)
}

// conditionMatches checks if the condition requirements are satisfied
func conditionMatches(transitionCondition, providedCondition string) bool {
	if transitionCondition == "" {
		return true
	}
	return providedCondition == transitionCondition
}

// Transition moves to a new state
func (sm *StateMachine) Transition(to PositionStatus, condition string) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}

	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionTime = time.Now().UTC()
	sm.transitionCount[to]++
	return nil
}

// GetTransitionCount returns how many times we've entered a state
func (sm *StateMachine) GetTransitionCount(state PositionStatus) int {
	return sm.transitionCount[state]
}

// GetStateDescription returns a human-readable description of the current state
func (sm *StateMachine) GetStateDescription() string {
	switch sm.currentState {
	case StatusNone:
		return "Position created, no orders sent"
	case StatusSubmitted:
		return "Opening orders submitted, waiting for fills"
	case StatusPartiallyFilled:
		return "Some opening legs filled, waiting for the rest"
	case StatusOpened:
		return "Position open, evaluating exit rules each tick"
	case StatusCloseSubmitted:
		return "Closing orders submitted, waiting for fills"
	case StatusClosed:
		return "Position closed"
	case StatusCanceled:
		return "Opening attempt canceled"
	case StatusInvalid:
		return "Legs invalid, outstanding orders canceled"
	default:
		return "Unknown state"
	}
}

// Copy creates a deep copy of the StateMachine
func (sm *StateMachine) Copy() *StateMachine {
	if sm == nil {
		return nil
	}
	newSM := &StateMachine{
		currentState:    sm.currentState,
		previousState:   sm.previousState,
		transitionTime:  sm.transitionTime,
		transitionCount: make(map[PositionStatus]int, len(sm.transitionCount)),
	}
	for k, v := range sm.transitionCount {
		newSM.transitionCount[k] = v
	}
	return newSM
}

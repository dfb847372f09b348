package models

import (
	"fmt"
	"math"
	"time"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	// ExitNone means no exit rule has fired
	ExitNone ExitReason = ""
	// ExitProfitTarget means the mid P&L reached the profit target
	ExitProfitTarget ExitReason = "profit_target"
	// ExitLossTarget means the mid P&L breached the loss threshold
	ExitLossTarget ExitReason = "loss_target"
	// ExitCloseBeforeClose means the session close was near
	ExitCloseBeforeClose ExitReason = "close_before_close"
	// ExitFailsafeBeforeClose means the pre-close failsafe liquidated the position
	ExitFailsafeBeforeClose ExitReason = "failsafe_before_close"
)

// Valid returns true if the ExitReason is one of the defined constants
func (r ExitReason) Valid() bool {
	switch r {
	case ExitNone, ExitProfitTarget, ExitLossTarget, ExitCloseBeforeClose, ExitFailsafeBeforeClose:
		return true
	default:
		return false
	}
}

// Position represents an iron condor position with state management.
type Position struct {
	StateMachine    *StateMachine        `json:"-"` // Runtime only, excluded from JSON
	Opening         *LegGroup            `json:"opening"`
	Closing         *LegGroup            `json:"closing,omitempty"`
	Candidate       *IronCondorCandidate `json:"candidate,omitempty"`
	EntryTechnicals map[string]float64   `json:"entry_technicals,omitempty"`
	Status          PositionStatus       `json:"status"` // Canonical persisted state
	ExitReason      ExitReason           `json:"exit_reason,omitempty"`
	ID              string               `json:"id"`
	TradeGroupID    string               `json:"trade_group_id"`
	Symbol          string               `json:"symbol"`
	Expiry          time.Time            `json:"expiry"`
	SubmittedAt     time.Time            `json:"submitted_at,omitempty"`
	EntryTime       time.Time            `json:"entry_time,omitempty"`
	ExitTime        time.Time            `json:"exit_time,omitempty"`
	EntryUnderlying float64              `json:"entry_underlying"`
	ExitUnderlying  float64              `json:"exit_underlying"`
	RealizedPnL     float64              `json:"realized_pnl"`
	RealizedPnLPct  float64              `json:"realized_pnl_pct"`
	Quantity        int                  `json:"quantity"`
}

// NewPosition creates a position for a candidate. On a malformed candidate the position is
// still returned, without an opening group, together with the validation error.
func NewPosition(id, symbol string, candidate *IronCondorCandidate, quantity int) (*Position, error) {
	if quantity <= 0 {
		quantity = 1
	}
	p := &Position{
		ID:           id,
		Symbol:       symbol,
		Candidate:    candidate,
		Quantity:     quantity,
		Status:       StatusNone,
		StateMachine: NewStateMachine(),
	}
	if candidate != nil {
		p.Expiry = candidate.ShortPut().Expiry
	}
	opening, err := NewOpeningLegGroup(candidate, quantity)
	if err != nil {
		return p, fmt.Errorf("position %s: %w", id, err)
	}
	p.Opening = opening
	return p, nil
}

// TransitionState moves the position to a new state
func (p *Position) TransitionState(to PositionStatus, condition string) error {
	if err := p.ensureMachine().Transition(to, condition); err != nil {
		return fmt.Errorf("position %s state transition failed: %w", p.ID, err)
	}
	p.Status = to
	return nil
}

// GetCurrentState returns the canonical persisted state
func (p *Position) GetCurrentState() PositionStatus {
	return p.Status
}

// ensureMachine ensures the StateMachine is initialized from persisted state
func (p *Position) ensureMachine() *StateMachine {
	if p.StateMachine == nil {
		p.StateMachine = NewStateMachineFromState(p.Status)
	}
	return p.StateMachine
}

// LegGroup returns the group for a direction.
func (p *Position) LegGroup(dir OrderDirection) *LegGroup {
	switch dir {
	case DirectionOpen:
		return p.Opening
	case DirectionClose:
		return p.Closing
	default:
		return nil
	}
}

// OpeningCredit is the dollar magnitude of the opening cash flow. ok is false before all
// opening legs fill.
func (p *Position) OpeningCredit() (float64, bool) {
	if p.Opening == nil {
		return 0, false
	}
	cash, ok := p.Opening.CashFlow()
	if !ok {
		return 0, false
	}
	return math.Abs(p.Opening.Notional(cash)), true
}

// ComputeRealizedPnL sums the opening and closing cash flows and stores P&L and P&L%
// relative to the opening credit. It fails if either group is not fully filled.
func (p *Position) ComputeRealizedPnL() (float64, error) {
	if p.Opening == nil || p.Closing == nil {
		return 0, fmt.Errorf("position %s has no closing legs", p.ID)
	}
	openCash, ok := p.Opening.CashFlow()
	if !ok {
		return 0, fmt.Errorf("position %s opening legs not fully filled", p.ID)
	}
	closeCash, ok := p.Closing.CashFlow()
	if !ok {
		return 0, fmt.Errorf("position %s closing legs not fully filled", p.ID)
	}
	p.RealizedPnL = p.Opening.Notional(openCash) + p.Closing.Notional(closeCash)
	p.RealizedPnLPct = 0
	if credit, _ := p.OpeningCredit(); credit > 0 {
		p.RealizedPnLPct = p.RealizedPnL / credit * 100
	}
	return p.RealizedPnL, nil
}

// UnderlyingChange returns the underlying move between entry and exit.
func (p *Position) UnderlyingChange() float64 {
	if p.ExitUnderlying == 0 || p.EntryUnderlying == 0 {
		return 0
	}
	return p.ExitUnderlying - p.EntryUnderlying
}

// IsActive reports whether the position still has live orders or open legs.
func (p *Position) IsActive() bool {
	return !p.Status.IsTerminal() && p.Status != StatusNone
}

// MinutesSinceEntry returns whole minutes since the opening fill, 0 if not opened.
func (p *Position) MinutesSinceEntry(now time.Time) float64 {
	if p.EntryTime.IsZero() {
		return 0
	}
	return math.Max(0, now.Sub(p.EntryTime).Minutes())
}

// Clone returns a deep copy safe to read while the original keeps changing.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	c.StateMachine = p.StateMachine.Copy()
	c.Opening = p.Opening.Clone()
	c.Closing = p.Closing.Clone()
	if p.Candidate != nil {
		cand := *p.Candidate
		c.Candidate = &cand
	}
	if p.EntryTechnicals != nil {
		c.EntryTechnicals = make(map[string]float64, len(p.EntryTechnicals))
		for k, v := range p.EntryTechnicals {
			c.EntryTechnicals[k] = v
		}
	}
	return &c
}

package orders

import "github.com/eddiefleurent/scranton_condor/internal/models"

// PnLEstimate is the mark-to-market of an opened position against the cost of closing it now.
// Dollar amounts cover the full quantity. The Best/Mid/Worst scenarios buy back at the
// favorable side of each quote, the mid, and the unfavorable side.
type PnLEstimate struct {
	OpeningCredit float64 `json:"opening_credit"`
	CloseBid      float64 `json:"close_bid"`
	CloseMid      float64 `json:"close_mid"`
	CloseAsk      float64 `json:"close_ask"`
	PnLBest       float64 `json:"pnl_best"`
	PnLMid        float64 `json:"pnl_mid"`
	PnLWorst      float64 `json:"pnl_worst"`
	PctBest       float64 `json:"pct_best"`
	PctMid        float64 `json:"pct_mid"`
	PctWorst      float64 `json:"pct_worst"`
}

// Normalized returns the mid P&L as a fraction of the opening credit.
func (e PnLEstimate) Normalized() float64 {
	if e.OpeningCredit == 0 {
		return 0
	}
	return e.PnLMid / e.OpeningCredit
}

// EstimatePnL prices closing against the opening fills. ok is false until every opening leg
// has filled, and when the opening fills netted zero or a debit.
func EstimatePnL(opening, closing *models.LegGroup) (PnLEstimate, bool) {
	if opening == nil || closing == nil {
		return PnLEstimate{}, false
	}
	cash, ok := opening.CashFlow()
	if !ok {
		return PnLEstimate{}, false
	}
	credit := opening.Notional(cash)
	if credit <= 0 {
		return PnLEstimate{}, false
	}

	best, mid, worst := closing.ScenarioCosts()
	e := PnLEstimate{
		OpeningCredit: credit,
		CloseBid:      closing.Notional(best),
		CloseMid:      closing.Notional(mid),
		CloseAsk:      closing.Notional(worst),
	}
	e.PnLBest = credit - e.CloseBid
	e.PnLMid = credit - e.CloseMid
	e.PnLWorst = credit - e.CloseAsk
	e.PctBest = e.PnLBest / credit * 100
	e.PctMid = e.PnLMid / credit * 100
	e.PctWorst = e.PnLWorst / credit * 100
	return e, true
}

// ExitConfig holds the exit rule thresholds. Percentages are relative to the opening credit.
type ExitConfig struct {
	ProfitTargetPct         float64 `yaml:"profit_target_pct"`
	MaxLossPct              float64 `yaml:"max_loss_pct"`
	CloseBeforeCloseMinutes float64 `yaml:"close_before_close_minutes"`
}

// DefaultExitConfig takes profit at 50%, cuts at -50% and flattens 15 minutes before the close.
var DefaultExitConfig = ExitConfig{
	ProfitTargetPct:         50,
	MaxLossPct:              -50,
	CloseBeforeCloseMinutes: 15,
}

// EvaluateExit applies the exit rules in priority order: profit target, loss, then time.
func EvaluateExit(est PnLEstimate, minutesToClose float64, cfg ExitConfig) models.ExitReason {
	switch {
	case est.PctMid >= cfg.ProfitTargetPct:
		return models.ExitProfitTarget
	case est.PctMid <= cfg.MaxLossPct:
		return models.ExitLossTarget
	case minutesToClose <= cfg.CloseBeforeCloseMinutes:
		return models.ExitCloseBeforeClose
	default:
		return models.ExitNone
	}
}

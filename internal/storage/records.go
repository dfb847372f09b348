package storage

import "time"

// PositionRecord is the end-of-run analytics row of one position.
type PositionRecord struct {
	ID               string  `json:"id" csv:"id"`
	TradeGroupID     string  `json:"trade_group_id" csv:"trade_group_id"`
	Symbol           string  `json:"symbol" csv:"symbol"`
	Status           string  `json:"status" csv:"status"`
	Expiry           string  `json:"expiry" csv:"expiry"`
	SubmittedAt      string  `json:"submitted_at" csv:"submitted_at"`
	EntryTime        string  `json:"entry_time" csv:"entry_time"`
	ExitTime         string  `json:"exit_time" csv:"exit_time"`
	ExitReason       string  `json:"exit_reason" csv:"exit_reason"`
	Legs             string  `json:"legs" csv:"legs"`
	Quantity         int     `json:"quantity" csv:"quantity"`
	LongPutStrike    float64 `json:"long_put_strike" csv:"long_put_strike"`
	ShortPutStrike   float64 `json:"short_put_strike" csv:"short_put_strike"`
	ShortCallStrike  float64 `json:"short_call_strike" csv:"short_call_strike"`
	LongCallStrike   float64 `json:"long_call_strike" csv:"long_call_strike"`
	EntryTotalFill   float64 `json:"entry_total_fill" csv:"entry_total_fill"`
	ExitTotalFill    float64 `json:"exit_total_fill" csv:"exit_total_fill"`
	OpeningCashFlow  float64 `json:"opening_cash_flow" csv:"opening_cash_flow"`
	ClosingCashFlow  float64 `json:"closing_cash_flow" csv:"closing_cash_flow"`
	RealizedPnL      float64 `json:"realized_pnl" csv:"realized_pnl"`
	RealizedPnLPct   float64 `json:"realized_pnl_pct" csv:"realized_pnl_pct"`
	EntryUnderlying  float64 `json:"entry_underlying" csv:"entry_underlying"`
	ExitUnderlying   float64 `json:"exit_underlying" csv:"exit_underlying"`
	UnderlyingChange float64 `json:"underlying_change" csv:"underlying_change"`
	Credit           float64 `json:"credit" csv:"credit"`
	MaxLoss          float64 `json:"max_loss" csv:"max_loss"`
	RewardRisk       float64 `json:"reward_risk" csv:"reward_risk"`
	Cushion          float64 `json:"cushion" csv:"cushion"`
	CenteringScore   float64 `json:"centering_score" csv:"centering_score"`
	BalanceScore     float64 `json:"balance_score" csv:"balance_score"`
	OverallScore     float64 `json:"overall_score" csv:"overall_score"`
	ExpectedMove     float64 `json:"expected_move" csv:"expected_move"`
}

// SnapshotRecord is the mark of one open position on one managed tick.
type SnapshotRecord struct {
	TradeID           string  `json:"trade_id" csv:"trade_id"`
	Timestamp         string  `json:"timestamp" csv:"timestamp"`
	ExitSignal        string  `json:"exit_signal" csv:"exit_signal"`
	MinutesSinceOpen  float64 `json:"minutes_since_open" csv:"minutes_since_open"`
	MinutesSinceEntry float64 `json:"minutes_since_entry" csv:"minutes_since_entry"`
	HorizonBucket     int     `json:"horizon_bucket" csv:"horizon_bucket"`
	Spot              float64 `json:"spot" csv:"spot"`
	PnLMid            float64 `json:"pnl_mid" csv:"pnl_mid"`
	PnLNormalized     float64 `json:"pnl_normalized" csv:"pnl_normalized"`
	CloseMid          float64 `json:"close_mid" csv:"close_mid"`
	CloseBid          float64 `json:"close_bid" csv:"close_bid"`
	CloseAsk          float64 `json:"close_ask" csv:"close_ask"`
}

// Export is everything written at the end of a run.
type Export struct {
	WrittenAt time.Time        `json:"written_at"`
	Positions []PositionRecord `json:"positions"`
	Snapshots []SnapshotRecord `json:"snapshots"`
}

// TimeLayout formats record timestamps.
const TimeLayout = time.RFC3339

// FormatTime renders t with TimeLayout, empty for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimeLayout)
}

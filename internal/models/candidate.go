package models

// VerticalSpread is a two-leg same-expiry spread with one sold and one bought strike.
type VerticalSpread struct {
	ShortDelta  *float64    `json:"short_delta,omitempty"`
	LongDelta   *float64    `json:"long_delta,omitempty"`
	Side        OptionRight `json:"side"`
	Short       Quote       `json:"short"`
	Long        Quote       `json:"long"`
	Width       float64     `json:"width"`
	Credit      float64     `json:"credit"`
	CreditRatio float64     `json:"credit_ratio"`
}

// IronCondorCandidate pairs a put credit vertical with a call credit vertical.
type IronCondorCandidate struct {
	Put               VerticalSpread `json:"put"`
	Call              VerticalSpread `json:"call"`
	TotalCredit       float64        `json:"total_credit"`
	MaxWidth          float64        `json:"max_width"`
	MaxLoss           float64        `json:"max_loss"`
	RewardRisk        float64        `json:"reward_risk"`
	ExpectedMove      float64        `json:"expected_move"`
	EMLow             float64        `json:"em_low"`
	EMHigh            float64        `json:"em_high"`
	EMOK              bool           `json:"em_ok"`
	Cushion           float64        `json:"cushion"`
	CenteringScore    float64        `json:"centering_score"`
	DeltaBalanceScore float64        `json:"delta_balance_score"`

	// Weighted components of OverallScore
	RRScore      float64 `json:"rr_score"`
	CushionScore float64 `json:"cushion_score"`
	CenterScore  float64 `json:"center_score"`
	BalanceScore float64 `json:"balance_score"`
	OverallScore float64 `json:"overall_score"`
}

// LongPut returns the protective put quote.
func (c *IronCondorCandidate) LongPut() Quote { return c.Put.Long }

// ShortPut returns the sold put quote.
func (c *IronCondorCandidate) ShortPut() Quote { return c.Put.Short }

// ShortCall returns the sold call quote.
func (c *IronCondorCandidate) ShortCall() Quote { return c.Call.Short }

// LongCall returns the protective call quote.
func (c *IronCondorCandidate) LongCall() Quote { return c.Call.Long }

// Strikes returns long put, short put, short call, long call strikes in that order.
func (c *IronCondorCandidate) Strikes() [4]float64 {
	return [4]float64{c.Put.Long.Strike, c.Put.Short.Strike, c.Call.Short.Strike, c.Call.Long.Strike}
}

// HasOrderedStrikes reports long_put < short_put < short_call < long_call.
func (c *IronCondorCandidate) HasOrderedStrikes() bool {
	s := c.Strikes()
	return s[0] < s[1] && s[1] < s[2] && s[2] < s[3]
}

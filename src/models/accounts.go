package models

import "encoding/json"

// AccountRecord identifies one brokerage account.
type AccountRecord struct {
	AccountNumber string `json:"account_number"`
	Nickname      string `json:"nickname"`
}

// VolatilityRecord is one item of the market-metrics response. Rank and
// change arrive on a 0-1 scale as decimal strings.
type VolatilityRecord struct {
	Symbol                   string `json:"symbol"`
	ImpliedVolatilityRank    string `json:"implied-volatility-index-rank"`
	ImpliedVolatility5DayChg string `json:"implied-volatility-index-5-day-change"`
}

func (v *VolatilityRecord) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if r, ok := raw["symbol"]; ok {
		v.Symbol = flexToString(r)
	}
	if r, ok := raw["implied-volatility-index-rank"]; ok {
		v.ImpliedVolatilityRank = flexToString(r)
	}
	if r, ok := raw["implied-volatility-index-5-day-change"]; ok {
		v.ImpliedVolatility5DayChg = flexToString(r)
	}
	return nil
}

// BalanceRecord carries the buying-power fields of the account balance
// response. Only the two fields the engine uses are modeled.
type BalanceRecord struct {
	UsedDerivativeBuyingPower string
	MarginEquity              string
}

func (b *BalanceRecord) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if r, ok := raw["used-derivative-buying-power"]; ok {
		b.UsedDerivativeBuyingPower = flexToString(r)
	}
	if r, ok := raw["margin-equity"]; ok {
		b.MarginEquity = flexToString(r)
	}
	return nil
}

// PositionGroup holds the positions of one account sharing an underlying and
// expiration, with the derived group metrics. Nullable metrics are pointers
// so they serialize as JSON null.
type PositionGroup struct {
	UnderlyingSymbol       string      `json:"underlying_symbol"`
	ExpiresAt              string      `json:"expires_at"`
	TotalCreditReceived    float64     `json:"total_credit_received"`
	CurrentGroupProfitLoss float64     `json:"current_group_p_l"`
	PercentCreditReceived  *int        `json:"percent_credit_received"`
	TotalDelta             float64     `json:"total_delta"`
	BetaDelta              *float64    `json:"beta_delta"`
	IVRank                 *float64    `json:"iv_rank"`
	IV5DayChange           *float64    `json:"iv_5d_change"`
	Positions              []*Position `json:"positions"`
}

// AccountSummary is one account's aggregated view.
type AccountSummary struct {
	AccountNumber          string           `json:"account_number"`
	Nickname               string           `json:"nickname"`
	Groups                 []*PositionGroup `json:"groups"`
	TotalBetaDelta         float64          `json:"total_beta_delta"`
	PercentUsedBuyingPower *int             `json:"percent_used_bp"`
}

// PositionsResponse is the payload of GET /api/v1/trades.
type PositionsResponse struct {
	Accounts []*AccountSummary `json:"accounts"`
}

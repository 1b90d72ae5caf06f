package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Brokerage position fields arrive with kebab-case keys and string-typed
// numerics. The known fields are modeled explicitly; everything else the API
// sends is kept in Extra and echoed back on the wire unchanged.
type Position struct {
	Symbol            string
	InstrumentType    string
	UnderlyingSymbol  string
	ExpiresAt         string
	CostEffect        string
	AverageOpenPrice  string
	ClosePrice        string
	Quantity          string
	QuantityDirection string
	Multiplier        string

	Extra map[string]json.RawMessage

	// Engine-attached fields, never present on the brokerage wire.
	MarketData            QuoteRecord
	ApproximateProfitLoss float64
	Beta                  *float64
}

const (
	InstrumentTypeEquity       = "Equity"
	InstrumentTypeEquityOption = "Equity Option"
	InstrumentTypeFutureOption = "Future Option"

	DirectionLong  = "Long"
	DirectionShort = "Short"
)

// flexToString renders a raw JSON scalar as its string value, tolerating the
// brokerage's habit of switching between string and number encodings.
func flexToString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" {
		return ""
	}
	return trimmed
}

func (p *Position) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	take := func(key string, dst *string) {
		if v, ok := raw[key]; ok {
			*dst = flexToString(v)
			delete(raw, key)
		}
	}

	take("symbol", &p.Symbol)
	take("instrument-type", &p.InstrumentType)
	take("underlying-symbol", &p.UnderlyingSymbol)
	take("expires-at", &p.ExpiresAt)
	take("cost-effect", &p.CostEffect)
	take("average-open-price", &p.AverageOpenPrice)
	take("close-price", &p.ClosePrice)
	take("quantity", &p.Quantity)
	take("quantity-direction", &p.QuantityDirection)
	take("multiplier", &p.Multiplier)

	p.Extra = raw
	return nil
}

func (p *Position) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+13)
	for k, v := range p.Extra {
		out[k] = v
	}

	set := func(key, value string) {
		if value != "" {
			out[key] = value
		}
	}

	set("symbol", p.Symbol)
	set("instrument-type", p.InstrumentType)
	set("underlying-symbol", p.UnderlyingSymbol)
	set("expires-at", p.ExpiresAt)
	set("cost-effect", p.CostEffect)
	set("average-open-price", p.AverageOpenPrice)
	set("close-price", p.ClosePrice)
	set("quantity", p.Quantity)
	set("quantity-direction", p.QuantityDirection)
	set("multiplier", p.Multiplier)

	out["market_data"] = p.MarketData
	out["approximate-p-l"] = p.ApproximateProfitLoss
	if p.Beta != nil {
		out["beta"] = *p.Beta
	}

	return json.Marshal(out)
}

// QuoteRecord is one item of the market-data-by-type response. The full wire
// payload is preserved in Fields; ComputedDelta is attached per position by
// the aggregation engine.
type QuoteRecord struct {
	Fields        map[string]json.RawMessage
	ComputedDelta *float64
}

func (q *QuoteRecord) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &q.Fields)
}

func (q QuoteRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(q.Fields)+1)
	for k, v := range q.Fields {
		out[k] = v
	}
	if q.ComputedDelta != nil {
		out["computed_delta"] = *q.ComputedDelta
	}
	if len(out) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(out)
}

// Field returns the named wire field as a string, reporting whether it was
// present and non-null.
func (q QuoteRecord) Field(key string) (string, bool) {
	raw, ok := q.Fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", false
	}
	return flexToString(raw), true
}

func (q QuoteRecord) Symbol() string {
	s, _ := q.Field("symbol")
	return s
}

func (q QuoteRecord) Mark() (string, bool)  { return q.Field("mark") }
func (q QuoteRecord) Delta() (string, bool) { return q.Field("delta") }
func (q QuoteRecord) BetaValue() (string, bool) {
	return q.Field("beta")
}

// IsEmpty reports whether the position had no market data attached.
func (q QuoteRecord) IsEmpty() bool {
	return len(q.Fields) == 0
}

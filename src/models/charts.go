package models

// Bar is one OHLCV candle in TradingView-compatible form (time in ms).
type Bar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// ChartResponse is the GET /charts/history payload.
type ChartResponse struct {
	Status string `json:"s"`
	Bars   []Bar  `json:"bars"`
}

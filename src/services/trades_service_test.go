package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Robooto/trade-journal/src/logger"
	"github.com/Robooto/trade-journal/src/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

type marketDataCall struct {
	equity, equityOption, future, futureOption []string
}

type fakeGateway struct {
	token    string
	tokenErr error

	accounts    []models.AccountRecord
	accountsErr error

	positions    map[string][]*models.Position
	positionsErr map[string]error

	marketData      []models.QuoteRecord
	marketDataErr   error
	marketDataCalls []marketDataCall

	volatility      []models.VolatilityRecord
	volatilityErr   error
	volatilityCalls [][]string

	balances   map[string]*models.BalanceRecord
	balanceErr error
}

func (f *fakeGateway) ActiveToken() (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	if f.token == "" {
		return "test-token", nil
	}
	return f.token, nil
}

func (f *fakeGateway) FetchAccounts(token string) ([]models.AccountRecord, error) {
	return f.accounts, f.accountsErr
}

func (f *fakeGateway) FetchPositions(token, accountNumber string) ([]*models.Position, error) {
	if err, ok := f.positionsErr[accountNumber]; ok {
		return nil, err
	}
	return f.positions[accountNumber], nil
}

func (f *fakeGateway) FetchMarketData(token string, equity, equityOption, future, futureOption []string) ([]models.QuoteRecord, error) {
	f.marketDataCalls = append(f.marketDataCalls, marketDataCall{equity, equityOption, future, futureOption})
	return f.marketData, f.marketDataErr
}

func (f *fakeGateway) FetchVolatilityData(token string, symbols []string) ([]models.VolatilityRecord, error) {
	f.volatilityCalls = append(f.volatilityCalls, symbols)
	return f.volatility, f.volatilityErr
}

func (f *fakeGateway) FetchAccountBalance(token, accountNumber string) (*models.BalanceRecord, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	if b, ok := f.balances[accountNumber]; ok {
		return b, nil
	}
	return &models.BalanceRecord{}, nil
}

func position(symbol, instrumentType, underlying, expires, direction, avgOpen, qty, mult string) *models.Position {
	return &models.Position{
		Symbol:            symbol,
		InstrumentType:    instrumentType,
		UnderlyingSymbol:  underlying,
		ExpiresAt:         expires,
		QuantityDirection: direction,
		AverageOpenPrice:  avgOpen,
		Quantity:          qty,
		Multiplier:        mult,
	}
}

func quote(fields map[string]string) models.QuoteRecord {
	raw := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		raw[k] = json.RawMessage(fmt.Sprintf("%q", v))
	}
	return models.QuoteRecord{Fields: raw}
}

func TestGetAllPositionsFiltersEquityAndSkipsEmptyAccounts(t *testing.T) {
	gw := &fakeGateway{
		accounts: []models.AccountRecord{
			{AccountNumber: "A1", Nickname: "margin"},
			{AccountNumber: "A2", Nickname: "stocks only"},
		},
		positions: map[string][]*models.Position{
			"A1": {
				position("AAPL", models.InstrumentTypeEquity, "AAPL", "", "Long", "190", "10", "1"),
				position("SPY 240119C00470000", models.InstrumentTypeEquityOption, "SPY", "2024-01-19", "Short", "2.5", "1", "100"),
			},
			"A2": {
				position("TSLA", models.InstrumentTypeEquity, "TSLA", "", "Long", "250", "5", "1"),
			},
		},
	}
	svc := NewTradesService(gw)

	result, err := svc.GetAllPositions()
	require.NoError(t, err)

	require.Len(t, result.Accounts, 1)
	assert.Equal(t, "A1", result.Accounts[0].AccountNumber)
	require.Len(t, result.Accounts[0].Groups, 1)
	for _, g := range result.Accounts[0].Groups {
		for _, p := range g.Positions {
			assert.NotEqual(t, models.InstrumentTypeEquity, p.InstrumentType)
		}
	}
}

func TestGetAllPositionsShortCreditScenario(t *testing.T) {
	gw := &fakeGateway{
		accounts: []models.AccountRecord{{AccountNumber: "123", Nickname: "main"}},
		positions: map[string][]*models.Position{
			"123": {
				position("AAPL", models.InstrumentTypeEquity, "AAPL", "", "Long", "190", "10", "1"),
				position("SPY 240119C00470000", models.InstrumentTypeEquityOption, "SPY", "2024-01-19", "Short", "2.5", "1", "100"),
				position("SPY 240119C00480000", models.InstrumentTypeEquityOption, "SPY", "2024-01-19", "Short", "1.0", "2", "100"),
			},
		},
		marketData: []models.QuoteRecord{
			quote(map[string]string{"symbol": "SPY 240119C00470000", "mark": "10", "delta": "0.5"}),
			quote(map[string]string{"symbol": "SPY 240119C00480000", "mark": "10", "delta": "0.5"}),
		},
	}
	svc := NewTradesService(gw)

	result, err := svc.GetAllPositions()
	require.NoError(t, err)

	require.Len(t, result.Accounts, 1)
	acct := result.Accounts[0]
	require.Len(t, acct.Groups, 1)

	g := acct.Groups[0]
	assert.Equal(t, "SPY", g.UnderlyingSymbol)
	assert.Equal(t, "2024-01-19", g.ExpiresAt)
	// Short calls carry negative computed deltas, one per position.
	assert.Equal(t, -1.0, g.TotalDelta)
	assert.Equal(t, 450.0, g.TotalCreditReceived)
	assert.Equal(t, -2550.0, g.CurrentGroupProfitLoss)
	require.NotNil(t, g.PercentCreditReceived)
	assert.Equal(t, -566, *g.PercentCreditReceived) // truncation toward zero

	require.Len(t, g.Positions, 2)
	assert.Equal(t, -750.0, g.Positions[0].ApproximateProfitLoss)
	assert.Equal(t, -1800.0, g.Positions[1].ApproximateProfitLoss)
}

func TestGetAllPositionsDebitSpreadScenario(t *testing.T) {
	gw := &fakeGateway{
		accounts: []models.AccountRecord{{AccountNumber: "123", Nickname: ""}},
		positions: map[string][]*models.Position{
			"123": {
				position("QQQ 240119C00400000", models.InstrumentTypeEquityOption, "QQQ", "2024-01-19", "Long", "2.0", "1", "100"),
				position("QQQ 240119C00410000", models.InstrumentTypeEquityOption, "QQQ", "2024-01-19", "Short", "1.0", "1", "100"),
			},
		},
		marketData: []models.QuoteRecord{
			quote(map[string]string{"symbol": "QQQ 240119C00400000", "mark": "2.5", "delta": "0.6"}),
			quote(map[string]string{"symbol": "QQQ 240119C00410000", "mark": "0.75", "delta": "0.4"}),
		},
	}
	svc := NewTradesService(gw)

	result, err := svc.GetAllPositions()
	require.NoError(t, err)

	g := result.Accounts[0].Groups[0]
	assert.Equal(t, -100.0, g.TotalCreditReceived)
	assert.Equal(t, 75.0, g.CurrentGroupProfitLoss)
	require.NotNil(t, g.PercentCreditReceived)
	assert.Equal(t, 75, *g.PercentCreditReceived)
}

func TestGetAllPositionsLongOptionProfitLoss(t *testing.T) {
	gw := &fakeGateway{
		accounts: []models.AccountRecord{{AccountNumber: "9", Nickname: ""}},
		positions: map[string][]*models.Position{
			"9": {
				position("SPY 240119C00470000", models.InstrumentTypeEquityOption, "SPY", "2024-01-19", "Long", "2", "1", "100"),
			},
		},
		marketData: []models.QuoteRecord{
			quote(map[string]string{"symbol": "SPY 240119C00470000", "mark": "10", "delta": "0.5"}),
		},
	}
	svc := NewTradesService(gw)

	result, err := svc.GetAllPositions()
	require.NoError(t, err)

	p := result.Accounts[0].Groups[0].Positions[0]
	assert.Equal(t, 800.0, p.ApproximateProfitLoss)
	require.NotNil(t, p.MarketData.ComputedDelta)
	assert.Equal(t, 0.5, *p.MarketData.ComputedDelta)
}

func TestGetAllPositionsPercentCreditNilWhenCreditZero(t *testing.T) {
	gw := &fakeGateway{
		accounts: []models.AccountRecord{{AccountNumber: "1", Nickname: ""}},
		positions: map[string][]*models.Position{
			"1": {
				position("SPY 240119C00470000", models.InstrumentTypeEquityOption, "SPY", "2024-01-19", "Long", "1.0", "1", "100"),
				position("SPY 240119C00480000", models.InstrumentTypeEquityOption, "SPY", "2024-01-19", "Short", "1.0", "1", "100"),
			},
		},
	}
	svc := NewTradesService(gw)

	result, err := svc.GetAllPositions()
	require.NoError(t, err)

	g := result.Accounts[0].Groups[0]
	assert.Equal(t, 0.0, g.TotalCreditReceived)
	assert.Nil(t, g.PercentCreditReceived)
}

func TestGetAllPositionsBetaDelta(t *testing.T) {
	gw := &fakeGateway{
		accounts: []models.AccountRecord{{AccountNumber: "1", Nickname: ""}},
		positions: map[string][]*models.Position{
			"1": {
				position("SPY 240119C00470000", models.InstrumentTypeEquityOption, "SPY", "2024-01-19", "Long", "2", "1", "100"),
				position("XYZ 240216C00050000", models.InstrumentTypeEquityOption, "XYZ", "2024-02-16", "Long", "1", "1", "100"),
			},
		},
		marketData: []models.QuoteRecord{
			quote(map[string]string{"symbol": "SPY 240119C00470000", "mark": "3", "delta": "0.5"}),
			quote(map[string]string{"symbol": "XYZ 240216C00050000", "mark": "2", "delta": "0.25"}),
			quote(map[string]string{"symbol": "SPY", "beta": "1.0"}),
			quote(map[string]string{"symbol": "XYZ", "beta": "not-a-number"}),
		},
	}
	svc := NewTradesService(gw)

	result, err := svc.GetAllPositions()
	require.NoError(t, err)

	acct := result.Accounts[0]
	require.Len(t, acct.Groups, 2)

	spy := acct.Groups[0]
	require.NotNil(t, spy.BetaDelta)
	assert.Equal(t, 0.5, *spy.BetaDelta)
	require.NotNil(t, spy.Positions[0].Beta)
	assert.Equal(t, 1.0, *spy.Positions[0].Beta)

	// Unparsable beta is skipped silently, so the group has no beta delta.
	xyz := acct.Groups[1]
	assert.Nil(t, xyz.BetaDelta)

	// Account total only sums defined group beta deltas.
	assert.Equal(t, 0.5, acct.TotalBetaDelta)
}

func TestGetAllPositionsBatchedMarketDataCall(t *testing.T) {
	gw := &fakeGateway{
		accounts: []models.AccountRecord{
			{AccountNumber: "1", Nickname: ""},
			{AccountNumber: "2", Nickname: ""},
		},
		positions: map[string][]*models.Position{
			"1": {
				position("SPY 240119C00470000", models.InstrumentTypeEquityOption, "SPY", "2024-01-19", "Short", "2.5", "1", "100"),
			},
			"2": {
				position("./ESU5 EW3U5 250919C5800", models.InstrumentTypeFutureOption, "/ESU5", "2025-09-19", "Short", "10", "1", "50"),
			},
		},
	}
	svc := NewTradesService(gw)

	_, err := svc.GetAllPositions()
	require.NoError(t, err)

	// One batched call across both accounts, with sorted symbol lists.
	require.Len(t, gw.marketDataCalls, 1)
	call := gw.marketDataCalls[0]
	assert.Equal(t, []string{"SPY"}, call.equity)
	assert.Equal(t, []string{"SPY 240119C00470000"}, call.equityOption)
	assert.Equal(t, []string{"/ESU5"}, call.future)
	assert.Equal(t, []string{"./ESU5 EW3U5 250919C5800"}, call.futureOption)
}

func TestGetAllPositionsNoSymbolsSkipsMarketDataCall(t *testing.T) {
	gw := &fakeGateway{
		accounts: []models.AccountRecord{{AccountNumber: "1", Nickname: ""}},
		positions: map[string][]*models.Position{
			"1": {
				position("", "Future", "", "", "Long", "4500", "1", "50"),
			},
		},
	}
	svc := NewTradesService(gw)

	_, err := svc.GetAllPositions()
	require.NoError(t, err)
	assert.Empty(t, gw.marketDataCalls)
}

func TestGetAllPositionsVolatilityRoots(t *testing.T) {
	gw := &fakeGateway{
		accounts: []models.AccountRecord{{AccountNumber: "1", Nickname: ""}},
		positions: map[string][]*models.Position{
			"1": {
				position("./ESU5 EW3U5 250919C5800", models.InstrumentTypeFutureOption, "/ESU5", "2025-09-19", "Short", "10", "1", "50"),
				position("./ESZ5 EW4Z5 251219C5900", models.InstrumentTypeFutureOption, "/ESZ5", "2025-12-19", "Short", "12", "1", "50"),
				position("SPY 240119C00470000", models.InstrumentTypeEquityOption, "SPY", "2024-01-19", "Short", "2.5", "1", "100"),
			},
		},
		volatility: []models.VolatilityRecord{
			{Symbol: "/ES", ImpliedVolatilityRank: "0.453", ImpliedVolatility5DayChg: "0.021"},
			{Symbol: "SPY", ImpliedVolatilityRank: "0.12"},
		},
	}
	svc := NewTradesService(gw)

	result, err := svc.GetAllPositions()
	require.NoError(t, err)

	// Both /ES contracts normalize to one root; the call is deduplicated
	// and sorted.
	require.Len(t, gw.volatilityCalls, 1)
	assert.Equal(t, []string{"/ES", "SPY"}, gw.volatilityCalls[0])

	acct := result.Accounts[0]
	require.Len(t, acct.Groups, 3)

	for _, g := range acct.Groups[:2] {
		require.NotNil(t, g.IVRank)
		assert.Equal(t, 45.3, *g.IVRank)
		require.NotNil(t, g.IV5DayChange)
		assert.Equal(t, 2.1, *g.IV5DayChange)
	}

	spy := acct.Groups[2]
	require.NotNil(t, spy.IVRank)
	assert.Equal(t, 12.0, *spy.IVRank)
	assert.Nil(t, spy.IV5DayChange)
}

func TestGetAllPositionsBuyingPower(t *testing.T) {
	gw := &fakeGateway{
		accounts: []models.AccountRecord{{AccountNumber: "1", Nickname: ""}},
		positions: map[string][]*models.Position{
			"1": {
				position("SPY 240119C00470000", models.InstrumentTypeEquityOption, "SPY", "2024-01-19", "Short", "2.5", "1", "100"),
			},
		},
		balances: map[string]*models.BalanceRecord{
			"1": {UsedDerivativeBuyingPower: "5000", MarginEquity: "20000"},
		},
	}
	svc := NewTradesService(gw)

	result, err := svc.GetAllPositions()
	require.NoError(t, err)

	require.NotNil(t, result.Accounts[0].PercentUsedBuyingPower)
	assert.Equal(t, 25, *result.Accounts[0].PercentUsedBuyingPower)
}

func TestGetAllPositionsBuyingPowerNilOnZeroEquity(t *testing.T) {
	gw := &fakeGateway{
		accounts: []models.AccountRecord{{AccountNumber: "1", Nickname: ""}},
		positions: map[string][]*models.Position{
			"1": {
				position("SPY 240119C00470000", models.InstrumentTypeEquityOption, "SPY", "2024-01-19", "Short", "2.5", "1", "100"),
			},
		},
		balances: map[string]*models.BalanceRecord{
			"1": {UsedDerivativeBuyingPower: "5000", MarginEquity: "0"},
		},
	}
	svc := NewTradesService(gw)

	result, err := svc.GetAllPositions()
	require.NoError(t, err)
	assert.Nil(t, result.Accounts[0].PercentUsedBuyingPower)
}

func TestGetAllPositionsAuthFailureIsFatal(t *testing.T) {
	gw := &fakeGateway{tokenErr: errors.New("login rejected")}
	svc := NewTradesService(gw)

	_, err := svc.GetAllPositions()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestGetAllPositionsPositionsFailureIsFatalAndNamesAccount(t *testing.T) {
	gw := &fakeGateway{
		accounts:     []models.AccountRecord{{AccountNumber: "BAD1", Nickname: ""}},
		positionsErr: map[string]error{"BAD1": errors.New("boom")},
	}
	svc := NewTradesService(gw)

	_, err := svc.GetAllPositions()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamFetch)
	assert.Contains(t, err.Error(), "BAD1")
}

func TestGetAllPositionsDegradesOnNonFatalFailures(t *testing.T) {
	gw := &fakeGateway{
		accounts: []models.AccountRecord{{AccountNumber: "1", Nickname: ""}},
		positions: map[string][]*models.Position{
			"1": {
				position("SPY 240119C00470000", models.InstrumentTypeEquityOption, "SPY", "2024-01-19", "Short", "2.5", "1", "100"),
			},
		},
		marketDataErr: errors.New("market data down"),
		volatilityErr: errors.New("metrics down"),
		balanceErr:    errors.New("balance down"),
	}
	svc := NewTradesService(gw)

	result, err := svc.GetAllPositions()
	require.NoError(t, err)

	acct := result.Accounts[0]
	g := acct.Groups[0]
	p := g.Positions[0]

	assert.True(t, p.MarketData.IsEmpty())
	assert.Equal(t, 0.0, p.ApproximateProfitLoss)
	assert.Equal(t, 0.0, g.TotalDelta)
	assert.Nil(t, g.IVRank)
	assert.Nil(t, g.IV5DayChange)
	assert.Nil(t, acct.PercentUsedBuyingPower)
	assert.Equal(t, 0.0, acct.TotalBetaDelta)
}

func TestGetAllPositionsIdempotent(t *testing.T) {
	build := func() *fakeGateway {
		return &fakeGateway{
			accounts: []models.AccountRecord{{AccountNumber: "123", Nickname: "main"}},
			positions: map[string][]*models.Position{
				"123": {
					position("SPY 240119C00470000", models.InstrumentTypeEquityOption, "SPY", "2024-01-19", "Short", "2.5", "1", "100"),
				},
			},
			marketData: []models.QuoteRecord{
				quote(map[string]string{"symbol": "SPY 240119C00470000", "mark": "10", "delta": "0.5"}),
				quote(map[string]string{"symbol": "SPY", "beta": "1.2"}),
			},
			volatility: []models.VolatilityRecord{
				{Symbol: "SPY", ImpliedVolatilityRank: "0.4", ImpliedVolatility5DayChg: "-0.05"},
			},
			balances: map[string]*models.BalanceRecord{
				"123": {UsedDerivativeBuyingPower: "100", MarginEquity: "1000"},
			},
		}
	}

	first, err := NewTradesService(build()).GetAllPositions()
	require.NoError(t, err)
	second, err := NewTradesService(build()).GetAllPositions()
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))
}

func TestGetMarketDataPassThrough(t *testing.T) {
	items := []models.QuoteRecord{
		quote(map[string]string{"symbol": "SPY", "mark": "470.12"}),
	}
	gw := &fakeGateway{marketData: items}
	svc := NewTradesService(gw)

	got, err := svc.GetMarketData([]string{"SPY"}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, items, got)

	require.Len(t, gw.marketDataCalls, 1)
	assert.Equal(t, []string{"SPY"}, gw.marketDataCalls[0].equity)
}

func TestOptionDeltaSign(t *testing.T) {
	tests := []struct {
		name      string
		symbol    string
		direction string
		want      float64
	}{
		{"long call", "SPY 240119C00470000", "Long", 1},
		{"short call", "SPY 240119C00470000", "Short", -1},
		{"long put", "ABQ 240119P00470000", "Long", -1},
		{"short put", "ABQ 240119P00470000", "Short", 1},
		{"no option letter", "1234", "Long", 1},
		// The substring probe reads the first matching letter, so a "C"
		// anywhere wins even for puts. Kept for compatibility.
		{"stray C in root", "CAT 240119P00300000", "Long", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, optionDeltaSign(tt.symbol, tt.direction))
		})
	}
}

func TestRootSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/ESU5", "/ES"},
		{"/ESZ5", "/ES"},
		{"/CLX25", "/CL"},
		{"/ES", "/ES"},
		{"SPY", "SPY"},
		{"AAPL", "AAPL"}, // no leading slash, left untouched
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rootSymbol(tt.in), "rootSymbol(%q)", tt.in)
	}
}

package services

import (
	"errors"

	"github.com/Robooto/trade-journal/src/models"
)

// Define common service errors
var (
	// ErrAuthentication means the brokerage login or token refresh failed.
	// It aborts the whole request.
	ErrAuthentication = errors.New("brokerage authentication failed")
	// ErrUpstreamFetch means a required brokerage fetch (accounts or
	// positions) failed. It aborts the whole request.
	ErrUpstreamFetch = errors.New("brokerage fetch failed")
	// ErrSymbolNotFound means the chart provider has no data for a symbol.
	ErrSymbolNotFound = errors.New("symbol not found")
)

// BrokerageGateway is the brokerage surface the trades service consumes.
// Market-data, volatility and balance failures are degraded by the service;
// token and positions failures are fatal.
type BrokerageGateway interface {
	ActiveToken() (string, error)
	FetchAccounts(token string) ([]models.AccountRecord, error)
	FetchPositions(token, accountNumber string) ([]*models.Position, error)
	FetchMarketData(token string, equity, equityOption, future, futureOption []string) ([]models.QuoteRecord, error)
	FetchVolatilityData(token string, symbols []string) ([]models.VolatilityRecord, error)
	FetchAccountBalance(token, accountNumber string) (*models.BalanceRecord, error)
}

// TradesService aggregates brokerage positions into grouped analytics.
type TradesService interface {
	GetAllPositions() (*models.PositionsResponse, error)
	GetMarketData(equity, equityOption, future, futureOption []string) ([]models.QuoteRecord, error)
}

// ChartService serves TradingView-style candle history.
type ChartService interface {
	GetChartHistory(symbol, resolution string, fromTS, toTS *int64) (*models.ChartResponse, error)
}

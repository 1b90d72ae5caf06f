package services

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/Robooto/trade-journal/src/logger"
	"github.com/Robooto/trade-journal/src/models"
	"github.com/Robooto/trade-journal/src/utils"
)

type tradesServiceImpl struct {
	gateway BrokerageGateway
}

func NewTradesService(gateway BrokerageGateway) TradesService {
	return &tradesServiceImpl{gateway: gateway}
}

// accountPositions pairs an account with its filtered, augmented positions.
type accountPositions struct {
	account   models.AccountRecord
	positions []*models.Position
}

// symbolSets accumulates the unique symbols seen across all accounts, split
// the way the market-data-by-type endpoint wants them.
type symbolSets struct {
	equityOptions     map[string]struct{}
	futureOptions     map[string]struct{}
	equityUnderlyings map[string]struct{}
	futureUnderlyings map[string]struct{}
}

func newSymbolSets() *symbolSets {
	return &symbolSets{
		equityOptions:     make(map[string]struct{}),
		futureOptions:     make(map[string]struct{}),
		equityUnderlyings: make(map[string]struct{}),
		futureUnderlyings: make(map[string]struct{}),
	}
}

func (s *symbolSets) empty() bool {
	return len(s.equityOptions) == 0 && len(s.futureOptions) == 0 &&
		len(s.equityUnderlyings) == 0 && len(s.futureUnderlyings) == 0
}

func sortedKeys(set map[string]struct{}) []string {
	keys := lo.Keys(set)
	sort.Strings(keys)
	return keys
}

// GetAllPositions aggregates every account's non-equity positions into groups
// keyed by underlying and expiration, with derived credit, P/L, delta, beta,
// volatility and buying-power metrics.
func (s *tradesServiceImpl) GetAllPositions() (*models.PositionsResponse, error) {
	token, err := s.gateway.ActiveToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	accounts, err := s.gateway.FetchAccounts(token)
	if err != nil {
		return nil, fmt.Errorf("%w: accounts: %v", ErrUpstreamFetch, err)
	}

	collected, symbols, err := s.collectPositionsAndSymbols(token, accounts)
	if err != nil {
		return nil, err
	}

	marketMap, betaMap := s.fetchMarketAndBetaData(token, symbols)
	augmentPositions(collected, marketMap, betaMap)

	summaries := buildAccountSummaries(collected, betaMap)
	s.applyVolatility(token, summaries)
	s.applyBalances(token, summaries)

	return &models.PositionsResponse{Accounts: summaries}, nil
}

// GetMarketData is the raw pass-through for explicit symbol lists.
func (s *tradesServiceImpl) GetMarketData(equity, equityOption, future, futureOption []string) ([]models.QuoteRecord, error) {
	token, err := s.gateway.ActiveToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	items, err := s.gateway.FetchMarketData(token, equity, equityOption, future, futureOption)
	if err != nil {
		return nil, fmt.Errorf("%w: market data: %v", ErrUpstreamFetch, err)
	}
	return items, nil
}

// collectPositionsAndSymbols fetches each account's positions, drops plain
// equity lines, skips accounts left empty, and gathers the global symbol
// sets. A positions fetch failure is fatal and names the account.
func (s *tradesServiceImpl) collectPositionsAndSymbols(token string, accounts []models.AccountRecord) ([]*accountPositions, *symbolSets, error) {
	collected := []*accountPositions{}
	symbols := newSymbolSets()

	for _, acct := range accounts {
		raw, err := s.gateway.FetchPositions(token, acct.AccountNumber)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: positions for account %s: %v", ErrUpstreamFetch, acct.AccountNumber, err)
		}

		filtered := make([]*models.Position, 0, len(raw))
		for _, p := range raw {
			if p.InstrumentType == models.InstrumentTypeEquity {
				continue
			}
			filtered = append(filtered, p)
		}
		if len(filtered) == 0 {
			continue
		}

		for _, p := range filtered {
			if p.Symbol != "" {
				switch p.InstrumentType {
				case models.InstrumentTypeEquityOption:
					symbols.equityOptions[p.Symbol] = struct{}{}
				case models.InstrumentTypeFutureOption:
					symbols.futureOptions[p.Symbol] = struct{}{}
				}
			}
			if p.UnderlyingSymbol != "" {
				if strings.HasPrefix(p.UnderlyingSymbol, "/") {
					symbols.futureUnderlyings[p.UnderlyingSymbol] = struct{}{}
				} else {
					symbols.equityUnderlyings[p.UnderlyingSymbol] = struct{}{}
				}
			}
		}

		collected = append(collected, &accountPositions{account: acct, positions: filtered})
	}

	return collected, symbols, nil
}

// fetchMarketAndBetaData issues the single batched market-data call and
// splits the result into an option quote map and an underlying beta map.
// A failure degrades to empty maps rather than failing the request.
func (s *tradesServiceImpl) fetchMarketAndBetaData(token string, symbols *symbolSets) (map[string]models.QuoteRecord, map[string]float64) {
	marketMap := map[string]models.QuoteRecord{}
	betaMap := map[string]float64{}

	if symbols.empty() {
		return marketMap, betaMap
	}

	items, err := s.gateway.FetchMarketData(
		token,
		sortedKeys(symbols.equityUnderlyings),
		sortedKeys(symbols.equityOptions),
		sortedKeys(symbols.futureUnderlyings),
		sortedKeys(symbols.futureOptions),
	)
	if err != nil {
		logger.L.Error("Failed to fetch market/beta data", "error", err)
		return marketMap, betaMap
	}

	for _, item := range items {
		sym := item.Symbol()
		if sym == "" {
			continue
		}

		_, isEquityOption := symbols.equityOptions[sym]
		_, isFutureOption := symbols.futureOptions[sym]
		if isEquityOption || isFutureOption {
			marketMap[sym] = item
		}

		_, isEquityUnderlying := symbols.equityUnderlyings[sym]
		_, isFutureUnderlying := symbols.futureUnderlyings[sym]
		if isEquityUnderlying || isFutureUnderlying {
			if betaStr, ok := item.BetaValue(); ok {
				if beta, err := strconv.ParseFloat(betaStr, 64); err == nil {
					betaMap[sym] = beta
				}
				// Unparsable betas are skipped silently.
			}
		}
	}

	return marketMap, betaMap
}

// optionDeltaSign infers the sign of a position's delta from the option type
// encoded in its symbol. The substring probe is deliberately kept: it
// mis-signs any symbol with a stray C or P elsewhere, but it is what existing
// consumers expect. Swap this one function for a real OCC symbol parser to
// change the rule.
func optionDeltaSign(symbol, direction string) float64 {
	switch {
	case strings.Contains(symbol, "C"):
		if direction == models.DirectionLong {
			return 1
		}
		return -1
	case strings.Contains(symbol, "P"):
		if direction == models.DirectionShort {
			return 1
		}
		return -1
	default:
		return 1
	}
}

// augmentPositions attaches market data, a direction-signed computed delta,
// an approximate P/L and the underlying beta to every retained position.
func augmentPositions(collected []*accountPositions, marketMap map[string]models.QuoteRecord, betaMap map[string]float64) {
	for _, acct := range collected {
		for _, p := range acct.positions {
			if quote, ok := marketMap[p.Symbol]; ok && p.Symbol != "" {
				md := quote
				if deltaStr, present := md.Delta(); present && p.QuantityDirection != "" {
					if delta, err := strconv.ParseFloat(deltaStr, 64); err == nil {
						computed := utils.RoundFloat(optionDeltaSign(p.Symbol, p.QuantityDirection)*math.Abs(delta), 2)
						md.ComputedDelta = &computed
					}
				}
				p.MarketData = md
			}

			p.ApproximateProfitLoss = approximateProfitLoss(p)

			if beta, ok := betaMap[p.UnderlyingSymbol]; ok {
				p.Beta = &beta
			}
		}
	}
}

// approximateProfitLoss estimates a position's P/L from its open price and
// the current mark. Missing or unparsable mark means 0.0.
func approximateProfitLoss(p *models.Position) float64 {
	markStr, ok := p.MarketData.Mark()
	if !ok {
		return 0.0
	}
	mark, err := strconv.ParseFloat(markStr, 64)
	if err != nil {
		return 0.0
	}

	avgOpen := utils.ParseFloatOrDefault(p.AverageOpenPrice, 0)
	quantity := float64(utils.ParseIntOrDefault(p.Quantity, 1))
	multiplier := float64(utils.ParseIntOrDefault(p.Multiplier, 1))

	var pl float64
	if p.QuantityDirection == models.DirectionLong {
		pl = (mark - avgOpen) * quantity * multiplier
	} else {
		pl = (avgOpen - mark) * quantity * multiplier
	}
	return utils.RoundFloat(pl, 2)
}

type groupKey struct {
	underlying string
	expires    string
}

// buildAccountSummaries groups each account's positions by underlying and
// expiration in first-seen order and computes the per-group metrics.
func buildAccountSummaries(collected []*accountPositions, betaMap map[string]float64) []*models.AccountSummary {
	summaries := make([]*models.AccountSummary, 0, len(collected))

	for _, acct := range collected {
		order := []groupKey{}
		grouped := map[groupKey][]*models.Position{}
		for _, p := range acct.positions {
			key := groupKey{underlying: p.UnderlyingSymbol, expires: p.ExpiresAt}
			if _, seen := grouped[key]; !seen {
				order = append(order, key)
			}
			grouped[key] = append(grouped[key], p)
		}

		accountBetaDelta := 0.0
		groups := make([]*models.PositionGroup, 0, len(order))
		for _, key := range order {
			group := buildGroup(key, grouped[key], betaMap)
			if group.BetaDelta != nil {
				accountBetaDelta += *group.BetaDelta
			}
			groups = append(groups, group)
		}

		summaries = append(summaries, &models.AccountSummary{
			AccountNumber:  acct.account.AccountNumber,
			Nickname:       acct.account.Nickname,
			Groups:         groups,
			TotalBetaDelta: utils.RoundFloat(accountBetaDelta, 2),
		})
	}

	return summaries
}

func buildGroup(key groupKey, positions []*models.Position, betaMap map[string]float64) *models.PositionGroup {
	var totalCreditUnrounded, currentPriceUnrounded, deltaSumUnrounded float64

	// The group multiplier comes from the first position only. Mixed
	// multipliers within a group are a known limitation.
	multiplier := utils.ParseIntOrDefault(positions[0].Multiplier, 1)

	for _, p := range positions {
		avgOpen := utils.ParseFloatOrDefault(p.AverageOpenPrice, 0)
		quantity := float64(utils.ParseIntOrDefault(p.Quantity, 1))

		sign := 1.0
		if p.QuantityDirection == models.DirectionLong {
			sign = -1.0
		}
		totalCreditUnrounded += sign * avgOpen * quantity
		currentPriceUnrounded += p.ApproximateProfitLoss

		if p.MarketData.ComputedDelta != nil {
			deltaSumUnrounded += *p.MarketData.ComputedDelta
		}
	}

	totalCreditReceived := utils.RoundFloat(totalCreditUnrounded*float64(multiplier), 2)
	currentGroupPL := utils.RoundFloat(currentPriceUnrounded, 2)

	var percentCredit *int
	if totalCreditReceived != 0 {
		// Truncation toward zero, not rounding.
		v := int(currentGroupPL / math.Abs(totalCreditReceived) * 100)
		percentCredit = &v
	}

	totalDelta := utils.RoundFloat(deltaSumUnrounded, 2)

	var betaDelta *float64
	if beta, ok := betaMap[key.underlying]; ok {
		bd := utils.RoundFloat(beta*totalDelta, 2)
		betaDelta = &bd
	}

	return &models.PositionGroup{
		UnderlyingSymbol:       key.underlying,
		ExpiresAt:              key.expires,
		TotalCreditReceived:    totalCreditReceived,
		CurrentGroupProfitLoss: currentGroupPL,
		PercentCreditReceived:  percentCredit,
		TotalDelta:             totalDelta,
		BetaDelta:              betaDelta,
		Positions:              positions,
	}
}

// futuresSuffixRe matches a futures month code plus year digits at the end of
// a symbol, e.g. the "U5" in "/ESU5".
var futuresSuffixRe = regexp.MustCompile(`[FGHJKMNQUVXZ]\d+$`)

// rootSymbol strips the contract suffix from futures underlyings so /ESU5 and
// /ESZ5 both resolve volatility data for /ES.
func rootSymbol(symbol string) string {
	if strings.HasPrefix(symbol, "/") {
		return futuresSuffixRe.ReplaceAllString(symbol, "")
	}
	return symbol
}

// applyVolatility fetches IV rank and 5-day change per account for the
// deduplicated root symbols of its groups. A fetch failure leaves the IV
// fields null for the whole account.
func (s *tradesServiceImpl) applyVolatility(token string, summaries []*models.AccountSummary) {
	for _, acct := range summaries {
		roots := []string{}
		for _, g := range acct.Groups {
			if g.UnderlyingSymbol != "" {
				roots = append(roots, rootSymbol(g.UnderlyingSymbol))
			}
		}
		roots = lo.Uniq(roots)
		sort.Strings(roots)

		rankMap := map[string]*float64{}
		changeMap := map[string]*float64{}
		if len(roots) > 0 {
			volData, err := s.gateway.FetchVolatilityData(token, roots)
			if err != nil {
				logger.L.Error("Failed to fetch volatility data", "account", acct.AccountNumber, "error", err)
			} else {
				for _, item := range volData {
					if item.Symbol == "" {
						continue
					}
					if item.ImpliedVolatilityRank != "" {
						rankMap[item.Symbol] = scaledPercent(item.ImpliedVolatilityRank, 1)
					}
					if item.ImpliedVolatility5DayChg != "" {
						changeMap[item.Symbol] = scaledPercent(item.ImpliedVolatility5DayChg, 2)
					}
				}
			}
		}

		for _, g := range acct.Groups {
			root := rootSymbol(g.UnderlyingSymbol)
			g.IVRank = rankMap[root]
			g.IV5DayChange = changeMap[root]
		}
	}
}

// scaledPercent converts a 0-1 fractional string to percentage points,
// rounded to the given precision. Unparsable input maps to nil.
func scaledPercent(value string, precision uint) *float64 {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	v := utils.RoundFloat(f*100, precision)
	return &v
}

// applyBalances attaches buying-power utilization per account. Fetch or parse
// failures leave the field null.
func (s *tradesServiceImpl) applyBalances(token string, summaries []*models.AccountSummary) {
	for _, acct := range summaries {
		balance, err := s.gateway.FetchAccountBalance(token, acct.AccountNumber)
		if err != nil {
			logger.L.Error("Failed to fetch balance", "account", acct.AccountNumber, "error", err)
			continue
		}
		if balance == nil || balance.UsedDerivativeBuyingPower == "" || balance.MarginEquity == "" {
			continue
		}

		used, errUsed := strconv.ParseFloat(balance.UsedDerivativeBuyingPower, 64)
		denom, errDenom := strconv.ParseFloat(balance.MarginEquity, 64)
		if errUsed != nil || errDenom != nil || denom == 0 {
			continue
		}

		v := int(used / denom * 100)
		acct.PercentUsedBuyingPower = &v
	}
}

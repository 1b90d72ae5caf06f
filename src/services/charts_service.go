package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/net/publicsuffix"

	"github.com/Robooto/trade-journal/src/logger"
	"github.com/Robooto/trade-journal/src/models"
)

const (
	DefaultCacheExpiration = 5 * time.Minute
	CacheCleanupInterval   = 10 * time.Minute
)

const chartUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Yahoo v8 chart response. Close values may be null for halted sessions, so
// the quote arrays decode into pointers.
type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error any `json:"error"`
	} `json:"chart"`
}

type chartServiceImpl struct {
	httpClient *http.Client
	cache      *cache.Cache
	baseURL    string
	now        func() time.Time
}

// NewChartService builds the Yahoo Finance chart pass-through. The cache is
// shared so callers can size and clear it; the clock is injectable for tests.
func NewChartService(c *cache.Cache, timeout time.Duration) ChartService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	return &chartServiceImpl{
		httpClient: &http.Client{Jar: jar, Timeout: timeout},
		cache:      c,
		baseURL:    "https://query1.finance.yahoo.com",
		now:        time.Now,
	}
}

// resolutionIntervals maps chart resolutions to Yahoo interval names.
var resolutionIntervals = map[string]string{
	"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
	"1h": "1h", "1d": "1d", "1wk": "1wk", "1mo": "1mo",
}

// cacheTTL returns the memoization window for a resolution. Higher frequency
// data gets a shorter cache time.
func cacheTTL(resolution string) time.Duration {
	ttls := map[string]time.Duration{
		"1m":  60 * time.Second,
		"5m":  300 * time.Second,
		"15m": 600 * time.Second,
		"30m": 1200 * time.Second,
		"1h":  1800 * time.Second,
		"1d":  3600 * time.Second,
		"1wk": 7200 * time.Second,
		"1mo": 14400 * time.Second,
	}
	if ttl, ok := ttls[resolution]; ok {
		return ttl
	}
	return 1800 * time.Second
}

func chartCacheKey(symbol, resolution string, fromTS, toTS int64) string {
	return fmt.Sprintf("chart:%s:%s:%d:%d", symbol, resolution, fromTS, toTS)
}

func (s *chartServiceImpl) GetChartHistory(symbol, resolution string, fromTS, toTS *int64) (*models.ChartResponse, error) {
	if resolution == "" {
		resolution = "1d"
	}
	symbol = strings.ToUpper(symbol)

	now := s.now()
	to := now.Unix()
	if toTS != nil {
		to = *toTS
	}
	from := now.AddDate(0, 0, -30).Unix()
	if fromTS != nil {
		from = *fromTS
	}

	key := chartCacheKey(symbol, resolution, from, to)
	if cached, found := s.cache.Get(key); found {
		if resp, ok := cached.(*models.ChartResponse); ok {
			logger.L.Info("Returning cached chart data", "symbol", symbol)
			return resp, nil
		}
	}

	interval, ok := resolutionIntervals[resolution]
	if !ok {
		interval = "1d"
	}

	logger.L.Info("Fetching chart data", "symbol", symbol, "interval", interval,
		"from", from, "to", to)

	bars, err := s.fetchYahooBars(symbol, interval, from, to)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no data for %q", ErrSymbolNotFound, symbol)
	}

	resp := &models.ChartResponse{Status: "ok", Bars: bars}
	s.cache.Set(key, resp, cacheTTL(resolution))

	logger.L.Info("Retrieved and cached chart data", "symbol", symbol, "bars", len(bars))
	return resp, nil
}

func (s *chartServiceImpl) fetchYahooBars(symbol, interval string, from, to int64) ([]models.Bar, error) {
	query := url.Values{}
	query.Set("period1", strconv.FormatInt(from, 10))
	query.Set("period2", strconv.FormatInt(to, 10))
	query.Set("interval", interval)
	query.Set("events", "history")

	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s",
		s.baseURL, url.PathEscape(symbol), query.Encode())

	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", chartUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chart request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %q", ErrSymbolNotFound, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart request returned status %d", resp.StatusCode)
	}

	var yr yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&yr); err != nil {
		return nil, fmt.Errorf("decoding chart response: %w", err)
	}
	if len(yr.Chart.Result) == 0 || len(yr.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrSymbolNotFound, symbol)
	}

	result := yr.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	bars := make([]models.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			break
		}
		// Skip bars with null OHLC values.
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Close[i] == nil {
			continue
		}

		var volume int64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = *quote.Volume[i]
		}

		bars = append(bars, models.Bar{
			Time:   ts * 1000, // milliseconds for TradingView
			Open:   *quote.Open[i],
			High:   *quote.High[i],
			Low:    *quote.Low[i],
			Close:  *quote.Close[i],
			Volume: volume,
		})
	}

	return bars, nil
}

package services

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yahooChartFixture = `{
	"chart": {
		"result": [{
			"timestamp": [1700000000, 1700086400, 1700172800],
			"indicators": {
				"quote": [{
					"open":   [450.1, null, 452.3],
					"high":   [451.0, 452.0, 453.0],
					"low":    [449.5, 450.5, 451.5],
					"close":  [450.8, 451.8, 452.8],
					"volume": [1000, 2000, null]
				}]
			}
		}],
		"error": null
	}
}`

func newTestChartService(t *testing.T, handler http.HandlerFunc) (*chartServiceImpl, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc := &chartServiceImpl{
		httpClient: server.Client(),
		cache:      cache.New(DefaultCacheExpiration, CacheCleanupInterval),
		baseURL:    server.URL,
		now:        func() time.Time { return time.Unix(1700200000, 0) },
	}
	return svc, server
}

func TestGetChartHistorySkipsNullBars(t *testing.T) {
	var gotPath string
	svc, _ := newTestChartService(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		w.Write([]byte(yahooChartFixture))
	})

	resp, err := svc.GetChartHistory("spy", "1d", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/SPY", gotPath)
	assert.Equal(t, "ok", resp.Status)

	// The middle bar has a null open and is dropped.
	require.Len(t, resp.Bars, 2)
	assert.Equal(t, int64(1700000000000), resp.Bars[0].Time)
	assert.Equal(t, 450.8, resp.Bars[0].Close)
	assert.Equal(t, int64(1000), resp.Bars[0].Volume)
	// Null volume falls back to zero rather than dropping the bar.
	assert.Equal(t, int64(1700172800000), resp.Bars[1].Time)
	assert.Equal(t, int64(0), resp.Bars[1].Volume)
}

func TestGetChartHistoryUsesCache(t *testing.T) {
	calls := 0
	svc, _ := newTestChartService(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(yahooChartFixture))
	})

	from := int64(1700000000)
	to := int64(1700200000)

	first, err := svc.GetChartHistory("SPY", "1d", &from, &to)
	require.NoError(t, err)
	second, err := svc.GetChartHistory("SPY", "1d", &from, &to)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Same(t, first, second)
}

func TestGetChartHistoryWindowDefaults(t *testing.T) {
	var gotQuery map[string]string
	svc, _ := newTestChartService(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"period1": r.URL.Query().Get("period1"),
			"period2": r.URL.Query().Get("period2"),
		}
		w.Write([]byte(yahooChartFixture))
	})

	_, err := svc.GetChartHistory("SPY", "", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"period1": "1697608000", // now minus 30 days
		"period2": "1700200000",
	}, gotQuery)
}

func TestGetChartHistorySymbolNotFound(t *testing.T) {
	svc, _ := newTestChartService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := svc.GetChartHistory("NOPE", "1d", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestGetChartHistoryEmptyResultIsNotFound(t *testing.T) {
	svc, _ := newTestChartService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[],"error":null}}`))
	})

	_, err := svc.GetChartHistory("SPY", "1d", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestCacheTTLPerResolution(t *testing.T) {
	assert.Equal(t, 60*time.Second, cacheTTL("1m"))
	assert.Equal(t, 300*time.Second, cacheTTL("5m"))
	assert.Equal(t, 3600*time.Second, cacheTTL("1d"))
	assert.Equal(t, 14400*time.Second, cacheTTL("1mo"))
	assert.Equal(t, 1800*time.Second, cacheTTL("2h"))
}

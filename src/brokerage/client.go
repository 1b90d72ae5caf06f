package brokerage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Robooto/trade-journal/src/models"
)

const userAgent = "trade-journal/0.1"

// Client talks to the Tastytrade REST API. All fetch methods take the session
// token explicitly; token lifecycle lives in SessionManager.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

func NewClient(baseURL, username, password string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type loginResponse struct {
	Data struct {
		SessionToken      string `json:"session-token"`
		SessionExpiration string `json:"session-expiration"`
	} `json:"data"`
}

// Login authenticates with the brokerage and returns a session token with its
// expiration time.
func (c *Client) Login() (string, time.Time, error) {
	if c.username == "" || c.password == "" {
		return "", time.Time{}, fmt.Errorf("tastytrade credentials not configured")
	}

	payload := map[string]any{
		"login":       c.username,
		"password":    c.password,
		"remember-me": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", time.Time{}, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", time.Time{}, fmt.Errorf("session login returned status %d", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", time.Time{}, fmt.Errorf("decoding session login response: %w", err)
	}
	if lr.Data.SessionToken == "" {
		return "", time.Time{}, fmt.Errorf("session login response missing token")
	}

	// e.g. "2024-09-12T20:25:32.440Z"
	expiration, err := time.Parse(time.RFC3339, lr.Data.SessionExpiration)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("parsing session expiration %q: %w", lr.Data.SessionExpiration, err)
	}
	return lr.Data.SessionToken, expiration.UTC(), nil
}

// get performs an authenticated GET and decodes the "data" envelope into dst.
func (c *Client) get(token, path string, query url.Values, dst any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("request %s returned status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

type accountsResponse struct {
	Data struct {
		Items []struct {
			Account struct {
				AccountNumber string `json:"account-number"`
				Nickname      string `json:"nickname"`
			} `json:"account"`
		} `json:"items"`
	} `json:"data"`
}

// FetchAccounts lists all accounts for the logged-in user.
func (c *Client) FetchAccounts(token string) ([]models.AccountRecord, error) {
	var ar accountsResponse
	if err := c.get(token, "/customers/me/accounts", nil, &ar); err != nil {
		return nil, err
	}

	accounts := make([]models.AccountRecord, 0, len(ar.Data.Items))
	for _, item := range ar.Data.Items {
		accounts = append(accounts, models.AccountRecord{
			AccountNumber: item.Account.AccountNumber,
			Nickname:      item.Account.Nickname,
		})
	}
	return accounts, nil
}

type positionsResponse struct {
	Data struct {
		Items []*models.Position `json:"items"`
	} `json:"data"`
}

// FetchPositions retrieves all positions for a given account.
func (c *Client) FetchPositions(token, accountNumber string) ([]*models.Position, error) {
	query := url.Values{}
	query.Set("net-positions", "true")
	query.Set("include-marks", "true")

	var pr positionsResponse
	path := fmt.Sprintf("/accounts/%s/positions", accountNumber)
	if err := c.get(token, path, query, &pr); err != nil {
		return nil, err
	}
	return pr.Data.Items, nil
}

type marketDataResponse struct {
	Data struct {
		Items []models.QuoteRecord `json:"items"`
	} `json:"data"`
}

// FetchMarketData fetches quotes for the given symbol lists in one request.
func (c *Client) FetchMarketData(token string, equity, equityOption, future, futureOption []string) ([]models.QuoteRecord, error) {
	query := url.Values{}
	query.Set("equity", strings.Join(equity, ","))
	query.Set("equity-option", strings.Join(equityOption, ","))
	query.Set("future", strings.Join(future, ","))
	query.Set("future-option", strings.Join(futureOption, ","))

	var mr marketDataResponse
	if err := c.get(token, "/market-data/by-type", query, &mr); err != nil {
		return nil, err
	}
	return mr.Data.Items, nil
}

type volatilityResponse struct {
	Data struct {
		Items []models.VolatilityRecord `json:"items"`
	} `json:"data"`
}

// FetchVolatilityData fetches market metrics for the given root symbols.
func (c *Client) FetchVolatilityData(token string, symbols []string) ([]models.VolatilityRecord, error) {
	query := url.Values{}
	query.Set("symbols", strings.Join(symbols, ","))

	var vr volatilityResponse
	if err := c.get(token, "/market-metrics", query, &vr); err != nil {
		return nil, err
	}
	return vr.Data.Items, nil
}

type balanceResponse struct {
	Data models.BalanceRecord `json:"data"`
}

// FetchAccountBalance retrieves the balance record for one account.
func (c *Client) FetchAccountBalance(token, accountNumber string) (*models.BalanceRecord, error) {
	var br balanceResponse
	path := fmt.Sprintf("/accounts/%s/balances", accountNumber)
	if err := c.get(token, path, nil, &br); err != nil {
		return nil, err
	}
	return &br.Data, nil
}

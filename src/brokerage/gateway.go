package brokerage

import "database/sql"

// Gateway bundles the API client with the session manager so callers get the
// full brokerage surface (token lifecycle plus fetches) behind one value.
type Gateway struct {
	*Client
	*SessionManager
}

func NewGateway(db *sql.DB, client *Client) *Gateway {
	return &Gateway{
		Client:         client,
		SessionManager: NewSessionManager(db, client),
	}
}

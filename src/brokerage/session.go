package brokerage

import (
	"database/sql"
	"sync"
	"time"

	"github.com/Robooto/trade-journal/src/logger"
	"github.com/Robooto/trade-journal/src/model"
)

// SessionManager hands out a valid session token, reusing the one cached in
// the database and logging in again when it is missing or expired. Multiple
// requests may race on refresh, so the check-and-login is mutex-guarded.
type SessionManager struct {
	db     *sql.DB
	client *Client
	mu     sync.Mutex
}

func NewSessionManager(db *sql.DB, client *Client) *SessionManager {
	return &SessionManager{db: db, client: client}
}

// ActiveToken returns a session token that is valid right now.
func (m *SessionManager) ActiveToken() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := model.GetSessionToken(m.db)
	if err != nil {
		logger.L.Warn("Failed to read cached session token, logging in fresh", "error", err)
	} else if record != nil && record.Expiration.After(time.Now().UTC()) {
		return record.Token, nil
	}

	token, expiration, err := m.client.Login()
	if err != nil {
		return "", err
	}

	if err := model.SaveSessionToken(m.db, token, expiration); err != nil {
		// A failed save only costs a re-login next time.
		logger.L.Warn("Failed to persist session token", "error", err)
	}
	return token, nil
}

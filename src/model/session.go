package model

import (
	"database/sql"
	"errors"
	"time"
)

// SessionToken is the cached brokerage session record. A single row is kept.
type SessionToken struct {
	Token      string
	Expiration time.Time
}

func GetSessionToken(db *sql.DB) (*SessionToken, error) {
	var t SessionToken
	err := db.QueryRow(`SELECT token, expiration FROM session_tokens WHERE id = 1`).
		Scan(&t.Token, &t.Expiration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveSessionToken creates or replaces the stored session token record.
func SaveSessionToken(db *sql.DB, token string, expiration time.Time) error {
	_, err := db.Exec(`
	INSERT INTO session_tokens (id, token, expiration)
	VALUES (1, ?, ?)
	ON CONFLICT(id) DO UPDATE SET token = excluded.token, expiration = excluded.expiration`,
		token, expiration.UTC())
	return err
}

package brokerage

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/Robooto/trade-journal/src/model"
)

func openSessionDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
	CREATE TABLE session_tokens (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		token TEXT NOT NULL,
		expiration TIMESTAMP NOT NULL
	)`)
	require.NoError(t, err)
	return db
}

func TestActiveTokenReusesUnexpiredToken(t *testing.T) {
	db := openSessionDB(t)
	require.NoError(t, model.SaveSessionToken(db, "cached-tok", time.Now().UTC().Add(time.Hour)))

	logins := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logins++
	}))

	mgr := NewSessionManager(db, client)
	token, err := mgr.ActiveToken()
	require.NoError(t, err)
	assert.Equal(t, "cached-tok", token)
	assert.Zero(t, logins)
}

func TestActiveTokenRefreshesExpiredToken(t *testing.T) {
	db := openSessionDB(t)
	require.NoError(t, model.SaveSessionToken(db, "stale-tok", time.Now().UTC().Add(-time.Minute)))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sessions", r.URL.Path)
		w.Write([]byte(`{"data":{"session-token":"fresh-tok","session-expiration":"2099-01-01T00:00:00Z"}}`))
	}))
	t.Cleanup(server.Close)

	mgr := NewSessionManager(db, NewClient(server.URL, "u", "p", time.Second))
	token, err := mgr.ActiveToken()
	require.NoError(t, err)
	assert.Equal(t, "fresh-tok", token)

	// The fresh token is persisted for the next call.
	saved, err := model.GetSessionToken(db)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "fresh-tok", saved.Token)
}

func TestActiveTokenPropagatesLoginFailure(t *testing.T) {
	db := openSessionDB(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	mgr := NewSessionManager(db, NewClient(server.URL, "u", "p", time.Second))
	_, err := mgr.ActiveToken()
	require.Error(t, err)
}

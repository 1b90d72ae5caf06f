package model

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/Robooto/trade-journal/src/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

func CountEntries(db *sql.DB) (int, error) {
	var total int
	err := db.QueryRow(`SELECT COUNT(*) FROM journal_entries`).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// GetEntries returns a page of journal entries, sorted newest-first by date.
func GetEntries(db *sql.DB, skip, limit int) ([]models.JournalEntry, error) {
	rows, err := db.Query(`
	SELECT id, date, es_price, delta, notes, market_direction
	FROM journal_entries
	ORDER BY date DESC
	LIMIT ? OFFSET ?`, limit, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.JournalEntry{}
	for rows.Next() {
		var e models.JournalEntry
		if err := rows.Scan(&e.ID, &e.Date, &e.ESPrice, &e.Delta, &e.Notes, &e.MarketDirection); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entries {
		events, err := getEvents(db, entries[i].ID)
		if err != nil {
			return nil, err
		}
		entries[i].Events = events
	}
	return entries, nil
}

func GetEntry(db *sql.DB, id string) (*models.JournalEntry, error) {
	var e models.JournalEntry
	err := db.QueryRow(`
	SELECT id, date, es_price, delta, notes, market_direction
	FROM journal_entries
	WHERE id = ?`, id).Scan(&e.ID, &e.Date, &e.ESPrice, &e.Delta, &e.Notes, &e.MarketDirection)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	events, err := getEvents(db, e.ID)
	if err != nil {
		return nil, err
	}
	e.Events = events
	return &e, nil
}

func getEvents(db *sql.DB, entryID string) ([]models.JournalEvent, error) {
	rows, err := db.Query(`
	SELECT time, price, note
	FROM journal_events
	WHERE entry_id = ?
	ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.JournalEvent{}
	for rows.Next() {
		var ev models.JournalEvent
		if err := rows.Scan(&ev.Time, &ev.Price, &ev.Note); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CreateEntry inserts a new journal entry plus any nested events.
func CreateEntry(db *sql.DB, in models.JournalEntryCreate) (*models.JournalEntry, error) {
	id := uuid.New().String()

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
	INSERT INTO journal_entries (id, date, es_price, delta, notes, market_direction)
	VALUES (?, ?, ?, ?, ?, ?)`,
		id, in.Date, in.ESPrice, in.Delta, in.Notes, string(in.MarketDirection))
	if err != nil {
		return nil, err
	}

	for _, ev := range in.Events {
		if _, err := tx.Exec(`
		INSERT INTO journal_events (entry_id, time, price, note)
		VALUES (?, ?, ?, ?)`, id, ev.Time, ev.Price, ev.Note); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return GetEntry(db, id)
}

// UpdateEntry applies partial updates to an existing entry. A non-nil Events
// replaces the entire events list.
func UpdateEntry(db *sql.DB, id string, changes models.JournalEntryUpdate) (*models.JournalEntry, error) {
	existing, err := GetEntry(db, id)
	if err != nil {
		return nil, err
	}

	if changes.Date != nil {
		existing.Date = *changes.Date
	}
	if changes.ESPrice != nil {
		existing.ESPrice = *changes.ESPrice
	}
	if changes.Delta != nil {
		existing.Delta = *changes.Delta
	}
	if changes.Notes != nil {
		existing.Notes = *changes.Notes
	}
	if changes.MarketDirection != nil {
		existing.MarketDirection = *changes.MarketDirection
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
	UPDATE journal_entries
	SET date = ?, es_price = ?, delta = ?, notes = ?, market_direction = ?
	WHERE id = ?`,
		existing.Date, existing.ESPrice, existing.Delta, existing.Notes,
		string(existing.MarketDirection), id)
	if err != nil {
		return nil, err
	}

	if changes.Events != nil {
		if _, err := tx.Exec(`DELETE FROM journal_events WHERE entry_id = ?`, id); err != nil {
			return nil, err
		}
		for _, ev := range *changes.Events {
			if _, err := tx.Exec(`
			INSERT INTO journal_events (entry_id, time, price, note)
			VALUES (?, ?, ?, ?)`, id, ev.Time, ev.Price, ev.Note); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return GetEntry(db, id)
}

// DeleteEntry removes an entry; its events cascade.
func DeleteEntry(db *sql.DB, id string) error {
	res, err := db.Exec(`DELETE FROM journal_entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddEventToEntry appends a single event to the given entry's events list.
func AddEventToEntry(db *sql.DB, id string, ev models.JournalEvent) (*models.JournalEntry, error) {
	if _, err := GetEntry(db, id); err != nil {
		return nil, err
	}
	_, err := db.Exec(`
	INSERT INTO journal_events (entry_id, time, price, note)
	VALUES (?, ?, ?, ?)`, id, ev.Time, ev.Price, ev.Note)
	if err != nil {
		return nil, err
	}
	return GetEntry(db, id)
}

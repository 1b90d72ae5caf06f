package models

import "time"

// MarketDirection is the journaled read of the day's market.
type MarketDirection string

const (
	MarketDirectionUp   MarketDirection = "up"
	MarketDirectionDown MarketDirection = "down"
)

func (d MarketDirection) Valid() bool {
	return d == MarketDirectionUp || d == MarketDirectionDown
}

// JournalEvent is one intra-day observation attached to a journal entry.
type JournalEvent struct {
	Time  string  `json:"time"`
	Price float64 `json:"price"`
	Note  string  `json:"note"`
}

// JournalEntry is one day's trade journal record.
type JournalEntry struct {
	ID              string          `json:"id"`
	Date            string          `json:"date"`
	ESPrice         float64         `json:"esPrice"`
	Delta           float64         `json:"delta"`
	Notes           string          `json:"notes"`
	MarketDirection MarketDirection `json:"marketDirection"`
	Events          []JournalEvent  `json:"events"`
}

// JournalEntryCreate is the POST /entries payload.
type JournalEntryCreate struct {
	Date            string          `json:"date"`
	ESPrice         float64         `json:"esPrice"`
	Delta           float64         `json:"delta"`
	Notes           string          `json:"notes"`
	MarketDirection MarketDirection `json:"marketDirection"`
	Events          []JournalEvent  `json:"events"`
}

// JournalEntryUpdate is the PUT /entries/{id} payload. Nil fields are left
// untouched; a non-nil Events replaces the whole events list.
type JournalEntryUpdate struct {
	Date            *string          `json:"date"`
	ESPrice         *float64         `json:"esPrice"`
	Delta           *float64         `json:"delta"`
	Notes           *string          `json:"notes"`
	MarketDirection *MarketDirection `json:"marketDirection"`
	Events          *[]JournalEvent  `json:"events"`
}

// PaginatedEntries is the GET /entries page envelope.
type PaginatedEntries struct {
	Total int            `json:"total"`
	Items []JournalEntry `json:"items"`
	Skip  int            `json:"skip"`
	Limit int            `json:"limit"`
}

// PivotLevel is a manually tracked index pivot price.
type PivotLevel struct {
	ID        int64     `json:"id"`
	Index     string    `json:"index"`
	Price     float64   `json:"price"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// PivotLevelCreate is the POST /pivots payload.
type PivotLevelCreate struct {
	Index string  `json:"index"`
	Price float64 `json:"price"`
	Note  string  `json:"note"`
}

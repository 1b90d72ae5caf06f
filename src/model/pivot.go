package model

import (
	"database/sql"
	"errors"
	"time"

	"github.com/Robooto/trade-journal/src/models"
)

func CreatePivotLevel(db *sql.DB, in models.PivotLevelCreate) (*models.PivotLevel, error) {
	index := in.Index
	if index == "" {
		index = "SPX"
	}
	now := time.Now().UTC()

	res, err := db.Exec(`
	INSERT INTO pivot_levels (market_index, price, note, created_at)
	VALUES (?, ?, ?, ?)`, index, in.Price, in.Note, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &models.PivotLevel{
		ID:        id,
		Index:     index,
		Price:     in.Price,
		Note:      in.Note,
		CreatedAt: now,
	}, nil
}

func GetLatestPivotLevel(db *sql.DB, index string) (*models.PivotLevel, error) {
	var p models.PivotLevel
	err := db.QueryRow(`
	SELECT id, market_index, price, note, created_at
	FROM pivot_levels
	WHERE market_index = ?
	ORDER BY created_at DESC, id DESC
	LIMIT 1`, index).Scan(&p.ID, &p.Index, &p.Price, &p.Note, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func GetRecentPivotLevels(db *sql.DB, limit int, index string) ([]models.PivotLevel, error) {
	rows, err := db.Query(`
	SELECT id, market_index, price, note, created_at
	FROM pivot_levels
	WHERE market_index = ?
	ORDER BY created_at DESC, id DESC
	LIMIT ?`, index, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	levels := []models.PivotLevel{}
	for rows.Next() {
		var p models.PivotLevel
		if err := rows.Scan(&p.ID, &p.Index, &p.Price, &p.Note, &p.CreatedAt); err != nil {
			return nil, err
		}
		levels = append(levels, p)
	}
	return levels, rows.Err()
}

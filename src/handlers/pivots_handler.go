package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Robooto/trade-journal/src/logger"
	"github.com/Robooto/trade-journal/src/model"
	"github.com/Robooto/trade-journal/src/models"
	"github.com/Robooto/trade-journal/src/utils"
)

type PivotsHandler struct {
	db *sql.DB
}

func NewPivotsHandler(db *sql.DB) *PivotsHandler {
	return &PivotsHandler{db: db}
}

func (h *PivotsHandler) HandleCreatePivotLevel(w http.ResponseWriter, r *http.Request) {
	var in models.PivotLevelCreate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	pivot, err := model.CreatePivotLevel(h.db, in)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to create pivot level", "error", err)
		utils.SendJSONError(w, "Failed to create pivot level", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(pivot)
}

func (h *PivotsHandler) HandleGetLatestPivotLevel(w http.ResponseWriter, r *http.Request) {
	index := r.URL.Query().Get("index")
	if index == "" {
		index = "SPX"
	}

	latest, err := model.GetLatestPivotLevel(h.db, index)
	if errors.Is(err, model.ErrNotFound) {
		utils.SendJSONError(w, "No pivot levels recorded for this index", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to get latest pivot level", "index", index, "error", err)
		utils.SendJSONError(w, "Failed to get latest pivot level", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(latest)
}

func (h *PivotsHandler) HandleGetPivotLevelHistory(w http.ResponseWriter, r *http.Request) {
	index := r.URL.Query().Get("index")
	if index == "" {
		index = "SPX"
	}
	limit := queryInt(r, "limit", 7)
	if limit < 1 {
		limit = 1
	}
	if limit > 30 {
		limit = 30
	}

	levels, err := model.GetRecentPivotLevels(h.db, limit, index)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to get pivot history", "index", index, "error", err)
		utils.SendJSONError(w, "Failed to get pivot history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(levels)
}

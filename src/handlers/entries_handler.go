package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Robooto/trade-journal/src/logger"
	"github.com/Robooto/trade-journal/src/model"
	"github.com/Robooto/trade-journal/src/models"
	"github.com/Robooto/trade-journal/src/utils"
)

type EntriesHandler struct {
	db *sql.DB
}

func NewEntriesHandler(db *sql.DB) *EntriesHandler {
	return &EntriesHandler{db: db}
}

// HandleListEntries returns a page of journal entries, newest first.
func (h *EntriesHandler) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", 20)
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 20
	}

	total, err := model.CountEntries(h.db)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to count entries", "error", err)
		utils.SendJSONError(w, "Failed to list entries", http.StatusInternalServerError)
		return
	}
	items, err := model.GetEntries(h.db, skip, limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list entries", "error", err)
		utils.SendJSONError(w, "Failed to list entries", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.PaginatedEntries{
		Total: total,
		Items: items,
		Skip:  skip,
		Limit: limit,
	})
}

// HandleCreateEntry creates a journal entry plus any nested events.
func (h *EntriesHandler) HandleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var in models.JournalEntryCreate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if in.Date == "" {
		utils.SendJSONError(w, "date is required", http.StatusBadRequest)
		return
	}
	if !in.MarketDirection.Valid() {
		utils.SendJSONError(w, "marketDirection must be 'up' or 'down'", http.StatusBadRequest)
		return
	}

	entry, err := model.CreateEntry(h.db, in)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to create entry", "error", err)
		utils.SendJSONError(w, "Failed to create entry", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(entry)
}

// HandleGetEntry fetches a single entry by its UUID, including events.
func (h *EntriesHandler) HandleGetEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entry, err := model.GetEntry(h.db, id)
	if errors.Is(err, model.ErrNotFound) {
		utils.SendJSONError(w, "Entry not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to get entry", "id", id, "error", err)
		utils.SendJSONError(w, "Failed to get entry", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

// HandleUpdateEntry applies partial updates; a provided events list replaces
// all existing events.
func (h *EntriesHandler) HandleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var changes models.JournalEntryUpdate
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if changes.MarketDirection != nil && !changes.MarketDirection.Valid() {
		utils.SendJSONError(w, "marketDirection must be 'up' or 'down'", http.StatusBadRequest)
		return
	}

	entry, err := model.UpdateEntry(h.db, id, changes)
	if errors.Is(err, model.ErrNotFound) {
		utils.SendJSONError(w, "Entry not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to update entry", "id", id, "error", err)
		utils.SendJSONError(w, "Failed to update entry", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

// HandleDeleteEntry deletes an entry and all its nested events.
func (h *EntriesHandler) HandleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := model.DeleteEntry(h.db, id)
	if errors.Is(err, model.ErrNotFound) {
		utils.SendJSONError(w, "Entry not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to delete entry", "id", id, "error", err)
		utils.SendJSONError(w, "Failed to delete entry", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleAddEvent appends a single intra-day event to the entry's events list.
func (h *EntriesHandler) HandleAddEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var ev models.JournalEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	entry, err := model.AddEventToEntry(h.db, id, ev)
	if errors.Is(err, model.ErrNotFound) {
		utils.SendJSONError(w, "Entry not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to add event", "id", id, "error", err)
		utils.SendJSONError(w, "Failed to add event", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(entry)
}

// queryInt reads an integer query parameter with a fallback.
func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}

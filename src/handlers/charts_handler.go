package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Robooto/trade-journal/src/logger"
	"github.com/Robooto/trade-journal/src/services"
	"github.com/Robooto/trade-journal/src/utils"
)

type ChartsHandler struct {
	chartService services.ChartService
}

func NewChartsHandler(chartService services.ChartService) *ChartsHandler {
	return &ChartsHandler{chartService: chartService}
}

// HandleGetSymbolHistory serves historical chart data in TradingView form.
// from_ts/to_ts default to the last 30 days when omitted.
func (h *ChartsHandler) HandleGetSymbolHistory(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if symbol == "" {
		utils.SendJSONError(w, "symbol is required", http.StatusBadRequest)
		return
	}

	resolution := r.URL.Query().Get("resolution")
	if resolution == "" {
		resolution = "1d"
	}
	fromTS := queryInt64(r, "from_ts")
	toTS := queryInt64(r, "to_ts")

	data, err := h.chartService.GetChartHistory(symbol, resolution, fromTS, toTS)
	if err != nil {
		if errors.Is(err, services.ErrSymbolNotFound) {
			utils.SendJSONError(w, "Symbol not found. Please check the symbol and try again.", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to fetch chart data", "symbol", symbol, "error", err)
		utils.SendJSONError(w, "Failed to fetch chart data. Please try again later.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// queryInt64 reads an optional integer query parameter.
func queryInt64(r *http.Request, key string) *int64 {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

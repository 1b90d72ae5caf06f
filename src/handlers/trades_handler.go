package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Robooto/trade-journal/src/logger"
	"github.com/Robooto/trade-journal/src/services"
	"github.com/Robooto/trade-journal/src/utils"
)

type TradesHandler struct {
	tradesService services.TradesService
}

func NewTradesHandler(tradesService services.TradesService) *TradesHandler {
	return &TradesHandler{tradesService: tradesService}
}

// HandleGetAllPositions serves the aggregated positions view: every account's
// non-equity positions grouped by underlying and expiration with derived
// metrics.
func (h *TradesHandler) HandleGetAllPositions(w http.ResponseWriter, r *http.Request) {
	result, err := h.tradesService.GetAllPositions()
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to aggregate positions", "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

type marketDataRequest struct {
	Equity       []string `json:"equity"`
	EquityOption []string `json:"equity_option"`
	Future       []string `json:"future"`
	FutureOption []string `json:"future_option"`
}

// HandleGetMarketData returns the raw market-data response for four explicit
// symbol lists.
func (h *TradesHandler) HandleGetMarketData(w http.ResponseWriter, r *http.Request) {
	var req marketDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	items, err := h.tradesService.GetMarketData(req.Equity, req.EquityOption, req.Future, req.FutureOption)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to fetch market data", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrAuthentication) {
			status = http.StatusForbidden
		}
		utils.SendJSONError(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

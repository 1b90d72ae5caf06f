package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Robooto/trade-journal/src/models"
	"github.com/Robooto/trade-journal/src/services"
	"github.com/Robooto/trade-journal/src/utils"
)

type AnalysisHandler struct{}

func NewAnalysisHandler() *AnalysisHandler {
	return &AnalysisHandler{}
}

// HandleDetectCrossing reports where two extracted chart polylines intersect.
func (h *AnalysisHandler) HandleDetectCrossing(w http.ResponseWriter, r *http.Request) {
	var req models.CrossingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Orange) < 2 || len(req.Blue) < 2 {
		utils.SendJSONError(w, "each polyline needs at least two points", http.StatusBadRequest)
		return
	}

	result := services.DetectCrossings(req.Orange, req.Blue)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

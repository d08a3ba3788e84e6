package handlers

import (
	"net/http"
	"time"
)

type HealthResponse struct {
	Status      string    `json:"status"`
	Service     string    `json:"service"`
	Subscribers int       `json:"subscribers"`
	Timestamp   time.Time `json:"timestamp"`
}

// Health handles GET /health
func (rh *RelayHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		Service:     "broadcast-relay",
		Subscribers: rh.hub.Count(),
		Timestamp:   time.Now().UTC(),
	})
}

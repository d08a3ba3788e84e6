package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"officehub/pkg/broadcast"
	"officehub/services/broadcast-relay/hub"
	ws "officehub/services/broadcast-relay/websocket"
	"officehub/utils"
)

var errTrailingData = errors.New("trailing data after event")

type IngestResponse struct {
	Status      string `json:"status"`
	Subscribers int    `json:"subscribers"`
}

type StatsResponse struct {
	Subscribers int `json:"subscribers"`
}

type RelayHandler struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader
	connOpts ws.Options
	maxBytes int64
	logger   *utils.Logger
}

func NewRelayHandler(h *hub.Hub, connOpts ws.Options, maxBytes int64, logger *utils.Logger) *RelayHandler {
	return &RelayHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Subscribers are not authenticated; any dashboard origin may listen.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		hub:      h,
		connOpts: connOpts,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Ingest handles POST /broadcast. It answers once fan-out has been attempted.
func (rh *RelayHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var evt broadcast.Event
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, rh.maxBytes))
	err := dec.Decode(&evt)
	if err == nil {
		// The body must hold exactly one envelope.
		if _, tokErr := dec.Token(); tokErr != io.EOF {
			err = errTrailingData
			if tokErr != nil {
				err = tokErr
			}
		}
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Event too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := evt.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := json.Marshal(evt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid event")
		return
	}

	delivered := rh.hub.Broadcast(data)
	rh.logger.Debug("Event relayed", "event", evt.Event, "subscribers", delivered)

	writeJSON(w, http.StatusOK, IngestResponse{Status: "accepted", Subscribers: delivered})
}

// Subscribe handles GET /ws and keeps the connection until either side drops it.
func (rh *RelayHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := rh.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rh.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	ws.NewConn(uuid.New().String(), conn, rh.hub, rh.connOpts, rh.logger).Start()
}

// Stats handles GET /stats
func (rh *RelayHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{Subscribers: rh.hub.Count()})
}

// Routes returns the relay's mux.
func (rh *RelayHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", rh.Health)
	mux.HandleFunc("/broadcast", rh.Ingest)
	mux.HandleFunc("/ws", rh.Subscribe)
	mux.HandleFunc("/stats", rh.Stats)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package handler

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"repairdesk/internal/realtime"
	"repairdesk/internal/util"
)

// WSHandler upgrades HTTP requests into realtime channels.
type WSHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWSHandler(hub *realtime.Hub, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the browser client runs on a different origin in every deployment
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and hands the socket to the hub. Blocks for the
// lifetime of the connection.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed",
			util.String("remote_addr", r.RemoteAddr),
			util.ErrorField(err))
		return
	}
	h.hub.Serve(ws)
}

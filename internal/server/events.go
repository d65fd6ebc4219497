package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/vk/calcgrid/internal/ctxlog"
	"github.com/vk/calcgrid/internal/eventbus"
)

const writeWait = 10 * time.Second

// handleEvents upgrades to a websocket and relays every message published
// for the document until the client goes away. Messages from the client are
// read and discarded.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.docs.Open(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	logger := ctxlog.FromContext(r.Context())

	// Subscribed before the handshake completes, so a client sees every
	// action posted after its dial returns.
	messages, cancel := s.events.Subscribe(id, eventbus.DefaultBuffer)
	defer cancel()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed.", "error", err)
		return
	}
	defer ws.Close()
	logger.Debug("Event stream opened.", "document", id)

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(msg); err != nil {
				logger.Debug("Event stream write failed.", "document", id, "error", err)
				return
			}
		case <-gone:
			logger.Debug("Event stream closed by client.", "document", id)
			return
		case <-s.ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}

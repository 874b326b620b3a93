package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"video-reducer/internal/logging"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// StreamEvents upgrades to a websocket and sends every reduction progress
// event as a JSON text message until the client disconnects.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeJSONError(w, "events are not available", http.StatusServiceUnavailable)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request.
		logging.Debug("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe()
	defer sub.Close()

	// The read loop only handles control frames and notices disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(e); err != nil {
				logging.Debug("websocket write failed: %v", err)
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}

		case <-gone:
			if n := sub.Dropped(); n > 0 {
				logging.Debug("websocket client dropped %d event(s)", n)
			}
			return
		}
	}
}

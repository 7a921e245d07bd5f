package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signsinfo/capacity/internal/access"
)

const (
	eventWriteWait = 10 * time.Second
	eventPingEvery = 30 * time.Second
)

// handleEvents streams notification events to a websocket client as JSON
// text messages until either side closes.
// GET /events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if err := s.guard.Require(r.Context(), access.ViewUsage); err != nil {
		writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("websocket upgrade failed for %s: %v", getClientIP(r), err)
		return
	}
	defer conn.Close()

	events, cancel := s.hub.Subscribe()
	defer cancel()
	s.metrics.subscribed(1)
	defer s.metrics.subscribed(-1)

	user, _ := userFrom(r.Context())
	s.logger.Debugf("event stream opened for %s (%s)", user.Email, getClientIP(r))

	// The client sends nothing; reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Printf("unexpected websocket close: %v", err)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(eventPingEvery)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Debugf("websocket write error: %v", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteWait)); err != nil {
				return
			}
		}
	}
}

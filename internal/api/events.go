package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/screening-engine/internal/models"
	"github.com/terra-clan/screening-engine/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamMessage is one frame of the session event stream. The first
// frame is a snapshot of the session; later frames carry events.
type StreamMessage struct {
	Type    string          `json:"type"`
	Session *models.Session `json:"session,omitempty"`
	Event   *session.Event  `json:"event,omitempty"`
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	snap, err := s.sessions.Get(r.Context(), token)
	if err != nil {
		respondFailure(w, "get session", err)
		return
	}

	events, unsubscribe, err := s.sessions.Subscribe(token)
	if err != nil {
		// Stored but no longer live
		if errors.Is(err, session.ErrSessionNotFound) {
			respondError(w, http.StatusGone, "session_closed", "session is no longer live")
			return
		}
		respondFailure(w, "subscribe", err)
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	slog.Info("event stream connected", "session_id", snap.ID)

	var writeMu sync.Mutex
	send := func(msg StreamMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}

	if err := send(StreamMessage{Type: "snapshot", Session: snap}); err != nil {
		slog.Debug("failed to send snapshot", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// Session events -> WebSocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					writeMu.Lock()
					conn.SetWriteDeadline(time.Now().Add(writeWait))
					conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
					writeMu.Unlock()
					return
				}
				if err := send(StreamMessage{Type: string(ev.Type), Event: &ev}); err != nil {
					slog.Debug("failed to send event", "error", err)
					return
				}
			case <-ping.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	// WebSocket reads keep the pong deadline fresh and detect the client
	// going away. Incoming payloads are ignored.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()

		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	<-ctx.Done()
	// Unblock the reader
	conn.Close()
	wg.Wait()

	slog.Info("event stream disconnected", "session_id", snap.ID)
}

package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/daily-missions/internal/models"
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

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	// Subscribe before the snapshot so nothing between them is lost.
	sub := s.missions.Subscribe(playerID)
	defer sub.Close()

	snap, err := s.missions.Missions(r.Context(), playerID)
	if err != nil {
		respondMissionError(w, r, err, "load missions")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err, "player_id", playerID)
		return
	}
	defer conn.Close()

	slog.Info("mission event stream connected", "player_id", playerID)

	view := newMissionsView(snap)
	if err := writeStream(conn, models.StreamMessage{Type: models.StreamSnapshot, Missions: &view}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client only sends control frames, read them to notice disconnects.
	go func() {
		defer cancel()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err, "player_id", playerID)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("mission event stream disconnected", "player_id", playerID)
			return
		case ev, ok := <-sub.C:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
			if err := writeStream(conn, models.StreamMessage{Type: string(ev.Type), Event: &ev}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				slog.Debug("websocket ping failed", "error", err, "player_id", playerID)
				return
			}
		}
	}
}

func writeStream(conn *websocket.Conn, msg models.StreamMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		slog.Debug("failed to send stream message", "error", err, "type", msg.Type)
		return err
	}
	return nil
}

package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	outboundBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API surface is local-only; origin enforcement belongs to the
	// outer auth layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSubscriber adapts a websocket connection to the Subscriber interface.
// Sends go through a buffered channel drained by a single write pump; a
// full buffer counts as a failed send so slow readers get dropped instead
// of blocking the broadcast.
type wsSubscriber struct {
	id       uuid.UUID
	conn     *websocket.Conn
	outbound chan []byte
	done     chan struct{}
}

func (s *wsSubscriber) ID() uuid.UUID { return s.id }

func (s *wsSubscriber) Send(payload []byte) error {
	select {
	case <-s.done:
		return websocket.ErrCloseSent
	case s.outbound <- payload:
		return nil
	default:
		return websocket.ErrCloseSent
	}
}

func (s *wsSubscriber) writePump() {
	defer s.conn.Close()
	for {
		select {
		case <-s.done:
			return
		case payload := <-s.outbound:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}

// WSHandler upgrades connections and joins them to a room. The path is
// /ws/{room_type}/{chat_id}: room_type "sidebar" joins the sidebar room,
// anything else joins the chat's event room.
func WSHandler(hub *Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 3 {
			http.Error(w, "expected /ws/{room_type}/{chat_id}", http.StatusBadRequest)
			return
		}
		roomType, chatID := parts[1], parts[2]
		roomID := ChatRoom(chatID)
		if roomType == SidebarRoom {
			roomID = SidebarRoom
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		sub := &wsSubscriber{
			id:       uuid.New(),
			conn:     conn,
			outbound: make(chan []byte, outboundBuffer),
			done:     make(chan struct{}),
		}
		go sub.writePump()

		hub.Join(roomID, sub)
		logger.Debug("subscriber joined",
			zap.String("room", roomID), zap.String("subscriber", sub.id.String()))

		// Read pump: the protocol is push-only, so inbound frames are
		// discarded; reading still detects disconnects.
		go func() {
			defer func() {
				close(sub.done)
				hub.Leave(roomID, sub)
				conn.Close()
				logger.Debug("subscriber left",
					zap.String("room", roomID), zap.String("subscriber", sub.id.String()))
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

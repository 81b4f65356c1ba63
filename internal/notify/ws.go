package notify

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Send(payload []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

// WSHandler принимает WebSocket-подключения для получения событий.
type WSHandler struct {
	manager  *Manager
	upgrader websocket.Upgrader
}

// NewWSHandler создаёт обработчик WebSocket. checkOrigin = nil разрешает только тот же origin.
func NewWSHandler(m *Manager, checkOrigin func(r *http.Request) bool) *WSHandler {
	return &WSHandler{
		manager: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, userEmail, ok := StreamParams(r)
	if !ok {
		http.Error(w, "userId and userEmail are required", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.manager.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	id := h.manager.Register(&wsConn{ws: ws}, userID, userEmail)
	defer h.manager.Unregister(id)

	// Клиент ничего не присылает; чтение нужно для обработки pong и закрытия.
	pongWait := 2 * h.manager.heartbeat
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.manager.logger.Debug("websocket closed", zap.Error(err))
			}
			return
		}
	}
}

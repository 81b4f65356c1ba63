package notify

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type sseConn struct {
	w      io.Writer
	rc     *http.ResponseController
	once   sync.Once
	closed chan struct{}
}

func newSSEConn(w http.ResponseWriter) *sseConn {
	return &sseConn{
		w:      w,
		rc:     http.NewResponseController(w),
		closed: make(chan struct{}),
	}
}

func (c *sseConn) Send(payload []byte) error {
	if _, err := fmt.Fprintf(c.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return c.rc.Flush()
}

func (c *sseConn) Ping() error {
	if _, err := io.WriteString(c.w, ": heartbeat\n\n"); err != nil {
		return err
	}
	return c.rc.Flush()
}

func (c *sseConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// StreamParams извлекает обязательные параметры userId и userEmail из запроса.
func StreamParams(r *http.Request) (userID, userEmail string, ok bool) {
	userID = strings.TrimSpace(r.URL.Query().Get("userId"))
	userEmail = strings.TrimSpace(r.URL.Query().Get("userEmail"))
	return userID, userEmail, userID != "" && userEmail != ""
}

// ServeSSE открывает поток text/event-stream и держит его до отключения клиента.
func (m *Manager) ServeSSE(w http.ResponseWriter, r *http.Request) {
	userID, userEmail, ok := StreamParams(r)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "userId and userEmail are required"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	conn := newSSEConn(w)
	hello, _ := json.Marshal(Event{Type: "connected", Data: map[string]string{"userId": userID}, Timestamp: m.now().UTC()})
	if err := conn.Send(hello); err != nil {
		m.logger.Debug("sse handshake failed", zap.Error(err))
		return
	}

	id := m.Register(conn, userID, userEmail)
	defer m.Unregister(id)

	select {
	case <-r.Context().Done():
	case <-conn.closed:
	case <-m.done:
	}
}

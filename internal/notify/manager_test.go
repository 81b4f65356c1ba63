package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	mu      sync.Mutex
	sent    [][]byte
	pings   int
	sendErr error
	pingErr error
	closed  bool
}

func (c *fakeConn) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, p)
	return nil
}

func (c *fakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return c.pingErr
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

func TestPublishWithoutConnections(t *testing.T) {
	m := NewManager(zap.NewNop())

	assert.False(t, m.Publish("nobody@example.com", "new-shipment", map[string]string{"id": "1"}))
}

func TestPublishMatchesEmailCaseInsensitive(t *testing.T) {
	m := NewManager(zap.NewNop())
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	driver := &fakeConn{}
	other := &fakeConn{}
	m.Register(driver, "u1", "Driver@Example.com")
	m.Register(other, "u2", "cashier@example.com")

	ok := m.Publish("driver@example.com", "status-update", map[string]string{"status": "in-transit"})
	require.True(t, ok)

	msgs := driver.messages()
	require.Len(t, msgs, 1)
	assert.Empty(t, other.messages())

	var ev struct {
		Type      string            `json:"type"`
		Data      map[string]string `json:"data"`
		Timestamp time.Time         `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(msgs[0], &ev))
	assert.Equal(t, "status-update", ev.Type)
	assert.Equal(t, "in-transit", ev.Data["status"])
	assert.True(t, ev.Timestamp.Equal(fixed))
}

func TestPublishDropsFailedConnection(t *testing.T) {
	m := NewManager(zap.NewNop())
	broken := &fakeConn{sendErr: errors.New("broken pipe")}
	m.Register(broken, "u1", "driver@example.com")

	assert.False(t, m.Publish("driver@example.com", "new-shipment", nil))
	assert.Equal(t, 0, m.Count())
	assert.True(t, broken.closed)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	m := NewManager(zap.NewNop())
	id := m.Register(&fakeConn{}, "u1", "a@example.com")

	m.Unregister(id)
	m.Unregister(id)
	assert.Equal(t, 0, m.Count())
}

func TestHeartbeatPrunesDeadConnections(t *testing.T) {
	m := NewManager(zap.NewNop(), WithHeartbeat(10*time.Millisecond))
	alive := &fakeConn{}
	dead := &fakeConn{pingErr: errors.New("connection reset by peer")}
	m.Register(alive, "u1", "a@example.com")
	m.Register(dead, "u2", "b@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return m.Count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 0, m.Count())
	assert.True(t, alive.closed)
}

func TestServeSSE(t *testing.T) {
	m := NewManager(zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(m.ServeSSE))
	defer srv.Close()

	t.Run("missing params", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "?userId=1")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("stream receives published event", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?userId=1&userEmail=driver@example.com", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		reader := bufio.NewReader(resp.Body)
		first, err := reader.ReadString('\n')
		require.NoError(t, err)
		assert.Contains(t, first, `"type":"connected"`)

		require.Eventually(t, func() bool { return m.Count() == 1 }, time.Second, 5*time.Millisecond)
		require.True(t, m.Publish("driver@example.com", "new-shipment", map[string]string{"toShipId": "42"}))

		var line string
		for !strings.HasPrefix(line, "data: ") || strings.Contains(line, "connected") {
			line, err = reader.ReadString('\n')
			require.NoError(t, err)
		}
		assert.Contains(t, line, `"type":"new-shipment"`)

		cancel()
		require.Eventually(t, func() bool { return m.Count() == 0 }, time.Second, 5*time.Millisecond)
	})
}

func TestWebSocket(t *testing.T) {
	m := NewManager(zap.NewNop())
	srv := httptest.NewServer(NewWSHandler(m, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?userId=1&userEmail=driver@example.com"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return m.Count() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, m.Publish("driver@example.com", "status-update", map[string]string{"status": "delivered"}))

	_ = ws.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"status":"delivered"`)

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return m.Count() == 0 }, time.Second, 5*time.Millisecond)
}

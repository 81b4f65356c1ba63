// Package notify реализует доставку событий подключённым клиентам в реальном времени.
package notify

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// DefaultHeartbeat — период проверки соединений.
const DefaultHeartbeat = 30 * time.Second

// Conn — открытое соединение с клиентом.
type Conn interface {
	Send(payload []byte) error
	Ping() error
	Close() error
}

// Event — сообщение, отправляемое клиенту.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type client struct {
	id     string
	userID string
	email  string
	conn   Conn

	mu sync.Mutex
}

func (c *client) send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Send(payload)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Ping()
}

// Manager хранит подключения и рассылает им события по email пользователя.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*client

	heartbeat time.Duration
	logger    *zap.Logger
	now       func() time.Time

	active    prometheus.Gauge
	published *prometheus.CounterVec

	stopOnce sync.Once
	done     chan struct{}
}

// Option настраивает Manager.
type Option func(*Manager)

// WithHeartbeat задаёт период проверки соединений.
func WithHeartbeat(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.heartbeat = d
		}
	}
}

// WithMetrics подключает метрики числа соединений и опубликованных событий.
func WithMetrics(active prometheus.Gauge, published *prometheus.CounterVec) Option {
	return func(m *Manager) {
		m.active = active
		m.published = published
	}
}

// NewManager создаёт менеджер соединений.
func NewManager(logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		clients:   make(map[string]*client),
		heartbeat: DefaultHeartbeat,
		logger:    logger,
		now:       time.Now,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register добавляет соединение и возвращает его идентификатор.
func (m *Manager) Register(conn Conn, userID, userEmail string) string {
	c := &client{
		id:     uuid.NewString(),
		userID: userID,
		email:  strings.ToLower(strings.TrimSpace(userEmail)),
		conn:   conn,
	}

	m.mu.Lock()
	m.clients[c.id] = c
	n := len(m.clients)
	m.mu.Unlock()

	m.setActive(n)
	m.logger.Debug("notification client registered",
		zap.String("connID", c.id), zap.String("userID", userID), zap.Int("active", n))
	return c.id
}

// Unregister удаляет соединение и закрывает его. Повторный вызов ничего не делает.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	c, ok := m.clients[id]
	delete(m.clients, id)
	n := len(m.clients)
	m.mu.Unlock()

	if !ok {
		return
	}

	_ = c.conn.Close()
	m.setActive(n)
	m.logger.Debug("notification client unregistered", zap.String("connID", id), zap.Int("active", n))
}

// Publish отправляет событие всем соединениям пользователя и сообщает, получило ли его хотя бы одно.
// Событие не ставится в очередь: без активных соединений оно теряется.
func (m *Manager) Publish(userEmail, eventType string, data any) bool {
	payload, err := json.Marshal(Event{Type: eventType, Data: data, Timestamp: m.now().UTC()})
	if err != nil {
		m.logger.Warn("encode notification event", zap.Error(err), zap.String("type", eventType))
		return false
	}

	email := strings.ToLower(strings.TrimSpace(userEmail))

	m.mu.RLock()
	targets := make([]*client, 0, 1)
	for _, c := range m.clients {
		if c.email == email {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()

	delivered := false
	for _, c := range targets {
		if err := c.send(payload); err != nil {
			m.logger.Debug("notification write failed", zap.String("connID", c.id), zap.Error(err))
			m.Unregister(c.id)
			continue
		}
		delivered = true
	}

	if m.published != nil {
		if delivered {
			m.published.WithLabelValues("true").Inc()
		} else {
			m.published.WithLabelValues("false").Inc()
		}
	}
	return delivered
}

// Count возвращает число активных соединений.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Start запускает проверку соединений и блокируется до отмены ctx или вызова Stop.
func (m *Manager) Start(ctx context.Context) error {
	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return nil
		case <-m.done:
			return nil
		case <-ticker.C:
			m.beat()
		}
	}
}

func (m *Manager) beat() {
	m.mu.RLock()
	all := make([]*client, 0, len(m.clients))
	for _, c := range m.clients {
		all = append(all, c)
	}
	m.mu.RUnlock()

	for _, c := range all {
		if err := c.ping(); err != nil {
			m.Unregister(c.id)
		}
	}
}

// Stop закрывает все соединения и останавливает проверку.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)

		m.mu.Lock()
		all := m.clients
		m.clients = make(map[string]*client)
		m.mu.Unlock()

		for _, c := range all {
			_ = c.conn.Close()
		}
		m.setActive(0)
	})
}

func (m *Manager) setActive(n int) {
	if m.active != nil {
		m.active.Set(float64(n))
	}
}

// Package push предоставляет клиент отправки мобильных push-уведомлений через FCM.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// DefaultEndpoint — адрес HTTP API отправки сообщений FCM.
const DefaultEndpoint = "https://fcm.googleapis.com/fcm/send"

// ErrNotConfigured возвращается, если ключ сервера не задан.
var ErrNotConfigured = errors.New("push client not configured")

// Message описывает одно push-уведомление.
type Message struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// Client инкапсулирует HTTP-взаимодействие с FCM.
type Client struct {
	endpoint   string
	serverKey  string
	httpClient *retryablehttp.Client
}

type fcmRequest struct {
	To           string            `json:"to"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

// NewClient создаёт клиент FCM. Пустой endpoint заменяется на DefaultEndpoint.
func NewClient(endpoint, serverKey string, logger *zap.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	if logger != nil {
		rc.Logger = LeveledLogger{logger.Sugar()}
	} else {
		rc.Logger = nil
	}

	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		serverKey:  serverKey,
		httpClient: rc,
	}
}

// Send отправляет уведомление на устройство с указанным токеном.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if c == nil || c.serverKey == "" {
		return ErrNotConfigured
	}
	if msg.Token == "" {
		return errors.New("empty device token")
	}

	payload, err := json.Marshal(fcmRequest{
		To:           msg.Token,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.serverKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status: %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result fcmResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if result.Failure > 0 {
		reason := "unknown"
		if len(result.Results) > 0 && result.Results[0].Error != "" {
			reason = result.Results[0].Error
		}
		return fmt.Errorf("delivery failed: %s", reason)
	}

	return nil
}

// LeveledLogger адаптирует zap к интерфейсу логгера retryablehttp.
type LeveledLogger struct {
	*zap.SugaredLogger
}

func (l LeveledLogger) Error(msg string, kv ...any) { l.Errorw(msg, kv...) }
func (l LeveledLogger) Warn(msg string, kv ...any)  { l.Warnw(msg, kv...) }
func (l LeveledLogger) Info(msg string, kv ...any)  { l.Infow(msg, kv...) }
func (l LeveledLogger) Debug(msg string, kv ...any) { l.Debugw(msg, kv...) }

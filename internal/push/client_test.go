package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestSend_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "key=secret" {
			t.Fatalf("authorization = %q, want key=secret", got)
		}

		var req fcmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.To != "device-1" || req.Notification.Title != "New shipment" {
			t.Fatalf("unexpected request: %+v", req)
		}
		if req.Data["toShipId"] != "abc" {
			t.Fatalf("unexpected data: %v", req.Data)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":1,"failure":0,"results":[{"message_id":"m1"}]}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "secret", nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := client.Send(ctx, Message{
		Token: "device-1",
		Title: "New shipment",
		Body:  "Rice x2",
		Data:  map[string]string{"toShipId": "abc"},
	})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
}

func TestSend_DeliveryFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":0,"failure":1,"results":[{"error":"NotRegistered"}]}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "secret", nil)

	err := client.Send(context.Background(), Message{Token: "stale"})
	if err == nil {
		t.Fatalf("expected error for failed delivery")
	}
}

func TestSend_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"success":1,"failure":0}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "secret", nil)

	if err := client.Send(context.Background(), Message{Token: "device-1"}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestSend_NotConfigured(t *testing.T) {
	client := NewClient("", "", nil)

	err := client.Send(context.Background(), Message{Token: "device-1"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}

	var nilClient *Client
	if err := nilClient.Send(context.Background(), Message{Token: "device-1"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("nil client err = %v, want ErrNotConfigured", err)
	}
}

//go:build integration

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// Integration tests against a real broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func connectTest(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = clientID

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIntegration_Connect(t *testing.T) {
	client := connectTest(t, "arylic-int-connect")

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19998

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_CloseDisconnects(t *testing.T) {
	client := connectTest(t, "arylic-int-close")

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.Publish("arylic/state/a/b", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after Close error = %v", err)
	}
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	client := connectTest(t, "arylic-int-sub-track")

	topics := []string{
		"arylic/cmd/kitchen/play",
		"arylic/cmd/kitchen/pause",
		"arylic/cmd/+/+",
	}
	handler := func(string, []byte) error { return nil }

	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if client.SubscriptionCount() != len(topics) {
		t.Errorf("SubscriptionCount() = %d, want %d", client.SubscriptionCount(), len(topics))
	}

	if err := client.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(topics[0]) {
		t.Errorf("HasSubscription(%s) = true after unsubscribe", topics[0])
	}
}

func TestIntegration_WildcardRoundtrip(t *testing.T) {
	pub := connectTest(t, "arylic-int-pub")
	sub := connectTest(t, "arylic-int-sub")

	var mu sync.Mutex
	got := make(map[string]string)
	err := sub.Subscribe(sub.Topics().AllCommands(), 1, func(topic string, payload []byte) error {
		mu.Lock()
		got[topic] = string(payload)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	sent := map[string]string{
		"arylic/cmd/kitchen/volume": "35",
		"arylic/cmd/bureau/play":    "",
	}
	for topic, payload := range sent {
		if err := pub.PublishString(topic, payload, 1, false); err != nil {
			t.Fatalf("Publish(%s) error = %v", topic, err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == len(sent) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	for topic, payload := range sent {
		if got[topic] != payload {
			t.Errorf("received %s = %q, want %q", topic, got[topic], payload)
		}
	}
}

func TestIntegration_OnlineStatusRetained(t *testing.T) {
	connectTest(t, "arylic-int-status")
	watcher := connectTest(t, "arylic-int-status-watch")

	received := make(chan StatusMessage, 4)
	err := watcher.Subscribe(watcher.Topics().BridgeStatus(), 1, func(_ string, payload []byte) error {
		var msg StatusMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return err
		}
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg.Status != StatusOnline {
			t.Errorf("status = %q, want online", msg.Status)
		}
	case <-time.After(5 * time.Second):
		t.Error("no retained status received")
	}
}

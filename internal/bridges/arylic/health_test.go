package arylic

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

type fixedStats ControllerStats

func (s fixedStats) Stats() ControllerStats { return ControllerStats(s) }

func decodeHealth(t *testing.T, p mockPublish) HealthMessage {
	t.Helper()
	var msg HealthMessage
	if err := json.Unmarshal(p.Payload, &msg); err != nil {
		t.Fatalf("health payload: %v", err)
	}
	return msg
}

func TestHealthReporterPublishNow(t *testing.T) {
	mqtt := NewMockMQTTClient()
	h := NewHealthReporter(HealthReporterConfig{
		BridgeID:  "arylic-01",
		Version:   "1.0.0",
		Publisher: mqtt,
		Stats:     fixedStats{Connected: 2, Discovered: 3, Handshakes: 5},
	})

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	pubs := mqtt.GetPublished()
	if len(pubs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pubs))
	}
	if pubs[0].Topic != "arylic/health" || !pubs[0].Retained || pubs[0].QoS != 1 {
		t.Errorf("publish = %s qos=%d retained=%v", pubs[0].Topic, pubs[0].QoS, pubs[0].Retained)
	}

	msg := decodeHealth(t, pubs[0])
	if msg.Status != HealthHealthy || msg.Bridge != "arylic-01" || msg.Version != "1.0.0" {
		t.Errorf("msg = %+v", msg)
	}
	if msg.Devices == nil || msg.Devices.Connected != 2 || msg.Devices.Discovered != 3 || msg.Devices.Handshakes != 5 {
		t.Errorf("devices = %+v", msg.Devices)
	}
}

func TestHealthReporterDegradedWhenDisconnected(t *testing.T) {
	mqtt := NewMockMQTTClient()
	mqtt.connected = false
	h := NewHealthReporter(HealthReporterConfig{Publisher: mqtt})

	snap := h.Snapshot()
	if snap.Status != HealthDegraded || snap.Reason != "MQTT disconnected" {
		t.Errorf("Snapshot() = %+v", snap)
	}
}

func TestHealthReporterLifecycle(t *testing.T) {
	mqtt := NewMockMQTTClient()
	h := NewHealthReporter(HealthReporterConfig{Publisher: mqtt, Interval: 10 * time.Millisecond})

	if err := h.PublishStarting(); err != nil {
		t.Fatalf("PublishStarting() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx)

	waitFor(t, "periodic health reports", func() bool { return len(mqtt.GetPublished()) >= 3 })

	h.Stop()
	h.Stop()

	pubs := mqtt.GetPublished()
	if first := decodeHealth(t, pubs[0]); first.Status != HealthStarting {
		t.Errorf("first status = %s, want starting", first.Status)
	}
	if last := decodeHealth(t, pubs[len(pubs)-1]); last.Status != HealthStopping {
		t.Errorf("last status = %s, want stopping", last.Status)
	}
}

func TestHealthReporterWithoutPublisher(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{})
	if err := h.PublishNow(); err != nil {
		t.Errorf("PublishNow() error = %v", err)
	}
}

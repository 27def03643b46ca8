package cosy

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/joshp123/geocosy/internal/config"
)

type publishedMessage struct {
	topic    string
	retained bool
	payload  string
}

type recordingPublisher struct {
	messages []publishedMessage
}

func (p *recordingPublisher) publish(topic string, retained bool, payload []byte) error {
	p.messages = append(p.messages, publishedMessage{topic: topic, retained: retained, payload: string(payload)})
	return nil
}

func newTestBridge(t *testing.T, fake *fakeCosy) *Bridge {
	t.Helper()
	bridge := NewBridge(BridgeConfig{TopicPrefix: "home"}, newTestController(t, fake, nil), nil)
	if _, err := bridge.resolveUniqueID(context.Background()); err != nil {
		t.Fatalf("resolveUniqueID: %v", err)
	}
	return bridge
}

func TestBridgeConfigFromSettings(t *testing.T) {
	if _, ok := BridgeConfigFromSettings(config.MQTTConfig{}); ok {
		t.Fatalf("expected bridge to be disabled without broker")
	}

	cfg, ok := BridgeConfigFromSettings(config.MQTTConfig{Broker: "tcp://localhost:1883", TopicPrefix: "/geocosy/", PollSeconds: 30})
	if !ok {
		t.Fatalf("expected bridge to be enabled")
	}
	if cfg.TopicPrefix != "geocosy" || cfg.PollInterval != 30*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.ClientID == "" {
		t.Fatalf("expected generated client id")
	}
}

func TestBridgePublishState(t *testing.T) {
	fake := newFakeCosy(t)
	bridge := newTestBridge(t, fake)
	pub := &recordingPublisher{}

	if err := bridge.publishState(context.Background(), pub); err != nil {
		t.Fatalf("publishState: %v", err)
	}
	if len(pub.messages) != 2 {
		t.Fatalf("expected state and availability, got %+v", pub.messages)
	}

	state := pub.messages[0]
	if state.topic != "home/cosy_thermostat_abc/state" || !state.retained {
		t.Fatalf("unexpected state message %+v", state)
	}
	var payload struct {
		Preset    Preset             `json:"preset"`
		Setpoints map[Preset]float64 `json:"setpoints"`
	}
	if err := json.Unmarshal([]byte(state.payload), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Preset != PresetSlumber || payload.Setpoints[PresetComfy] != 19 {
		t.Fatalf("unexpected payload %s", state.payload)
	}

	if pub.messages[1].topic != "home/cosy_thermostat_abc/availability" || pub.messages[1].payload != "online" {
		t.Fatalf("unexpected availability %+v", pub.messages[1])
	}
}

func TestBridgeCommands(t *testing.T) {
	fake := newFakeCosy(t)
	bridge := newTestBridge(t, fake)
	ctx := context.Background()

	if err := bridge.handleCommand(ctx, "home/cosy_thermostat_abc/set/preset", []byte("comfy")); err != nil {
		t.Fatalf("preset command: %v", err)
	}
	if fake.mode != 2 {
		t.Fatalf("expected comfy mode, got %d", fake.mode)
	}

	if err := bridge.handleCommand(ctx, "home/cosy_thermostat_abc/set/temperature/cosy", []byte(" 22.5 ")); err != nil {
		t.Fatalf("temperature command: %v", err)
	}
	if fake.setpoints["cosyTemperature"] != 22.5 {
		t.Fatalf("expected cosy setpoint 22.5, got %v", fake.setpoints["cosyTemperature"])
	}

	if err := bridge.handleCommand(ctx, "home/cosy_thermostat_abc/set/hibernate", []byte("ON")); err != nil {
		t.Fatalf("hibernate command: %v", err)
	}
	if fake.mode != 0 {
		t.Fatalf("expected hibernate mode, got %d", fake.mode)
	}
}

func TestBridgeRejectsBadCommands(t *testing.T) {
	fake := newFakeCosy(t)
	bridge := newTestBridge(t, fake)
	fake.reset()
	ctx := context.Background()

	cases := []struct {
		topic   string
		payload string
	}{
		{"home/cosy_thermostat_abc/set/preset", "boost"},
		{"home/cosy_thermostat_abc/set/temperature/comfy", "warm"},
		{"home/cosy_thermostat_abc/set/temperature/comfy", "NaN"},
		{"home/cosy_thermostat_abc/set/temperature/comfy", "+Inf"},
		{"home/cosy_thermostat_abc/set/temperature/unknown", "20"},
		{"home/cosy_thermostat_abc/set/hibernate", "maybe"},
		{"home/cosy_thermostat_abc/set/fan", "on"},
		{"home/other/set/preset", "comfy"},
	}
	for _, tc := range cases {
		if err := bridge.handleCommand(ctx, tc.topic, []byte(tc.payload)); err == nil {
			t.Fatalf("%s %q: expected error", tc.topic, tc.payload)
		}
	}
	if len(fake.recorded()) != 0 {
		t.Fatalf("expected no upstream requests, got %+v", fake.recorded())
	}
}

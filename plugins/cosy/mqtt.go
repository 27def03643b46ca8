package cosy

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/joshp123/geocosy/internal/config"
	"github.com/joshp123/geocosy/internal/logger"
)

const (
	topicState        = "state"
	topicAvailability = "availability"
	topicSet          = "set"

	commandTimeout = 30 * time.Second
)

// BridgeConfig configures the MQTT bridge.
type BridgeConfig struct {
	Broker       string
	Username     string
	Password     string
	ClientID     string
	TopicPrefix  string
	PollInterval time.Duration
}

// BridgeConfigFromSettings maps the mqtt config section. ok is false when no
// broker is configured.
func BridgeConfigFromSettings(cfg config.MQTTConfig) (BridgeConfig, bool) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return BridgeConfig{}, false
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "geocosy-" + uuid.NewString()[:8]
	}
	return BridgeConfig{
		Broker:       strings.TrimSpace(cfg.Broker),
		Username:     cfg.Username,
		Password:     cfg.Password,
		ClientID:     clientID,
		TopicPrefix:  strings.Trim(cfg.TopicPrefix, "/"),
		PollInterval: time.Duration(cfg.PollSeconds) * time.Second,
	}, true
}

// publisher is the slice of an MQTT session the bridge writes through.
type publisher interface {
	publish(topic string, retained bool, payload []byte) error
}

type pahoPublisher struct {
	client mqtt.Client
}

func (p pahoPublisher) publish(topic string, retained bool, payload []byte) error {
	if token := p.client.Publish(topic, 1, retained, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// statePayload is the retained state message.
type statePayload struct {
	State
	Setpoints map[Preset]float64 `json:"setpoints,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Bridge publishes thermostat state to MQTT and applies commands received on
// the set topics.
type Bridge struct {
	cfg        BridgeConfig
	controller *Controller
	log        *logger.Logger

	mu       sync.Mutex
	uniqueID string
}

func NewBridge(cfg BridgeConfig, controller *Controller, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.DefaultMQTTPollSeconds * time.Second
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = config.DefaultMQTTTopicPrefix
	}
	return &Bridge{cfg: cfg, controller: controller, log: log.Named("mqtt")}
}

// Run connects to the broker and polls until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.cfg.Broker)
	opts.SetUsername(b.cfg.Username)
	opts.SetPassword(b.cfg.Password)
	opts.SetClientID(b.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetOrderMatters(false)
	opts.OnConnect = func(client mqtt.Client) {
		b.log.Infow("mqtt connected", "broker", b.cfg.Broker)
		if err := b.subscribe(ctx, client); err != nil {
			b.log.Warnw("mqtt subscribe failed", "err", err)
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		b.log.Warnw("mqtt connection lost", "err", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("mqtt connect %s: %w", b.cfg.Broker, token.Error())
		}
	case <-ctx.Done():
		client.Disconnect(0)
		return nil
	}
	pub := pahoPublisher{client: client}
	defer func() {
		if uniqueID := b.currentUniqueID(); uniqueID != "" {
			_ = pub.publish(b.topic(uniqueID, topicAvailability), true, []byte("offline"))
		}
		client.Disconnect(250)
	}()

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if b.currentUniqueID() == "" {
			if err := b.subscribe(ctx, client); err != nil {
				b.log.Warnw("mqtt subscribe failed", "err", err)
			}
		}
		if err := b.publishState(ctx, pub); err != nil {
			b.log.Warnw("mqtt state publish failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// subscribe resolves the thermostat id and subscribes to its set topics.
func (b *Bridge) subscribe(ctx context.Context, client mqtt.Client) error {
	if !client.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	uniqueID, err := b.resolveUniqueID(ctx)
	if err != nil {
		return err
	}

	pub := pahoPublisher{client: client}
	filter := b.topic(uniqueID, topicSet) + "/#"
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		if err := b.handleCommand(cmdCtx, msg.Topic(), msg.Payload()); err != nil {
			b.log.Warnw("mqtt command failed", "topic", msg.Topic(), "err", err)
			return
		}
		if err := b.publishState(cmdCtx, pub); err != nil {
			b.log.Warnw("mqtt state publish failed", "err", err)
		}
	}
	if token := client.Subscribe(filter, 1, handler); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	b.log.Infow("mqtt subscribed", "topic", filter)
	return nil
}

func (b *Bridge) resolveUniqueID(ctx context.Context) (string, error) {
	if uniqueID := b.currentUniqueID(); uniqueID != "" {
		return uniqueID, nil
	}
	if err := b.controller.Connect(ctx); err != nil {
		return "", err
	}
	uniqueID, err := b.controller.Client().UniqueID()
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.uniqueID = uniqueID
	b.mu.Unlock()
	return uniqueID, nil
}

func (b *Bridge) currentUniqueID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uniqueID
}

// publishState publishes the retained state document and availability.
func (b *Bridge) publishState(ctx context.Context, pub publisher) error {
	state, err := b.controller.State(ctx)
	if err != nil {
		if uniqueID := b.currentUniqueID(); uniqueID != "" {
			_ = pub.publish(b.topic(uniqueID, topicAvailability), true, []byte("offline"))
		}
		return err
	}

	payload := statePayload{State: state, UpdatedAt: time.Now().UTC()}
	if setpoints, err := b.controller.Setpoints(ctx); err == nil {
		payload.Setpoints = setpoints.ByPreset()
	} else {
		b.log.Debugw("mqtt setpoints unavailable", "err", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := pub.publish(b.topic(state.UniqueID, topicState), true, data); err != nil {
		return err
	}
	return pub.publish(b.topic(state.UniqueID, topicAvailability), true, []byte("online"))
}

// handleCommand applies one message from a set topic:
//
//	<prefix>/<id>/set/preset                 comfy
//	<prefix>/<id>/set/temperature/<preset>   20.5
//	<prefix>/<id>/set/hibernate              true
func (b *Bridge) handleCommand(ctx context.Context, topic string, payload []byte) error {
	uniqueID := b.currentUniqueID()
	if uniqueID == "" {
		return NotReadyError{What: "unique id"}
	}
	base := b.topic(uniqueID, topicSet) + "/"
	if !strings.HasPrefix(topic, base) {
		return fmt.Errorf("topic %q is not a command topic", topic)
	}
	parts := strings.Split(strings.TrimPrefix(topic, base), "/")
	value := strings.TrimSpace(string(payload))

	switch {
	case len(parts) == 1 && parts[0] == "preset":
		preset, err := ParsePreset(value)
		if err != nil {
			return err
		}
		return b.controller.ActivatePreset(ctx, preset)
	case len(parts) == 2 && parts[0] == "temperature":
		preset, err := ParsePreset(parts[1])
		if err != nil {
			return err
		}
		celsius, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("temperature payload %q: %w", value, err)
		}
		return b.controller.SetTargetTemperature(ctx, preset, celsius)
	case len(parts) == 1 && parts[0] == "hibernate":
		enabled, err := parseSwitch(value)
		if err != nil {
			return err
		}
		return b.controller.SetHibernate(ctx, enabled)
	default:
		return fmt.Errorf("unknown command topic %q", topic)
	}
}

func (b *Bridge) topic(uniqueID string, parts ...string) string {
	return strings.Join(append([]string{b.cfg.TopicPrefix, uniqueID}, parts...), "/")
}

func parseSwitch(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "true", "on", "1":
		return true, nil
	case "false", "off", "0":
		return false, nil
	default:
		return false, fmt.Errorf("switch payload %q is not one of true, false, on, off", value)
	}
}

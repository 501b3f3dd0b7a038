package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"ratatoskr/pkg/logx"
)

const (
	mqttQoS            = 1 // at-least-once, both directions
	mqttKeepAlive      = 5 * time.Second
	mqttPublishTimeout = 5 * time.Second
)

// MQTTConfig configures the MQTT backend.
type MQTTConfig struct {
	BrokerURL   string // e.g. tcp://localhost:1883
	ClientID    string
	InTopic     string
	OutTopic    string
	StatusTopic string
}

// MQTT holds one long-lived connection. Incoming publishes are fanned
// out locally so every Subscribe caller sees every message.
//
// There is no automatic reconnect: when the connection drops, all
// subscriber streams end permanently and the process is expected to
// restart. Supervision belongs outside the broker.
type MQTT struct {
	cfg    MQTTConfig
	log    logx.Logger
	client mqtt.Client
	fan    *fanout

	subOnce sync.Once
	subErr  error
}

// NewMQTT connects to the broker. A connection failure is fatal.
func NewMQTT(cfg MQTTConfig, log logx.Logger) (*MQTT, error) {
	m := &MQTT{
		cfg: cfg,
		log: log.With(logx.String("broker", "mqtt")),
		fan: newFanout(),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetKeepAlive(mqttKeepAlive).
		SetAutoReconnect(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			m.log.Error("connection lost, subscriber streams end", logx.Err(err))
			m.fan.closeAll()
		})

	m.client = mqtt.NewClient(opts)
	tok := m.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("%w: mqtt %s: %v", ErrConnect, cfg.BrokerURL, err)
	}
	return m, nil
}

func (m *MQTT) Publish(ctx context.Context, key string, payload []byte) error {
	// MQTT has no partition keys; ordering comes from the single
	// connection.
	_ = key
	return m.publishTo(m.cfg.InTopic, payload)
}

// PublishStatus emits a delivery-status payload. No-op without a
// configured status topic.
func (m *MQTT) PublishStatus(ctx context.Context, key string, payload []byte) error {
	if m.cfg.StatusTopic == "" {
		return nil
	}
	_ = key
	return m.publishTo(m.cfg.StatusTopic, payload)
}

func (m *MQTT) publishTo(topic string, payload []byte) error {
	tok := m.client.Publish(topic, mqttQoS, false, payload)
	if !tok.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("%w: topic %s: publish timeout", ErrPublish, topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: topic %s: %v", ErrPublish, topic, err)
	}
	return nil
}

// Subscribe registers a new receiver on the shared fanout. The first
// call also establishes the transport subscription on the out topic.
func (m *MQTT) Subscribe(ctx context.Context) (<-chan []byte, error) {
	m.subOnce.Do(func() {
		tok := m.client.Subscribe(m.cfg.OutTopic, mqttQoS, func(_ mqtt.Client, msg mqtt.Message) {
			m.fan.publish(msg.Payload())
		})
		tok.Wait()
		if err := tok.Error(); err != nil {
			m.subErr = fmt.Errorf("%w: subscribe %s: %v", ErrConnect, m.cfg.OutTopic, err)
		}
	})
	if m.subErr != nil {
		return nil, m.subErr
	}
	return m.fan.register(0), nil
}

// Close disconnects and ends all subscriber streams.
func (m *MQTT) Close() error {
	m.fan.closeAll()
	m.client.Disconnect(250)
	if n := m.fan.droppedCount(); n > 0 {
		m.log.Warn("messages dropped on slow subscribers", logx.Int64("count", int64(n)))
	}
	return nil
}

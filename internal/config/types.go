package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend names for broker.backend.
const (
	BackendKafka    = "kafka"
	BackendMQTT     = "mqtt"
	BackendPipe     = "pipe"
	BackendUserPipe = "userpipe"
)

// DefaultTopicPrefix is the historical topic namespace; external
// handlers depend on it, so it stays the default.
const DefaultTopicPrefix = "com.sectorflabs.ratatoskr"

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Broker   BrokerConfig   `json:"broker"`
	Users    UsersConfig    `json:"users"`
	Dispatch DispatchConfig `json:"dispatch,omitempty"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
}

type TelegramConfig struct {
	// Token may be omitted in the file and supplied via the
	// TELEGRAM_BOT_TOKEN environment variable instead.
	Token string `json:"token,omitempty"`

	// LongPollTimeout is a Go duration string. Default: "10s".
	LongPollTimeout string `json:"long_poll_timeout,omitempty"`
}

type BrokerConfig struct {
	// Backend: "kafka", "mqtt", "pipe" or "userpipe".
	Backend string `json:"backend"`

	// TopicPrefix names the in/out/status topics:
	// {prefix}.in, {prefix}.out, {prefix}.status.
	TopicPrefix string `json:"topic_prefix,omitempty"`

	Kafka KafkaConfig `json:"kafka,omitempty"`
	MQTT  MQTTConfig  `json:"mqtt,omitempty"`
	Pipe  PipeConfig  `json:"pipe,omitempty"`
}

type KafkaConfig struct {
	Brokers []string `json:"brokers,omitempty"` // default: localhost:9092
	GroupID string   `json:"group_id,omitempty"`
}

type MQTTConfig struct {
	URL      string `json:"url,omitempty"` // default: tcp://localhost:1883
	ClientID string `json:"client_id,omitempty"`
}

type PipeConfig struct {
	// Path of the named pipe carrying handler responses.
	Path string `json:"path,omitempty"`
}

type UsersConfig struct {
	Driver string `json:"driver,omitempty"` // "yaml" (default) or "sqlite"
	Path   string `json:"path,omitempty"`
	// Watch reloads the list when the file changes (yaml driver only).
	Watch bool `json:"watch,omitempty"`
}

type DispatchConfig struct {
	// RatePerSec paces outbound platform calls. Default: 25.
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// StatusEvents enables best-effort delivery reports on the
	// status topic.
	StatusEvents bool `json:"status_events,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console *bool         `json:"console,omitempty"` // default true
	File    FileLogConfig `json:"file,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// ApplyDefaults fills omitted fields in place.
func (c *Config) ApplyDefaults() {
	if c.Broker.TopicPrefix == "" {
		c.Broker.TopicPrefix = DefaultTopicPrefix
	}
	if len(c.Broker.Kafka.Brokers) == 0 {
		c.Broker.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Broker.Kafka.GroupID == "" {
		c.Broker.Kafka.GroupID = "ratatoskr-broker"
	}
	if c.Broker.MQTT.URL == "" {
		c.Broker.MQTT.URL = "tcp://localhost:1883"
	}
	if c.Broker.MQTT.ClientID == "" {
		c.Broker.MQTT.ClientID = "ratatoskr-bot"
	}
	if c.Users.Driver == "" {
		c.Users.Driver = "yaml"
	}
	if c.Users.Path == "" {
		c.Users.Path = "/etc/ratatoskr/users.yaml"
	}
	if c.Dispatch.RatePerSec <= 0 {
		c.Dispatch.RatePerSec = 25
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects configurations the process cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required (or set TELEGRAM_BOT_TOKEN)")
	}
	switch c.Broker.Backend {
	case BackendKafka, BackendMQTT, BackendUserPipe:
	case BackendPipe:
		if strings.TrimSpace(c.Broker.Pipe.Path) == "" {
			return errors.New("broker.pipe.path is required for the pipe backend")
		}
	default:
		return fmt.Errorf("broker.backend must be one of kafka, mqtt, pipe, userpipe (got %q)", c.Broker.Backend)
	}
	if _, err := c.LongPollTimeout(); err != nil {
		return err
	}
	return nil
}

// Topic names derived from the prefix.

func (c *Config) InTopic() string     { return c.Broker.TopicPrefix + ".in" }
func (c *Config) OutTopic() string    { return c.Broker.TopicPrefix + ".out" }
func (c *Config) StatusTopic() string { return c.Broker.TopicPrefix + ".status" }

// LongPollTimeout parses telegram.long_poll_timeout, defaulting to 10s.
func (c *Config) LongPollTimeout() (time.Duration, error) {
	return parseDurationOrDefault("telegram.long_poll_timeout", c.Telegram.LongPollTimeout, 10*time.Second)
}

// ConsoleLogging reports whether console output is enabled (default on).
func (c *Config) ConsoleLogging() bool {
	return c.Logging.Console == nil || *c.Logging.Console
}

func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

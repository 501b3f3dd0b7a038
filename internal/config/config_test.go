package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseYAML(t *testing.T) {
	t.Parallel()
	raw := []byte(`
telegram:
  token: "123:abc"
  long_poll_timeout: 30s
broker:
  backend: kafka
  kafka:
    brokers: [kafka1:9092, kafka2:9092]
users:
  path: /var/lib/ratatoskr/users.yaml
  watch: true
`)
	cfg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Broker.Backend != BackendKafka {
		t.Fatalf("backend = %q", cfg.Broker.Backend)
	}
	if len(cfg.Broker.Kafka.Brokers) != 2 || cfg.Broker.Kafka.Brokers[1] != "kafka2:9092" {
		t.Fatalf("brokers = %v", cfg.Broker.Kafka.Brokers)
	}
	if !cfg.Users.Watch {
		t.Fatal("users.watch not set")
	}
	d, err := cfg.LongPollTimeout()
	if err != nil || d != 30*time.Second {
		t.Fatalf("long poll timeout = %v, %v", d, err)
	}
}

func TestParseJSONPassthrough(t *testing.T) {
	t.Parallel()
	raw := []byte(`{"telegram":{"token":"t"},"broker":{"backend":"mqtt"},"users":{}}`)
	cfg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Broker.Backend != BackendMQTT {
		t.Fatalf("backend = %q", cfg.Broker.Backend)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := Parse([]byte("telegram:\n  token: t\n  tokn: oops\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("want unknown-field error, got %v", err)
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	cfg := &Config{Broker: BrokerConfig{Backend: BackendKafka}}
	cfg.ApplyDefaults()

	if cfg.Broker.TopicPrefix != DefaultTopicPrefix {
		t.Fatalf("prefix = %q", cfg.Broker.TopicPrefix)
	}
	if cfg.InTopic() != "com.sectorflabs.ratatoskr.in" ||
		cfg.OutTopic() != "com.sectorflabs.ratatoskr.out" ||
		cfg.StatusTopic() != "com.sectorflabs.ratatoskr.status" {
		t.Fatalf("topics: %q %q %q", cfg.InTopic(), cfg.OutTopic(), cfg.StatusTopic())
	}
	if got := cfg.Broker.Kafka.Brokers; len(got) != 1 || got[0] != "localhost:9092" {
		t.Fatalf("kafka brokers = %v", got)
	}
	if cfg.Broker.Kafka.GroupID != "ratatoskr-broker" {
		t.Fatalf("group id = %q", cfg.Broker.Kafka.GroupID)
	}
	if cfg.Broker.MQTT.URL != "tcp://localhost:1883" || cfg.Broker.MQTT.ClientID != "ratatoskr-bot" {
		t.Fatalf("mqtt = %+v", cfg.Broker.MQTT)
	}
	if cfg.Dispatch.RatePerSec != 25 {
		t.Fatalf("rate = %d", cfg.Dispatch.RatePerSec)
	}
	if !cfg.ConsoleLogging() {
		t.Fatal("console logging should default on")
	}
	d, err := cfg.LongPollTimeout()
	if err != nil || d != 10*time.Second {
		t.Fatalf("default long poll = %v, %v", d, err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		c := &Config{
			Telegram: TelegramConfig{Token: "t"},
			Broker:   BrokerConfig{Backend: BackendKafka},
		}
		c.ApplyDefaults()
		return c
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	c := base()
	c.Telegram.Token = " "
	if err := c.Validate(); err == nil {
		t.Fatal("missing token accepted")
	}

	c = base()
	c.Broker.Backend = "carrier-pigeon"
	if err := c.Validate(); err == nil {
		t.Fatal("bad backend accepted")
	}

	c = base()
	c.Broker.Backend = BackendPipe
	if err := c.Validate(); err == nil {
		t.Fatal("pipe backend without path accepted")
	}
	c.Broker.Pipe.Path = "/run/ratatoskr/out.pipe"
	if err := c.Validate(); err != nil {
		t.Fatalf("pipe backend with path rejected: %v", err)
	}

	c = base()
	c.Telegram.LongPollTimeout = "not-a-duration"
	if err := c.Validate(); err == nil {
		t.Fatal("bad duration accepted")
	}
}

func TestLoadTokenFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := "broker:\n  backend: userpipe\nusers: {}\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}

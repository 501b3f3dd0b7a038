package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"ratatoskr/pkg/logx"
)

const (
	kafkaWriteTimeout   = 5 * time.Second
	kafkaCommitInterval = time.Second
	kafkaSubscribeBuf   = 32
)

// KafkaConfig configures the Kafka backend.
type KafkaConfig struct {
	Brokers     []string
	GroupID     string
	InTopic     string
	OutTopic    string
	StatusTopic string
}

// Kafka publishes inbound envelopes to the in topic and consumes
// outbound commands from the out topic.
//
// Consumer offsets are committed periodically, not per message, so
// delivery is at-least-once: a crash between receipt and commit causes
// redelivery on restart.
type Kafka struct {
	cfg KafkaConfig
	log logx.Logger

	writer       *kafka.Writer
	statusWriter *kafka.Writer
}

// NewKafka connects to the cluster and idempotently ensures the
// configured topics exist. Topic creation failures other than
// "already exists" are logged and ignored; a cluster with disabled
// topic auto-creation will surface the real problem on first use.
func NewKafka(ctx context.Context, cfg KafkaConfig, log logx.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: no kafka brokers configured", ErrConnect)
	}

	k := &Kafka{
		cfg: cfg,
		log: log.With(logx.String("broker", "kafka")),
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.InTopic,
			Balancer:     &kafka.Hash{},
			WriteTimeout: kafkaWriteTimeout,
		},
	}
	if cfg.StatusTopic != "" {
		k.statusWriter = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.StatusTopic,
			Balancer:     &kafka.Hash{},
			WriteTimeout: kafkaWriteTimeout,
		}
	}

	k.ensureTopics(ctx)
	return k, nil
}

func (k *Kafka) ensureTopics(ctx context.Context) {
	topics := []string{k.cfg.InTopic, k.cfg.OutTopic}
	if k.cfg.StatusTopic != "" {
		topics = append(topics, k.cfg.StatusTopic)
	}

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, t := range topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             t,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
	}

	client := &kafka.Client{Addr: kafka.TCP(k.cfg.Brokers...)}
	resp, err := client.CreateTopics(ctx, &kafka.CreateTopicsRequest{Topics: configs})
	if err != nil {
		k.log.Warn("topic creation request failed", logx.Err(err))
		return
	}
	for topic, terr := range resp.Errors {
		if terr == nil || errors.Is(terr, kafka.TopicAlreadyExists) {
			continue
		}
		k.log.Warn("topic creation failed", logx.String("topic", topic), logx.Err(terr))
	}
}

func (k *Kafka) Publish(ctx context.Context, key string, payload []byte) error {
	return k.write(ctx, k.writer, key, payload)
}

// PublishStatus emits a delivery-status payload onto the status topic.
// No-op when no status topic is configured.
func (k *Kafka) PublishStatus(ctx context.Context, key string, payload []byte) error {
	if k.statusWriter == nil {
		return nil
	}
	return k.write(ctx, k.statusWriter, key, payload)
}

func (k *Kafka) write(ctx context.Context, w *kafka.Writer, key string, payload []byte) error {
	msg := kafka.Message{Value: payload}
	if key != "" {
		msg.Key = []byte(key)
	}
	if err := w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: topic %s: %v", ErrPublish, w.Topic, err)
	}
	return nil
}

// Subscribe starts a fresh consumer on the out topic. The background
// fetch loop forwards into a bounded channel; a slow consumer blocks
// the fetch loop (backpressure) rather than dropping messages.
func (k *Kafka) Subscribe(ctx context.Context) (<-chan []byte, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        k.cfg.Brokers,
		GroupID:        k.cfg.GroupID,
		Topic:          k.cfg.OutTopic,
		CommitInterval: kafkaCommitInterval,
	})

	out := make(chan []byte, kafkaSubscribeBuf)
	go func() {
		defer close(out)
		defer reader.Close()
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, io.EOF) {
					// Reader closed underneath us.
					return
				}
				// Per-message consume errors skip and continue; the
				// short pause keeps a broken partition from spinning.
				k.log.Error("consume error", logx.Err(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}
			select {
			case out <- msg.Value:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close flushes and closes the producers.
func (k *Kafka) Close() error {
	err := k.writer.Close()
	if k.statusWriter != nil {
		if serr := k.statusWriter.Close(); err == nil {
			err = serr
		}
	}
	return err
}

package sink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
)

// KafkaConfig selects the brokers and topic goal records are produced to.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink produces one record per goal, keyed by the goal label so each
// side lands on a stable partition.
type KafkaSink struct {
	w     messageWriter
	topic string
}

func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &KafkaSink{w: w, topic: cfg.Topic}, nil
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Send(ctx context.Context, n domain.Notification) error {
	msg := kafka.Message{
		Key:   []byte(n.Goal.String()),
		Value: []byte(n.Text),
		Time:  n.DetectedAt,
		Headers: []kafka.Header{
			{Key: "seq", Value: []byte(strconv.FormatUint(uint64(n.Seq), 10))},
		},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("produce to %s: %w", k.topic, err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.w.Close()
}

var _ ports.Sink = (*KafkaSink)(nil)

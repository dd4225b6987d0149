package gaskit

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const defaultKafkaTopic = "gaskit.records"
const kafkaWriteTimeout = 5 * time.Second

// KafkaSink publishes emitted records to a Kafka topic, keyed by sensor name
// so every sensor lands on a stable partition.
type KafkaSink struct {
	Brokers []string
	Topic   string

	writer *kafka.Writer
	ready  bool
}

func (ks *KafkaSink) Setup() error {
	if len(ks.Brokers) == 0 {
		return errors.New("kafka brokers not set")
	}
	if len(ks.Topic) == 0 {
		ks.Topic = defaultKafkaTopic
	}

	ks.writer = &kafka.Writer{
		Addr:         kafka.TCP(ks.Brokers...),
		Topic:        ks.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	ks.ready = true

	return nil
}

func (ks *KafkaSink) IsReady() bool {
	return ks.ready
}

func (ks *KafkaSink) Write(sensorName string, payload []byte) error {
	if !ks.ready {
		return errors.New("kafka sink not ready")
	}

	ctx, cancel := context.WithTimeout(context.Background(), kafkaWriteTimeout)
	defer cancel()

	return ks.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(sensorName),
		Value: payload,
	})
}

func (ks *KafkaSink) Close() error {
	ks.ready = false
	if ks.writer == nil {
		return nil
	}

	return ks.writer.Close()
}

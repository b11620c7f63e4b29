package notify

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each event to a single topic keyed by data id.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
	}, nil
}

func (p *KafkaPublisher) Name() string { return "kafka:" + p.topic }

func (p *KafkaPublisher) Publish(ctx context.Context, ev types.Event) error {
	msg, err := kafkaMessage(p.topic, ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func kafkaMessage(topic string, ev types.Event) (kafka.Message, error) {
	payload, err := Encode(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(partitionKey(ev)),
		Value: payload,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "event-kind", Value: []byte(ev.Kind)},
			{Key: "event-hash", Value: []byte(ev.Hash)},
		},
	}, nil
}

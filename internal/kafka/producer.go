package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer defines the interface for Kafka message production
type Producer interface {
	Send(ctx context.Context, topic string, key []byte, value []byte) error
	Close() error
}

// kafkaProducer implements the Producer interface
type kafkaProducer struct {
	writer *kafka.Writer
	mu     sync.Mutex
	closed bool
}

// NewProducer creates a new Kafka producer. The writer carries no default
// topic, every Send names one.
func NewProducer(brokers []string, timeout time.Duration) (Producer, error) {
	if len(brokers) == 0 {
		return nil, ErrInvalidBrokers
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           timeout,
		AllowAutoTopicCreation: true,
	}

	return &kafkaProducer{
		writer: writer,
		closed: false,
	}, nil
}

// Send sends a message to Kafka
func (p *kafkaProducer) Send(ctx context.Context, topic string, key []byte, value []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProducerClosed
	}
	p.mu.Unlock()

	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	})
}

// Close closes the producer
func (p *kafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	return p.writer.Close()
}

// noopProducer drops every message. It backs deployments without brokers.
type noopProducer struct{}

// NewNoopProducer returns a producer that discards messages
func NewNoopProducer() Producer {
	return noopProducer{}
}

func (noopProducer) Send(ctx context.Context, topic string, key []byte, value []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	return nil
}

func (noopProducer) Close() error { return nil }

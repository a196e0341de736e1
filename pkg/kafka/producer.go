package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

type ProducerConfig struct {
	Brokers []string
	Topic   string
	Retries int
	Timeout time.Duration

	RequiredAcks     int
	Compression      string
	IdempotentWrites bool
	MaxMessageBytes  int
}

func NewProducer(cfg ProducerConfig, logger *zap.Logger) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, producerConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	logger.Info("Kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.Bool("idempotent", cfg.IdempotentWrites),
		zap.String("compression", cfg.Compression),
	)

	return NewProducerFromSync(producer, cfg.Topic, logger), nil
}

// NewProducerFromSync wraps an existing sync producer (sarama mocks in tests).
func NewProducerFromSync(producer sarama.SyncProducer, topic string, logger *zap.Logger) *Producer {
	return &Producer{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

func producerConfig(cfg ProducerConfig) *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.Retry.Max = cfg.Retries
	config.Producer.Timeout = cfg.Timeout
	config.Producer.RequiredAcks = sarama.RequiredAcks(cfg.RequiredAcks)
	config.Producer.Idempotent = cfg.IdempotentWrites

	if cfg.IdempotentWrites {
		config.Producer.RequiredAcks = sarama.WaitForAll
		config.Producer.Retry.Max = 5
		config.Net.MaxOpenRequests = 1
	}

	switch cfg.Compression {
	case "snappy":
		config.Producer.Compression = sarama.CompressionSnappy
	case "zstd":
		config.Producer.Compression = sarama.CompressionZSTD
	case "lz4":
		config.Producer.Compression = sarama.CompressionLZ4
	case "gzip":
		config.Producer.Compression = sarama.CompressionGZIP
	default:
		config.Producer.Compression = sarama.CompressionNone
	}

	if cfg.MaxMessageBytes > 0 {
		config.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	}
	// Hashing on the project id keeps every snapshot of a project in one partition.
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V3_3_0_0
	return config
}

// Publish JSON-encodes value and sends it keyed by key. The message type is
// carried in a header so consumers can route without decoding the payload.
func (p *Producer) Publish(ctx context.Context, key, messageType string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	valueBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(valueBytes),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(messageType)},
			{Key: []byte("timestamp"), Value: []byte(time.Now().UTC().Format(time.RFC3339Nano))},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Error("Failed to send message to Kafka",
			zap.Error(err),
			zap.String("topic", p.topic),
			zap.String("key", key),
		)
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.Debug("Message sent to Kafka",
		zap.String("topic", p.topic),
		zap.String("type", messageType),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("key", key),
	)

	return nil
}

func (p *Producer) Close() error {
	err := p.producer.Close()
	if err != nil {
		p.logger.Error("Failed to close Kafka producer", zap.Error(err))
		return fmt.Errorf("failed to close producer: %w", err)
	}
	p.logger.Info("Kafka producer closed")
	return nil
}

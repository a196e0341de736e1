package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProducer_Publish(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var decoded map[string]any
		if err := json.Unmarshal(val, &decoded); err != nil {
			return err
		}
		if decoded["projectId"] != "p-1" {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := NewProducerFromSync(sp, "analytics-snapshots", zap.NewNop())
	err := p.Publish(context.Background(), "p-1", "snapshot.computed", map[string]any{"projectId": "p-1"})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestProducer_PublishFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerFromSync(sp, "analytics-snapshots", zap.NewNop())
	err := p.Publish(context.Background(), "p-1", "snapshot.computed", struct{}{})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestProducer_PublishCancelled(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := NewProducerFromSync(sp, "analytics-snapshots", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Publish(ctx, "p-1", "snapshot.computed", struct{}{}), context.Canceled)
	require.NoError(t, p.Close())
}

func TestProducerConfig(t *testing.T) {
	cfg := producerConfig(ProducerConfig{
		Retries:          1,
		RequiredAcks:     1,
		Compression:      "zstd",
		IdempotentWrites: true,
		MaxMessageBytes:  2048,
	})

	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.Equal(t, 5, cfg.Producer.Retry.Max)
	assert.Equal(t, 1, cfg.Net.MaxOpenRequests)
	assert.Equal(t, sarama.CompressionZSTD, cfg.Producer.Compression)
	assert.Equal(t, 2048, cfg.Producer.MaxMessageBytes)

	plain := producerConfig(ProducerConfig{Compression: "none"})
	assert.Equal(t, sarama.CompressionNone, plain.Producer.Compression)
	assert.False(t, plain.Producer.Idempotent)
}

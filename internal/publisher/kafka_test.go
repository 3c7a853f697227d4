package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StageSentinel/internal/model"
)

func TestKafkaPublisher_PublishBatch(t *testing.T) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, config)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev model.BatchEvent
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.BatchKey != 28488510 || ev.StageLabel != "2단계" || len(ev.Alerts) != 2 {
			return errors.New("unexpected event payload")
		}
		return nil
	})

	p := NewKafkaPublisherWithProducer(producer, "")
	assert.Equal(t, DefaultTopic, p.topic)
	err := p.PublishBatch(context.Background(), model.BatchEvent{
		BatchKey:   28488510,
		StageLabel: "2단계",
		RSI:        34.1,
		Alerts:     []model.Alert{{ID: 1, Symbol: "A"}, {ID: 2, Symbol: "B"}},
		SentAt:     time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_PropagatesFailure(t *testing.T) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, config)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisherWithProducer(producer, "alerts")
	err := p.PublishBatch(context.Background(), model.BatchEvent{BatchKey: 1})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestNoopPublisher(t *testing.T) {
	var p NoopPublisher
	assert.NoError(t, p.PublishBatch(context.Background(), model.BatchEvent{}))
	assert.NoError(t, p.Close())
}

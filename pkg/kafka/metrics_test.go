package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_RecordsOutcomeAndLatency(t *testing.T) {
	topic := Topic("metrics", "outcomes")
	event, err := NewEvent("e", "1", "user", "account-service", struct{}{})
	require.NoError(t, err)

	ok := NewProducerWithWriter(&fakeWriter{}, nil, testLogger())
	require.NoError(t, ok.Publish(context.Background(), topic, event))
	require.NoError(t, ok.Publish(context.Background(), topic, event))

	failing := NewProducerWithWriter(&fakeWriter{err: errors.New("leader not available")}, nil, testLogger())
	require.Error(t, failing.Publish(context.Background(), topic, event))

	assert.Equal(t, 2.0, testutil.ToFloat64(producerMessages.WithLabelValues(topic, outcomeDelivered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(producerMessages.WithLabelValues(topic, outcomeFailed)))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(producerWriteSeconds, "kafka_producer_write_seconds"), 1)
}

func TestPublish_MarshalFailureRecordsNothing(t *testing.T) {
	topic := Topic("metrics", "unmarshalable")
	event := &Event{EventID: "e", Data: []byte("{not json")}

	p := NewProducerWithWriter(&fakeWriter{}, nil, testLogger())
	require.Error(t, p.Publish(context.Background(), topic, event))

	assert.Equal(t, 0.0, testutil.ToFloat64(producerMessages.WithLabelValues(topic, outcomeDelivered)))
	assert.Equal(t, 0.0, testutil.ToFloat64(producerMessages.WithLabelValues(topic, outcomeFailed)))
}

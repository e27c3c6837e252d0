package export

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"lobsim/engine"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

var sampleTrades = []engine.Trade{
	{Timestamp: 3, Qty: 10, Price: 101.25, Side: engine.Bid, BuyOrderID: "3-b1", SellOrderID: "2-a1"},
	{Timestamp: 4, Qty: 2, Price: 101, Side: engine.Ask, BuyOrderID: "1-b2", SellOrderID: "4-a1"},
}

func TestPublishEncodesTradesInOrder(t *testing.T) {
	w := &fakeWriter{}
	sink := newKafkaSink(w, "run-1", zaptest.NewLogger(t))

	require.NoError(t, sink.Publish(context.Background(), "batch-7", sampleTrades))
	require.Len(t, w.msgs, 2)

	for i, msg := range w.msgs {
		assert.Equal(t, "batch-7", string(msg.Key))
		var got TradeMessage
		require.NoError(t, json.Unmarshal(msg.Value, &got))
		assert.Equal(t, TradeMessage{RunID: "run-1", BatchID: "batch-7", Seq: i, Trade: sampleTrades[i]}, got)
	}
	assert.Contains(t, string(w.msgs[1].Value), `"side":"ask"`)

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestPublishSkipsEmptyBatches(t *testing.T) {
	w := &fakeWriter{err: errors.New("must not be called")}
	sink := newKafkaSink(w, "", zaptest.NewLogger(t))
	assert.NoError(t, sink.Publish(context.Background(), "b", nil))
}

func TestPublishWrapsWriterErrors(t *testing.T) {
	boom := errors.New("leader not available")
	sink := newKafkaSink(&fakeWriter{err: boom}, "", zaptest.NewLogger(t))
	err := sink.Publish(context.Background(), "b", sampleTrades)
	assert.ErrorIs(t, err, boom)
}

func TestNewKafkaSinkValidates(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{Topic: "trades"}, nil)
	assert.ErrorIs(t, err, ErrNoBrokers)
	_, err = NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}}, nil)
	assert.Error(t, err)

	sink, err := NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "trades"}, nil)
	require.NoError(t, err)
	assert.NoError(t, sink.Close())
}

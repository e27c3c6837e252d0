package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"lobsim/engine"
)

// ErrNoBrokers is returned when a sink is built without broker addresses.
var ErrNoBrokers = errors.New("export: no kafka brokers configured")

// TradeMessage is the JSON payload of one exported trade.
type TradeMessage struct {
	RunID   string       `json:"runId,omitempty"`
	BatchID string       `json:"batchId"`
	Seq     int          `json:"seq"`
	Trade   engine.Trade `json:"trade"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes batch trade logs to a Kafka topic, one message per
// trade keyed by batch id so a batch stays on one partition in order.
type KafkaSink struct {
	writer messageWriter
	runID  string
	log    *zap.Logger
}

// KafkaConfig addresses the export topic.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	RunID        string
}

// NewKafkaSink builds a synchronous writer that waits for all in-sync
// replicas.
func NewKafkaSink(cfg KafkaConfig, logger *zap.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("export: empty kafka topic")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: cfg.BatchTimeout,
	}
	return newKafkaSink(w, cfg.RunID, logger), nil
}

func newKafkaSink(w messageWriter, runID string, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{writer: w, runID: runID, log: logger}
}

// Publish writes trades in log order.
func (s *KafkaSink) Publish(ctx context.Context, batchID string, trades []engine.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	msgs, err := encodeTrades(s.runID, batchID, trades)
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("export batch %s: %w", batchID, err)
	}
	s.log.Debug("exported trades", zap.String("batch_id", batchID), zap.Int("count", len(msgs)))
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func encodeTrades(runID, batchID string, trades []engine.Trade) ([]kafka.Message, error) {
	key := []byte(batchID)
	msgs := make([]kafka.Message, len(trades))
	for i, t := range trades {
		value, err := json.Marshal(TradeMessage{RunID: runID, BatchID: batchID, Seq: i, Trade: t})
		if err != nil {
			return nil, fmt.Errorf("encode trade %d of batch %s: %w", i, batchID, err)
		}
		msgs[i] = kafka.Message{Key: key, Value: value}
	}
	return msgs, nil
}

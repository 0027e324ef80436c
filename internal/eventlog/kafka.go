package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes records to one topic keyed by chat id, so a partition
// sees a chat's events in order. The writer is async: Append returns once
// the message is buffered and delivery errors are only logged.
type KafkaSink struct {
	w      messageWriter
	logger *zap.Logger
}

func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Warn("event log write failed", zap.Int("messages", len(msgs)), zap.Error(err))
			}
		},
	}
	return &KafkaSink{w: w, logger: logger}
}

func (s *KafkaSink) Append(ctx context.Context, rec Record) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode event record: %w", err)
	}
	err = s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(rec.ChatID, 10)),
		Value: value,
		Time:  rec.At,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(rec.Event)},
		},
	})
	if err != nil {
		return fmt.Errorf("write event record: %w", err)
	}
	return nil
}

// Close flushes buffered messages.
func (s *KafkaSink) Close() error {
	return s.w.Close()
}

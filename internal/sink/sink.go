package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	v1 "rollcall/pkg/api/v1"

	"github.com/segmentio/kafka-go"
)

// Reporter is a fire-and-forget destination for replay failure logs.
type Reporter interface {
	Report(ctx context.Context, rec v1.ErrorLogRecord) error
}

type Nop struct{}

func (Nop) Report(context.Context, v1.ErrorLogRecord) error { return nil }

// messageWriter is the part of kafka.Writer the reporter needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReporter publishes failure logs keyed by submission id, so one
// submission's reports stay on one partition.
type KafkaReporter struct {
	writer messageWriter
}

func NewKafkaReporter(brokers []string, topic string) *KafkaReporter {
	return &KafkaReporter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (k *KafkaReporter) Report(ctx context.Context, rec v1.ErrorLogRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode error log: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(rec.SubmissionID, 10)),
		Value: value,
		Time:  time.Now(),
	})
}

func (k *KafkaReporter) Close() error {
	return k.writer.Close()
}

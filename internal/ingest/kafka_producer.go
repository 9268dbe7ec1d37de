package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/example/surge-dashboard/internal/models"
)

const DefaultTopic = "surge-updates"

var errMissingZone = errors.New("surge record without zone_id")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes surge records keyed by zone, so every record of a
// zone lands on the same partition in order.
type KafkaProducer struct {
	writer  messageWriter
	Timeout time.Duration
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaProducer{writer: w, Timeout: 2 * time.Second}
}

// Record publishes one message per record; it satisfies surge.Sink.
func (k *KafkaProducer) Record(ctx context.Context, recs []models.SurgeRecord) error {
	if len(recs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(recs))
	for _, r := range recs {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode surge %s: %w", r.ZoneID, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(r.ZoneID), Value: b, Time: r.ComputedAt})
	}
	if k.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.Timeout)
		defer cancel()
	}
	return k.writer.WriteMessages(ctx, msgs...)
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// DecodeSurge parses a message produced by KafkaProducer.
func DecodeSurge(value []byte) (models.SurgeRecord, error) {
	var rec models.SurgeRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return rec, err
	}
	if rec.ZoneID == "" {
		return rec, errMissingZone
	}
	return rec, nil
}

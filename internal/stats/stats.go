// README: Driver statistics recompute requests, published to Kafka for the stats worker.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"courier/internal/types"
)

// PeriodToday is the window recomputed after a driver's bundle changes.
const PeriodToday = "today"

// Request is the message body consumed by the stats worker.
type Request struct {
	DriverID    types.ID `json:"driver_id"`
	Period      string   `json:"period"`
	RequestedAt int64    `json:"requested_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type KafkaRecomputer struct {
	w     messageWriter
	topic string
	now   func() time.Time
}

// NewKafkaRecomputer publishes to topic on brokers. Messages are keyed by
// driver so one driver's requests stay ordered within a partition.
func NewKafkaRecomputer(brokers []string, topic string) *KafkaRecomputer {
	return &KafkaRecomputer{
		w: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireOne,
			AllowAutoTopicCreation: true,
		},
		topic: topic,
		now:   time.Now,
	}
}

func (k *KafkaRecomputer) RecomputeForDriver(ctx context.Context, driverID types.ID, period string) error {
	body, err := json.Marshal(Request{DriverID: driverID, Period: period, RequestedAt: k.now().Unix()})
	if err != nil {
		return err
	}
	if err := k.w.WriteMessages(ctx, kafkago.Message{Key: []byte(driverID), Value: body}); err != nil {
		return fmt.Errorf("publish stats recompute to %s: %w", k.topic, err)
	}
	return nil
}

func (k *KafkaRecomputer) Close() error {
	return k.w.Close()
}

// LogRecomputer stands in when no broker is configured.
type LogRecomputer struct {
	Log *slog.Logger
}

func (l LogRecomputer) RecomputeForDriver(_ context.Context, driverID types.ID, period string) error {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("stats recompute requested", "driver_id", driverID, "period", period)
	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"spot-engine/src/engine"
)

type feeMessage struct {
	TradeID    string          `json:"trade_id"`
	Instrument string          `json:"instrument"`
	Payer      string          `json:"payer,omitempty"`
	OrderID    string          `json:"order_id"`
	Notional   decimal.Decimal `json:"notional"`
	Rate       decimal.Decimal `json:"rate"`
	Fee        decimal.Decimal `json:"fee"`
	Timestamp  int64           `json:"timestamp"` // unix timestamp in milliseconds
}

func encode(event engine.FeeEvent) ([]byte, error) {
	return json.Marshal(feeMessage{
		TradeID:    event.TradeID,
		Instrument: event.Instrument,
		Payer:      event.Payer,
		OrderID:    event.OrderID,
		Notional:   event.Notional,
		Rate:       event.Rate,
		Fee:        event.Fee,
		Timestamp:  event.Timestamp.UnixMilli(),
	})
}

// KafkaPublisher writes one message per fee, keyed by instrument so each
// instrument's fees stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchSize:    MaxBatch,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish writes the batch with a single WriteMessages call.
func (p *KafkaPublisher) Publish(ctx context.Context, events []engine.FeeEvent) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := encode(event)
		if err != nil {
			return errors.Wrapf(err, "encode fee for trade %s", event.TradeID)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(event.Instrument),
			Value: value,
		})
	}
	return errors.Wrapf(p.writer.WriteMessages(ctx, msgs...), "write %d fee messages", len(msgs))
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher records fees in the service log when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, events []engine.FeeEvent) error {
	for _, event := range events {
		log.Info().
			Str("trade_id", event.TradeID).
			Str("instrument", event.Instrument).
			Str("payer", event.Payer).
			Str("notional", event.Notional.String()).
			Str("fee", event.Fee.String()).
			Msg("Trade fee")
	}
	return nil
}

func (LogPublisher) Close() error {
	return nil
}

// Package events публикует события магазина во внешнюю шину Kafka.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrNotConfigured возвращается, если список брокеров пуст.
var ErrNotConfigured = errors.New("event publisher not configured")

// Event описывает одно сообщение для публикации.
type Event struct {
	ID        string
	Type      string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// Publisher инкапсулирует запись сообщений в топик Kafka.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher создаёт издателя для указанных брокеров и топика.
func NewPublisher(brokers []string, topic string) *Publisher {
	if len(brokers) == 0 {
		return nil
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// Publish синхронно отправляет пачку событий. Ключ сообщения задаёт партицию,
// поэтому события одного пользователя сохраняют порядок.
func (p *Publisher) Publish(ctx context.Context, events []Event) error {
	if p == nil || p.writer == nil {
		return ErrNotConfigured
	}
	if len(events) == 0 {
		return nil
	}

	if err := p.writer.WriteMessages(ctx, toMessages(events)...); err != nil {
		return fmt.Errorf("write messages: %w", err)
	}
	return nil
}

// Close закрывает соединения с брокерами.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func toMessages(events []Event) []kafka.Message {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.Key),
			Value: e.Payload,
			Time:  e.CreatedAt.UTC(),
			Headers: []kafka.Header{
				{Key: "event-id", Value: []byte(e.ID)},
				{Key: "event-type", Value: []byte(e.Type)},
			},
		})
	}
	return msgs
}

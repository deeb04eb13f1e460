package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bookstore/internal/events"
)

const relayBatchSize = 100

// RunEventRelay периодически переносит события из outbox во внешнюю шину.
// Без издателя возвращается сразу, иначе работает до отмены ctx.
func (s *Service) RunEventRelay(ctx context.Context, interval time.Duration) {
	if s.publisher == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.relayEventBatch(ctx); err != nil {
				s.logger.Warn("event relay failed", zap.Error(err))
			}
		}
	}
}

func (s *Service) relayEventBatch(ctx context.Context) (int, error) {
	pending, err := s.repo.GetPendingEvents(ctx, relayBatchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	batch := make([]events.Event, 0, len(pending))
	ids := make([]int64, 0, len(pending))
	for _, e := range pending {
		batch = append(batch, events.Event{
			ID:        e.EventID,
			Type:      e.EventType,
			Key:       e.Key,
			Payload:   e.Payload,
			CreatedAt: e.CreatedAt,
		})
		ids = append(ids, e.ID)
	}

	if err := s.publisher.Publish(ctx, batch); err != nil {
		return 0, err
	}

	// Доставка at-least-once: при сбое пачка уйдёт повторно.
	if err := s.repo.MarkEventsSent(ctx, ids); err != nil {
		return 0, err
	}

	s.logger.Debug("events relayed", zap.Int("count", len(ids)))
	return len(ids), nil
}

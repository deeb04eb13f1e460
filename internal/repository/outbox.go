package repository

import (
	"context"
	"fmt"
	"time"
)

// OutboxEvent описывает событие, ожидающее отправки во внешнюю шину.
type OutboxEvent struct {
	ID        int64
	EventID   string
	EventType string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// GetPendingEvents возвращает неотправленные события в порядке их записи.
func (r *PostgresRepository) GetPendingEvents(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, event_id, event_type, key, payload, created_at
		 FROM outbox
		 WHERE sent_at IS NULL
		 ORDER BY id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select outbox: %w", err)
	}
	defer rows.Close()

	var res []OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.EventID, &e.EventType, &e.Key, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkEventsSent отмечает события как отправленные.
func (r *PostgresRepository) MarkEventsSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `UPDATE outbox SET sent_at = now() WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

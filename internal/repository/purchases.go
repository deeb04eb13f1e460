package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/bookstore/internal/model"
)

// EventPurchaseCompleted задаёт тип события об оформленной покупке.
const EventPurchaseCompleted = "purchase.completed"

// CreatePurchase списывает остатки по всем позициям корзины и сохраняет покупку в одной транзакции.
// Позиции обрабатываются в порядке корзины, поэтому повторы одной книги списываются накопительно.
// При первой же ошибке транзакция откатывается целиком.
func (r *PostgresRepository) CreatePurchase(ctx context.Context, user model.User, items []model.CartItem, purchasedAt time.Time) (*model.Purchase, error) {
	var purchase *model.Purchase
	err := r.withRetry(ctx, func() error {
		p, err := r.createPurchaseTx(ctx, user, items, purchasedAt)
		if err != nil {
			return err
		}
		purchase = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return purchase, nil
}

func (r *PostgresRepository) createPurchaseTx(ctx context.Context, user model.User, items []model.CartItem, purchasedAt time.Time) (*model.Purchase, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p := &model.Purchase{
		UserID:       user.ID,
		PurchaseDate: purchasedAt,
		Items:        make([]model.PurchaseItem, 0, len(items)),
	}

	for _, it := range items {
		book, err := decrementInventory(ctx, tx, it.BookID, it.Quantity)
		if err != nil {
			return nil, err
		}
		p.Items = append(p.Items, model.NewPurchaseItem(*book, it.Quantity))
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO purchases (user_id, purchase_date) VALUES ($1, $2) RETURNING id`,
		user.ID, purchasedAt,
	).Scan(&p.ID)
	if err != nil {
		return nil, fmt.Errorf("insert purchase: %w", err)
	}

	batch := &pgx.Batch{}
	for i, it := range p.Items {
		batch.Queue(
			`INSERT INTO purchase_items (purchase_id, position, book_id, title, author, isbn, quantity, purchase_price)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.ID, i, it.BookID, it.Title, it.Author, it.ISBN, it.Quantity, it.PurchasePrice,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("insert purchase items: %w", err)
	}

	if r.outbox {
		event := newPurchaseEvent(user.Username, p, items)
		payload, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("marshal purchase event: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO outbox (event_id, event_type, key, payload) VALUES ($1, $2, $3, $4)`,
			event.EventID, EventPurchaseCompleted, user.Username, payload,
		)
		if err != nil {
			return nil, fmt.Errorf("insert outbox event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return p, nil
}

func newPurchaseEvent(username string, p *model.Purchase, items []model.CartItem) model.PurchaseEvent {
	return model.PurchaseEvent{
		EventID:      uuid.NewString(),
		PurchaseID:   p.ID,
		Username:     username,
		PurchaseDate: p.PurchaseDate,
		Total:        p.Total(),
		Items:        items,
	}
}

// GetPurchasesByUser возвращает историю покупок пользователя, новые первыми.
func (r *PostgresRepository) GetPurchasesByUser(ctx context.Context, userID int64) ([]model.Purchase, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.purchase_date,
		        i.book_id, i.title, i.author, i.isbn, i.quantity, i.purchase_price
		 FROM purchases p
		 JOIN purchase_items i ON i.purchase_id = p.id
		 WHERE p.user_id = $1
		 ORDER BY p.purchase_date DESC, p.id DESC, i.position`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select purchases: %w", err)
	}
	defer rows.Close()

	var res []model.Purchase
	for rows.Next() {
		var (
			id           int64
			purchaseDate time.Time
			item         model.PurchaseItem
		)
		if err := rows.Scan(&id, &purchaseDate,
			&item.BookID, &item.Title, &item.Author, &item.ISBN, &item.Quantity, &item.PurchasePrice,
		); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}

		if len(res) == 0 || res[len(res)-1].ID != id {
			res = append(res, model.Purchase{
				ID:           id,
				UserID:       userID,
				PurchaseDate: purchaseDate,
			})
		}

		last := &res[len(res)-1]
		last.Items = append(last.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
